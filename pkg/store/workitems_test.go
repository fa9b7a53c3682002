package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

func newTestStore(t *testing.T) *GORMStore {
	t.Helper()
	st, err := New(&Config{
		Type:   DatabaseTypeSQLite,
		SQLite: SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustCreate(t *testing.T, st *GORMStore, item *models.WorkItem) {
	t.Helper()
	require.NoError(t, st.CreateWorkItem(context.Background(), item))
}

func TestCreateWorkItemDuplicate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	mustCreate(t, st, &models.WorkItem{TIP: "aa00", Kind: "LCD"})
	err := st.CreateWorkItem(ctx, &models.WorkItem{TIP: "aa00", Kind: "LCD"})
	assert.ErrorIs(t, err, models.ErrDuplicateWorkItem)
}

func TestGetWorkItemNotFound(t *testing.T) {
	st := newTestStore(t)
	_, err := st.GetWorkItem(context.Background(), "missing")
	assert.ErrorIs(t, err, models.ErrWorkItemNotFound)
}

func TestEligibleWorkItemsStatusPriority(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	base := time.Now().Add(-time.Hour)
	for _, it := range []struct {
		tip    string
		status models.Status
	}{
		{"failed1", models.StatusFailed},
		{"apierr1", models.StatusAPIError},
		{"partial1", models.StatusPartial},
		{"interrupted1", models.StatusInterrupted},
		{"csv1", models.StatusCSVImported},
		{"pending1", models.StatusPending},
	} {
		mustCreate(t, st, &models.WorkItem{
			TIP: it.tip, Kind: "LCD", Status: it.status, CSVImportedAt: &base,
		})
	}

	items, err := st.EligibleWorkItems(ctx, "LCD", 10, time.Now())
	require.NoError(t, err)
	require.Len(t, items, 6)

	got := make([]string, len(items))
	for i, it := range items {
		got[i] = it.TIP
	}
	assert.Equal(t, []string{"pending1", "csv1", "interrupted1", "partial1", "apierr1", "failed1"}, got)
}

func TestEligibleWorkItemsIncludesInterrupted(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	mustCreate(t, st, &models.WorkItem{TIP: "aa00", Kind: "LCD", Status: models.StatusDownloading})
	require.NoError(t, st.SetWorkItemStatus(ctx, "aa00", models.StatusInterrupted))

	// An item caught mid-flight by a shutdown is picked up on the next run.
	items, err := st.EligibleWorkItems(ctx, "LCD", 10, time.Now())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "aa00", items[0].TIP)
	assert.Equal(t, models.StatusInterrupted, items[0].Status)
}

func TestEligibleWorkItemsOrdersByImportTime(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	early := time.Now().Add(-2 * time.Hour)
	late := time.Now().Add(-time.Hour)
	mustCreate(t, st, &models.WorkItem{TIP: "late", Kind: "LCD", CSVImportedAt: &late})
	mustCreate(t, st, &models.WorkItem{TIP: "early", Kind: "LCD", CSVImportedAt: &early})

	items, err := st.EligibleWorkItems(ctx, "LCD", 10, time.Now())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "early", items[0].TIP)
	assert.Equal(t, "late", items[1].TIP)
}

func TestEligibleWorkItemsFilters(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	now := time.Now()

	future := now.Add(time.Hour)
	past := now.Add(-time.Hour)

	mustCreate(t, st, &models.WorkItem{TIP: "due", Kind: "LCD", Status: models.StatusAPIError, NextRetryAt: &past})
	mustCreate(t, st, &models.WorkItem{TIP: "later", Kind: "LCD", Status: models.StatusAPIError, NextRetryAt: &future})
	mustCreate(t, st, &models.WorkItem{TIP: "frozen", Kind: "LCD", Status: models.StatusFailed, PermanentlyFailed: true})
	mustCreate(t, st, &models.WorkItem{TIP: "done", Kind: "LCD", Status: models.StatusComplete})
	mustCreate(t, st, &models.WorkItem{TIP: "otherkind", Kind: "TA", Status: models.StatusPending})

	items, err := st.EligibleWorkItems(ctx, "LCD", 10, now)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "due", items[0].TIP)
}

func TestMarkAPISuccessWritesKindColumns(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.EnsureKindColumns(ctx, []ColumnSpec{
		{Name: "lcd_inspection_id", Kind: ColumnText},
		{Name: "load_secure", Kind: ColumnBool},
	}))
	mustCreate(t, st, &models.WorkItem{TIP: "aa00", Kind: "LCD"})

	err := st.MarkAPISuccess(ctx, "aa00", map[string]any{
		"lcd_inspection_id": "LCD - 000123",
		"load_secure":       true,
	}, `{"raw":1}`, 2, false)
	require.NoError(t, err)

	item, err := st.GetWorkItem(ctx, "aa00")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAPISuccess, item.Status)
	assert.Equal(t, 2, item.TotalAttachments)
	assert.Equal(t, `{"raw":1}`, item.RawPayloadJSON)

	var ids []string
	require.NoError(t, st.db.Model(&models.WorkItem{}).
		Where("tip = ?", "aa00").
		Pluck("lcd_inspection_id", &ids).Error)
	assert.Equal(t, []string{"LCD - 000123"}, ids)
}

func TestScheduleRetryPermanent(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mustCreate(t, st, &models.WorkItem{TIP: "aa00", Kind: "LCD"})

	next := time.Now().Add(10 * time.Minute)
	require.NoError(t, st.ScheduleRetry(ctx, "aa00", models.StatusAPIError, "boom", 2, &next, false))

	item, err := st.GetWorkItem(ctx, "aa00")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAPIError, item.Status)
	assert.Equal(t, 2, item.RetryCount)
	require.NotNil(t, item.NextRetryAt)
	assert.False(t, item.PermanentlyFailed)

	require.NoError(t, st.ScheduleRetry(ctx, "aa00", models.StatusAPIError, "boom", 5, nil, true))
	item, err = st.GetWorkItem(ctx, "aa00")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPermanentlyFailed, item.Status)
	assert.True(t, item.PermanentlyFailed)
	assert.Nil(t, item.NextRetryAt)
}

func TestRefreshAttachmentProgress(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	mustCreate(t, st, &models.WorkItem{TIP: "aa00", Kind: "LCD", TotalAttachments: 2})

	for i, atip := range []string{"bb01", "cc02"} {
		require.NoError(t, st.BeginAttachmentDownload(ctx, &models.Attachment{
			RecordTIP: "aa00", AttachmentTIP: atip, Sequence: i + 1,
		}))
	}
	require.NoError(t, st.MarkAttachmentComplete(ctx, "aa00", "bb01", 5000, "abc", time.Now()))

	require.NoError(t, st.RefreshAttachmentProgress(ctx, "aa00"))
	item, err := st.GetWorkItem(ctx, "aa00")
	require.NoError(t, err)
	assert.Equal(t, 1, item.CompletedAttachmentCount)
	assert.False(t, item.AllAttachmentsComplete)

	require.NoError(t, st.MarkAttachmentComplete(ctx, "aa00", "cc02", 4000, "def", time.Now()))
	require.NoError(t, st.RefreshAttachmentProgress(ctx, "aa00"))
	item, err = st.GetWorkItem(ctx, "aa00")
	require.NoError(t, err)
	assert.Equal(t, 2, item.CompletedAttachmentCount)
	assert.True(t, item.AllAttachmentsComplete)
}

func TestCountsByKindStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	mustCreate(t, st, &models.WorkItem{TIP: "a", Kind: "LCD", Status: models.StatusComplete})
	mustCreate(t, st, &models.WorkItem{TIP: "b", Kind: "LCD", Status: models.StatusComplete})
	mustCreate(t, st, &models.WorkItem{TIP: "c", Kind: "TA", Status: models.StatusPending})

	counts, err := st.CountsByKindStatus(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	assert.Equal(t, StatusCount{Kind: "LCD", Status: models.StatusComplete, Count: 2}, counts[0])
	assert.Equal(t, StatusCount{Kind: "TA", Status: models.StatusPending, Count: 1}, counts[1])
}

func TestTruncateIntake(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	mustCreate(t, st, &models.WorkItem{TIP: "aa00", Kind: "LCD"})
	require.NoError(t, st.BeginAttachmentDownload(ctx, &models.Attachment{
		RecordTIP: "aa00", AttachmentTIP: "bb01", Sequence: 1,
	}))
	require.NoError(t, st.RecordProcessingError(ctx, "aa00", models.ErrorTypeAPI, "boom", ""))

	require.NoError(t, st.TruncateIntake(ctx))

	_, err := st.GetWorkItem(ctx, "aa00")
	assert.ErrorIs(t, err, models.ErrWorkItemNotFound)
	atts, err := st.ListAttachments(ctx, "aa00")
	require.NoError(t, err)
	assert.Empty(t, atts)
	errs, err := st.ListProcessingErrors(ctx, "aa00")
	require.NoError(t, err)
	assert.Empty(t, errs)
}
