package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

func TestBeginAttachmentDownloadUpserts(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	att := &models.Attachment{
		RecordTIP: "aa00", AttachmentTIP: "bb01",
		Sequence: 1, Filename: "a.jpg", FilePath: "/out/a.jpg",
	}
	require.NoError(t, st.BeginAttachmentDownload(ctx, att))

	got, err := st.GetAttachment(ctx, "aa00", "bb01")
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentDownloading, got.Status)
	assert.Equal(t, models.ValidationPending, got.ValidationStatus)
	require.NotNil(t, got.DownloadStartedAt)

	// A second begin resets the same row instead of inserting another.
	require.NoError(t, st.MarkAttachmentFailed(ctx, "aa00", "bb01", models.ValidationFailed, "too small"))
	retry := &models.Attachment{
		RecordTIP: "aa00", AttachmentTIP: "bb01",
		Sequence: 1, Filename: "a.jpg", FilePath: "/out/a.jpg",
	}
	require.NoError(t, st.BeginAttachmentDownload(ctx, retry))

	atts, err := st.ListAttachments(ctx, "aa00")
	require.NoError(t, err)
	require.Len(t, atts, 1)
	assert.Equal(t, models.AttachmentDownloading, atts[0].Status)
	assert.Empty(t, atts[0].LastError)
}

func TestMarkAttachmentComplete(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	require.NoError(t, st.BeginAttachmentDownload(ctx, &models.Attachment{
		RecordTIP: "aa00", AttachmentTIP: "bb01", Sequence: 1,
	}))

	done := time.Now().Truncate(time.Second)
	require.NoError(t, st.MarkAttachmentComplete(ctx, "aa00", "bb01", 5000, "d41d8cd98f00b204e9800998ecf8427e", done))

	got, err := st.GetAttachment(ctx, "aa00", "bb01")
	require.NoError(t, err)
	assert.Equal(t, models.AttachmentComplete, got.Status)
	assert.Equal(t, models.ValidationValid, got.ValidationStatus)
	assert.Equal(t, int64(5000), got.FileSizeBytes)
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", got.FileHashMD5)
	require.NotNil(t, got.DownloadCompletedAt)
}

func TestAttachmentNotFound(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	_, err := st.GetAttachment(ctx, "aa00", "missing")
	assert.ErrorIs(t, err, models.ErrAttachmentNotFound)

	err = st.MarkAttachmentComplete(ctx, "aa00", "missing", 1, "x", time.Now())
	assert.ErrorIs(t, err, models.ErrAttachmentNotFound)
}

func TestCountAttachmentsByStatus(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for i, atip := range []string{"bb01", "cc02", "dd03"} {
		require.NoError(t, st.BeginAttachmentDownload(ctx, &models.Attachment{
			RecordTIP: "aa00", AttachmentTIP: atip, Sequence: i + 1,
		}))
	}
	require.NoError(t, st.MarkAttachmentComplete(ctx, "aa00", "bb01", 5000, "abc", time.Now()))
	require.NoError(t, st.MarkAttachmentFailed(ctx, "aa00", "cc02", models.ValidationFailed, "too small"))

	counts, err := st.CountAttachmentsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts[models.AttachmentComplete])
	assert.Equal(t, int64(1), counts[models.AttachmentFailed])
	assert.Equal(t, int64(1), counts[models.AttachmentDownloading])
}

func TestListAttachmentsSequenceOrder(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	for _, a := range []struct {
		tip string
		seq int
	}{{"cc03", 3}, {"bb01", 1}, {"cc02", 2}} {
		require.NoError(t, st.BeginAttachmentDownload(ctx, &models.Attachment{
			RecordTIP: "aa00", AttachmentTIP: a.tip, Sequence: a.seq,
		}))
	}

	atts, err := st.ListAttachments(ctx, "aa00")
	require.NoError(t, err)
	require.Len(t, atts, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{atts[0].Sequence, atts[1].Sequence, atts[2].Sequence})
}
