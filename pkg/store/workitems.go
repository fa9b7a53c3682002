package store

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// ============================================
// WORK ITEM OPERATIONS
// ============================================

// CreateWorkItem inserts a new work item.
// Returns models.ErrDuplicateWorkItem if the TIP already exists.
func (s *GORMStore) CreateWorkItem(ctx context.Context, item *models.WorkItem) error {
	if item.Status == "" {
		item.Status = models.StatusPending
	}
	if err := s.db.WithContext(ctx).Create(item).Error; err != nil {
		if isUniqueConstraintError(err) {
			return models.ErrDuplicateWorkItem
		}
		return err
	}
	return nil
}

// GetWorkItem returns the work item for a TIP.
// Returns models.ErrWorkItemNotFound if it doesn't exist.
func (s *GORMStore) GetWorkItem(ctx context.Context, tip string) (*models.WorkItem, error) {
	var item models.WorkItem
	if err := s.db.WithContext(ctx).Where("tip = ?", tip).First(&item).Error; err != nil {
		return nil, convertNotFoundError(err, models.ErrWorkItemNotFound)
	}
	return &item, nil
}

// WorkItemExists reports whether a work item exists for the TIP.
func (s *GORMStore) WorkItemExists(ctx context.Context, tip string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&models.WorkItem{}).
		Where("tip = ?", tip).
		Count(&count).Error
	return count > 0, err
}

// eligibleOrder ranks eligible statuses for batch processing: fresh intake
// first, then items a shutdown caught mid-flight, then partially complete
// items, then prior errors.
const eligibleOrder = `CASE status
	WHEN 'pending' THEN 0
	WHEN 'csv_imported' THEN 1
	WHEN 'interrupted' THEN 2
	WHEN 'partial' THEN 3
	WHEN 'api_error' THEN 4
	WHEN 'failed' THEN 5
	ELSE 6 END, csv_imported_at ASC, created_at ASC`

// EligibleWorkItems returns up to limit items of the given kind that are due
// for processing: eligible status, not permanently failed, and either no
// retry schedule or one that has elapsed.
func (s *GORMStore) EligibleWorkItems(ctx context.Context, kind string, limit int, now time.Time) ([]*models.WorkItem, error) {
	var items []*models.WorkItem
	err := s.db.WithContext(ctx).
		Where("kind = ?", kind).
		Where("status IN ?", models.EligibleStatuses).
		Where("permanently_failed = ?", false).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order(eligibleOrder).
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// SetWorkItemStatus updates the status of a work item.
func (s *GORMStore) SetWorkItemStatus(ctx context.Context, tip string, status models.Status) error {
	return s.updateWorkItem(ctx, tip, map[string]any{"status": status})
}

// MarkAttempt records the start of a processing attempt.
func (s *GORMStore) MarkAttempt(ctx context.Context, tip string, at time.Time) error {
	return s.updateWorkItem(ctx, tip, map[string]any{
		"status":          models.StatusAPIRetrying,
		"last_attempt_at": at,
	})
}

// MarkAPISuccess records a successful upstream fetch: status, raw payload,
// attachment total, the unknown-hash flag and every mapped per-kind column,
// all in one transaction.
func (s *GORMStore) MarkAPISuccess(ctx context.Context, tip string, mapped map[string]any, rawPayload string, totalAttachments int, hasUnknownHashes bool) error {
	updates := map[string]any{
		"status":             models.StatusAPISuccess,
		"raw_payload_json":   rawPayload,
		"total_attachments":  totalAttachments,
		"has_unknown_hashes": hasUnknownHashes,
		"last_error":         "",
		"next_retry_at":      nil,
	}
	for col, val := range mapped {
		updates[col] = val
	}
	return s.updateWorkItem(ctx, tip, updates)
}

// ScheduleRetry records a failed attempt and its retry schedule. When
// permanent is true the item is frozen: permanently_failed is set and the
// next_retry_at is cleared.
func (s *GORMStore) ScheduleRetry(ctx context.Context, tip string, status models.Status, lastError string, retryCount int, nextRetryAt *time.Time, permanent bool) error {
	updates := map[string]any{
		"status":      status,
		"last_error":  lastError,
		"retry_count": retryCount,
	}
	if permanent {
		updates["status"] = models.StatusPermanentlyFailed
		updates["permanently_failed"] = true
		updates["next_retry_at"] = nil
	} else {
		updates["next_retry_at"] = nextRetryAt
	}
	return s.updateWorkItem(ctx, tip, updates)
}

// RefreshAttachmentProgress recomputes the attachment completion counters of
// a work item from its attachment rows, preserving the invariant that
// all_attachments_complete holds exactly when every row is complete.
func (s *GORMStore) RefreshAttachmentProgress(ctx context.Context, tip string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item models.WorkItem
		if err := tx.Where("tip = ?", tip).First(&item).Error; err != nil {
			return convertNotFoundError(err, models.ErrWorkItemNotFound)
		}

		var completed int64
		if err := tx.Model(&models.Attachment{}).
			Where("record_tip = ? AND status = ?", tip, models.AttachmentComplete).
			Count(&completed).Error; err != nil {
			return err
		}

		allDone := item.TotalAttachments > 0 && int(completed) == item.TotalAttachments

		return tx.Model(&models.WorkItem{}).
			Where("tip = ?", tip).
			Updates(map[string]any{
				"completed_attachment_count": completed,
				"all_attachments_complete":   allDone,
			}).Error
	})
}

// StatusCount is one row of the per-kind status breakdown.
type StatusCount struct {
	Kind   string
	Status models.Status
	Count  int64
}

// CountsByKindStatus returns work item counts grouped by kind and status.
func (s *GORMStore) CountsByKindStatus(ctx context.Context) ([]StatusCount, error) {
	var rows []StatusCount
	err := s.db.WithContext(ctx).
		Model(&models.WorkItem{}).
		Select("kind, status, COUNT(*) as count").
		Group("kind").Group("status").
		Order("kind").Order("status").
		Scan(&rows).Error
	return rows, err
}

// TruncateIntake empties the work item, attachment and processing error
// tables. Used only by the standalone import tool's reset path.
func (s *GORMStore) TruncateIntake(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range []any{&models.ProcessingError{}, &models.Attachment{}, &models.WorkItem{}} {
			if err := tx.Where("1 = 1").Delete(model).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// updateWorkItem applies a column map to one work item, converting a
// missing row to models.ErrWorkItemNotFound.
func (s *GORMStore) updateWorkItem(ctx context.Context, tip string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.WorkItem{}).
		Where("tip = ?", tip).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrWorkItemNotFound
	}
	return nil
}
