package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// ============================================
// ATTACHMENT OPERATIONS
// ============================================

// GetAttachment returns the attachment row for a (record, attachment) pair.
// Returns models.ErrAttachmentNotFound if it doesn't exist.
func (s *GORMStore) GetAttachment(ctx context.Context, recordTIP, attachmentTIP string) (*models.Attachment, error) {
	var att models.Attachment
	err := s.db.WithContext(ctx).
		Where("record_tip = ? AND attachment_tip = ?", recordTIP, attachmentTIP).
		First(&att).Error
	if err != nil {
		return nil, convertNotFoundError(err, models.ErrAttachmentNotFound)
	}
	return &att, nil
}

// ListAttachments returns all attachment rows of a record in sequence order.
func (s *GORMStore) ListAttachments(ctx context.Context, recordTIP string) ([]*models.Attachment, error) {
	var atts []*models.Attachment
	err := s.db.WithContext(ctx).
		Where("record_tip = ?", recordTIP).
		Order("sequence ASC").
		Find(&atts).Error
	if err != nil {
		return nil, err
	}
	return atts, nil
}

// BeginAttachmentDownload creates or resets the attachment row at the start
// of a download attempt. At most one row ever exists per
// (record_tip, attachment_tip); re-entry updates it in place.
func (s *GORMStore) BeginAttachmentDownload(ctx context.Context, att *models.Attachment) error {
	now := time.Now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.Attachment
		err := tx.Where("record_tip = ? AND attachment_tip = ?", att.RecordTIP, att.AttachmentTIP).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			att.Status = models.AttachmentDownloading
			att.ValidationStatus = models.ValidationPending
			att.DownloadStartedAt = &now
			return tx.Create(att).Error
		}
		if err != nil {
			return err
		}

		return tx.Model(&models.Attachment{}).
			Where("record_tip = ? AND attachment_tip = ?", att.RecordTIP, att.AttachmentTIP).
			Updates(map[string]any{
				"sequence":            att.Sequence,
				"filename":            att.Filename,
				"file_path":           att.FilePath,
				"status":              models.AttachmentDownloading,
				"validation_status":   models.ValidationPending,
				"download_started_at": now,
				"last_error":          "",
			}).Error
	})
}

// MarkAttachmentComplete records a validated, renamed, hashed download.
func (s *GORMStore) MarkAttachmentComplete(ctx context.Context, recordTIP, attachmentTIP string, sizeBytes int64, md5Hash string, completedAt time.Time) error {
	return s.updateAttachment(ctx, recordTIP, attachmentTIP, map[string]any{
		"status":                models.AttachmentComplete,
		"validation_status":     models.ValidationValid,
		"file_size_bytes":       sizeBytes,
		"file_hash_md5":         md5Hash,
		"download_completed_at": completedAt,
		"last_error":            "",
	})
}

// MarkAttachmentFailed records a failed download or validation.
func (s *GORMStore) MarkAttachmentFailed(ctx context.Context, recordTIP, attachmentTIP string, validation models.ValidationStatus, lastError string) error {
	return s.updateAttachment(ctx, recordTIP, attachmentTIP, map[string]any{
		"status":            models.AttachmentFailed,
		"validation_status": validation,
		"last_error":        lastError,
	})
}

// CountAttachmentsByStatus returns attachment row counts per status.
func (s *GORMStore) CountAttachmentsByStatus(ctx context.Context) (map[models.AttachmentStatus]int64, error) {
	type bucket struct {
		Status models.AttachmentStatus
		Count  int64
	}
	var buckets []bucket
	err := s.db.WithContext(ctx).
		Model(&models.Attachment{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Find(&buckets).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[models.AttachmentStatus]int64, len(buckets))
	for _, b := range buckets {
		counts[b.Status] = b.Count
	}
	return counts, nil
}

func (s *GORMStore) updateAttachment(ctx context.Context, recordTIP, attachmentTIP string, updates map[string]any) error {
	result := s.db.WithContext(ctx).
		Model(&models.Attachment{}).
		Where("record_tip = ? AND attachment_tip = ?", recordTIP, attachmentTIP).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return models.ErrAttachmentNotFound
	}
	return nil
}
