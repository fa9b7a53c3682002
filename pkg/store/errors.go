package store

import (
	"context"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// ============================================
// PROCESSING ERROR OPERATIONS
// ============================================

// RecordProcessingError appends one row to the processing error log.
func (s *GORMStore) RecordProcessingError(ctx context.Context, tip, errorType, message, detailsJSON string) error {
	return s.db.WithContext(ctx).Create(&models.ProcessingError{
		TIP:              tip,
		ErrorType:        errorType,
		ErrorMessage:     message,
		ErrorDetailsJSON: detailsJSON,
	}).Error
}

// ListProcessingErrors returns the error log for one TIP, newest first.
func (s *GORMStore) ListProcessingErrors(ctx context.Context, tip string) ([]*models.ProcessingError, error) {
	var rows []*models.ProcessingError
	err := s.db.WithContext(ctx).
		Where("tip = ?", tip).
		Order("created_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
