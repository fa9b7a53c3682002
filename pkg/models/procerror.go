package models

import (
	"time"
)

// Error types recorded in processing_errors, mirroring the handling taxonomy.
const (
	ErrorTypeAPI                  = "api_error"
	ErrorTypeAuth                 = "auth_error"
	ErrorTypeInvalidPayload       = "invalid_payload"
	ErrorTypeAttachmentDownload   = "attachment_download"
	ErrorTypeAttachmentValidation = "attachment_validation"
	ErrorTypeFilesystem           = "filesystem"
	ErrorTypeCSVIntake            = "csv_intake"
)

// ProcessingError is an append-only record of a failure observed while
// processing a TIP. Rows are never updated or deleted.
type ProcessingError struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	TIP              string    `gorm:"not null;size:64;column:tip;index" json:"tip"`
	ErrorType        string    `gorm:"not null;size:32" json:"error_type"`
	ErrorMessage     string    `gorm:"type:text" json:"error_message"`
	ErrorDetailsJSON string    `gorm:"type:text" json:"error_details_json,omitempty"`
	CreatedAt        time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName returns the table name for ProcessingError.
func (ProcessingError) TableName() string {
	return "processing_errors"
}
