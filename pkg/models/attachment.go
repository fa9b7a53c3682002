package models

import (
	"time"
)

// AttachmentStatus is the download state of a single attachment.
type AttachmentStatus string

const (
	AttachmentPending     AttachmentStatus = "pending"
	AttachmentDownloading AttachmentStatus = "downloading"
	AttachmentComplete    AttachmentStatus = "complete"
	AttachmentFailed      AttachmentStatus = "failed"
)

// ValidationStatus is the result of post-download validation.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationFailed  ValidationStatus = "validation_failed"
)

// Attachment is one media file referenced by a record payload.
//
// The (record_tip, attachment_tip) pair is the primary key: re-processing a
// record updates the existing row rather than inserting a second one.
type Attachment struct {
	RecordTIP     string `gorm:"primaryKey;size:64;column:record_tip" json:"record_tip"`
	AttachmentTIP string `gorm:"primaryKey;size:64;column:attachment_tip" json:"attachment_tip"`

	// Sequence is the 1-based position within the record's attachment list.
	Sequence int    `gorm:"not null" json:"sequence"`
	Filename string `gorm:"size:255" json:"filename"`
	FilePath string `gorm:"size:1024" json:"file_path"`

	Status           AttachmentStatus `gorm:"not null;size:32;default:pending" json:"status"`
	ValidationStatus ValidationStatus `gorm:"not null;size:32;default:pending" json:"validation_status"`

	FileSizeBytes int64  `gorm:"not null;default:0" json:"file_size_bytes"`
	FileHashMD5   string `gorm:"size:32;column:file_hash_md5" json:"file_hash_md5,omitempty"`

	DownloadStartedAt   *time.Time `json:"download_started_at,omitempty"`
	DownloadCompletedAt *time.Time `json:"download_completed_at,omitempty"`
	LastError           string     `gorm:"type:text" json:"last_error,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for Attachment.
func (Attachment) TableName() string {
	return "attachments"
}
