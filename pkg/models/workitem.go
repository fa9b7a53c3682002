package models

import (
	"time"
)

// Status is the processing state of a work item.
//
// The lifecycle is: pending/csv_imported -> api_retrying -> api_success ->
// downloading -> complete|partial|failed, with not_found, interrupted,
// ignore and permanently_failed as terminal or operator-driven states.
type Status string

const (
	// StatusPending marks a freshly inserted work item.
	StatusPending Status = "pending"

	// StatusCSVImported marks an item carrying expected metadata from a
	// CSV row. New intake rows land as pending; this state stays in the
	// eligible set for rows written by older intake versions.
	StatusCSVImported Status = "csv_imported"

	// StatusIgnore is operator-set and terminal; the runner never picks it up.
	StatusIgnore Status = "ignore"

	// StatusAPIRetrying is set while an upstream fetch is in flight.
	StatusAPIRetrying Status = "api_retrying"

	// StatusAPISuccess means the payload was fetched and mapped.
	StatusAPISuccess Status = "api_success"

	// StatusAPIError means the upstream fetch failed; a retry is scheduled.
	StatusAPIError Status = "api_error"

	// StatusDownloading is set while attachments are being fetched.
	StatusDownloading Status = "downloading"

	// StatusComplete means the payload and every attachment landed.
	StatusComplete Status = "complete"

	// StatusPartial means some but not all attachments landed.
	StatusPartial Status = "partial"

	// StatusFailed means the payload landed but no attachment did.
	StatusFailed Status = "failed"

	// StatusInterrupted is set when shutdown lands mid-flight; the item is
	// eligible again on the next run.
	StatusInterrupted Status = "interrupted"

	// StatusNotFound is terminal: the upstream returned 404 for the TIP.
	StatusNotFound Status = "not_found"

	// StatusPermanentlyFailed is terminal: the retry budget is exhausted.
	StatusPermanentlyFailed Status = "permanently_failed"
)

// EligibleStatuses are the states the runner considers for processing,
// in batch priority order (earlier means higher priority).
var EligibleStatuses = []Status{
	StatusPending,
	StatusCSVImported,
	StatusInterrupted,
	StatusPartial,
	StatusAPIError,
	StatusFailed,
}

// WorkItem is one unit of ingestion work, keyed by the record TIP.
//
// The table is deliberately wide: besides the fixed columns below, each
// record kind contributes its own set of nullable mapped columns which are
// added to the table at startup (see store.EnsureKindColumns) and written
// through raw column maps. Keeping everything in one table keeps downstream
// reporting simple.
type WorkItem struct {
	TIP  string `gorm:"primaryKey;size:64;column:tip" json:"tip"`
	Kind string `gorm:"not null;size:8;index" json:"kind"`

	Status            Status     `gorm:"not null;size:32;index;default:pending" json:"status"`
	RetryCount        int        `gorm:"not null;default:0" json:"retry_count"`
	NextRetryAt       *time.Time `gorm:"index" json:"next_retry_at,omitempty"`
	LastError         string     `gorm:"type:text" json:"last_error,omitempty"`
	LastAttemptAt     *time.Time `json:"last_attempt_at,omitempty"`
	PermanentlyFailed bool       `gorm:"not null;default:false;index" json:"permanently_failed"`

	TotalAttachments         int  `gorm:"not null;default:0" json:"total_attachments"`
	CompletedAttachmentCount int  `gorm:"not null;default:0" json:"completed_attachment_count"`
	AllAttachmentsComplete   bool `gorm:"not null;default:false" json:"all_attachments_complete"`
	HasUnknownHashes         bool `gorm:"not null;default:false" json:"has_unknown_hashes"`

	// Intake metadata carried over from the source CSV row.
	SourceFilename         string     `gorm:"size:255" json:"source_filename,omitempty"`
	ExpectedInspectionID   string     `gorm:"size:64" json:"expected_inspection_id,omitempty"`
	ExpectedInspectionDate *time.Time `json:"expected_inspection_date,omitempty"`
	CSVImportedAt          *time.Time `gorm:"column:csv_imported_at" json:"csv_imported_at,omitempty"`

	// Raw upstream payload of the most recent successful fetch, verbatim.
	RawPayloadJSON string `gorm:"type:text" json:"-"`
	RawMetaJSON    string `gorm:"type:text" json:"-"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName returns the table name for WorkItem.
func (WorkItem) TableName() string {
	return "work_items"
}

// Terminal reports whether the status admits no further processing.
func (s Status) Terminal() bool {
	switch s {
	case StatusComplete, StatusNotFound, StatusIgnore, StatusPermanentlyFailed:
		return true
	}
	return false
}

// Eligible reports whether an item in this state may be picked up by the
// runner, before the permanently_failed and next_retry_at checks.
func (s Status) Eligible() bool {
	for _, e := range EligibleStatuses {
		if s == e {
			return true
		}
	}
	return false
}
