// Package store provides the persistence layer for the ingestion pipeline.
//
// This package implements the Store interface over GORM for managing work
// items, attachments, the hash dictionary, unknown-hash sightings and the
// processing error log.
//
// Two backends are supported:
//   - SQLite (single-node, default)
//   - PostgreSQL
package store

import (
	"context"
	"time"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// Store is the persistence interface of the ingestion pipeline.
//
// Thread Safety: implementations must be safe for concurrent use from
// multiple goroutines; work item status mutations run in short transactions.
type Store interface {
	// ============================================
	// WORK ITEM OPERATIONS
	// ============================================

	// CreateWorkItem inserts a new work item.
	// Returns models.ErrDuplicateWorkItem if the TIP already exists.
	CreateWorkItem(ctx context.Context, item *models.WorkItem) error

	// GetWorkItem returns the work item for a TIP.
	// Returns models.ErrWorkItemNotFound if it doesn't exist.
	GetWorkItem(ctx context.Context, tip string) (*models.WorkItem, error)

	// WorkItemExists reports whether a work item exists for the TIP.
	WorkItemExists(ctx context.Context, tip string) (bool, error)

	// EligibleWorkItems returns up to limit items of a kind due for
	// processing, in batch priority order.
	EligibleWorkItems(ctx context.Context, kind string, limit int, now time.Time) ([]*models.WorkItem, error)

	// SetWorkItemStatus updates only the status column.
	SetWorkItemStatus(ctx context.Context, tip string, status models.Status) error

	// MarkAttempt records the start of a processing attempt.
	MarkAttempt(ctx context.Context, tip string, at time.Time) error

	// MarkAPISuccess records a successful fetch with the mapped columns.
	MarkAPISuccess(ctx context.Context, tip string, mapped map[string]any, rawPayload string, totalAttachments int, hasUnknownHashes bool) error

	// ScheduleRetry records a failed attempt and its retry schedule.
	ScheduleRetry(ctx context.Context, tip string, status models.Status, lastError string, retryCount int, nextRetryAt *time.Time, permanent bool) error

	// RefreshAttachmentProgress recomputes attachment completion counters.
	RefreshAttachmentProgress(ctx context.Context, tip string) error

	// CountsByKindStatus returns counts grouped by kind and status.
	CountsByKindStatus(ctx context.Context) ([]StatusCount, error)

	// TruncateIntake empties the intake tables (standalone import tool only).
	TruncateIntake(ctx context.Context) error

	// EnsureKindColumns adds missing per-kind mapped columns to work_items.
	EnsureKindColumns(ctx context.Context, cols []ColumnSpec) error

	// ============================================
	// ATTACHMENT OPERATIONS
	// ============================================

	// GetAttachment returns one attachment row.
	// Returns models.ErrAttachmentNotFound if it doesn't exist.
	GetAttachment(ctx context.Context, recordTIP, attachmentTIP string) (*models.Attachment, error)

	// ListAttachments returns a record's attachment rows in sequence order.
	ListAttachments(ctx context.Context, recordTIP string) ([]*models.Attachment, error)

	// BeginAttachmentDownload creates or resets an attachment row.
	BeginAttachmentDownload(ctx context.Context, att *models.Attachment) error

	// MarkAttachmentComplete records a validated download.
	MarkAttachmentComplete(ctx context.Context, recordTIP, attachmentTIP string, sizeBytes int64, md5Hash string, completedAt time.Time) error

	// MarkAttachmentFailed records a failed download or validation.
	MarkAttachmentFailed(ctx context.Context, recordTIP, attachmentTIP string, validation models.ValidationStatus, lastError string) error

	// CountAttachmentsByStatus returns attachment row counts per status.
	CountAttachmentsByStatus(ctx context.Context) (map[models.AttachmentStatus]int64, error)

	// ============================================
	// HASH DICTIONARY OPERATIONS
	// ============================================

	// LoadHashEntries returns the full hash dictionary.
	LoadHashEntries(ctx context.Context) ([]*models.HashEntry, error)

	// ReplaceHashEntries performs a transactional full dictionary refresh.
	ReplaceHashEntries(ctx context.Context, entries []*models.HashEntry) error

	// UpsertHashEntry inserts or updates one dictionary entry.
	UpsertHashEntry(ctx context.Context, entry *models.HashEntry) error

	// RecordUnknownHash idempotently records an unresolved-hash sighting.
	RecordUnknownHash(ctx context.Context, tipHash string, lookupType models.LookupType, seenAt time.Time) error

	// ListUnknownHashes returns unresolved sightings, oldest first.
	ListUnknownHashes(ctx context.Context) ([]*models.UnknownHash, error)

	// ============================================
	// PROCESSING ERROR OPERATIONS
	// ============================================

	// RecordProcessingError appends one row to the error log.
	RecordProcessingError(ctx context.Context, tip, errorType, message, detailsJSON string) error

	// ListProcessingErrors returns the error log for one TIP, newest first.
	ListProcessingErrors(ctx context.Context, tip string) ([]*models.ProcessingError, error)

	// ============================================
	// LIFECYCLE
	// ============================================

	// Ping verifies the database connection is alive.
	Ping(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}

// Compile-time interface check.
var _ Store = (*GORMStore)(nil)
