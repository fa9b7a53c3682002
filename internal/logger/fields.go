package logger

// Standard field keys for structured logging. Use these consistently across
// log statements so the logs aggregate cleanly per TIP, kind and component.
const (
	// Record identity
	KeyTIP          = "tip"           // record TIP (hex digest)
	KeyKind         = "kind"          // kind abbreviation (LCD, CCC, ...)
	KeyInspectionID = "inspection_id" // human-readable record ID
	KeyStatus       = "status"        // work item status
	KeyOutcome      = "outcome"       // processor outcome

	// Upstream
	KeyURL        = "url"
	KeyHTTPStatus = "http_status"
	KeyAttempts   = "attempts"
	KeyBreaker    = "breaker_state"
	KeyFailRate   = "failure_rate"

	// Attachments
	KeyAttachmentTIP = "attachment_tip"
	KeySequence      = "sequence"
	KeyFilename      = "filename"
	KeyFileSize      = "file_size"

	// Intake
	KeySource   = "source"    // sftp or local
	KeyCSVFile  = "csv_file"  // source CSV filename
	KeyRowCount = "row_count" // rows extracted from a CSV

	// Hash resolution
	KeyHash       = "hash"
	KeyLookupType = "lookup_type"

	// Generic
	KeyError    = "error"
	KeyDuration = "duration_ms"
	KeyCycle    = "cycle"
	KeyPath     = "path"
)
