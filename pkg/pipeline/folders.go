package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

const (
	defaultFolderPattern   = "{abbreviation}/{year}/{month}/{date} {inspection_id}"
	defaultFilenamePattern = "{abbreviation}_{inspection_id}_{date_compact}_{stub}_{sequence}.jpg"
)

var (
	invalidFilenameChars = regexp.MustCompile(`[<>:"/\\|?*]`)
	whitespaceRun        = regexp.MustCompile(`\s+`)
)

// FolderManager lays out per-inspection folders and filenames under the
// configured output root.
type FolderManager struct {
	root string
}

// NewFolderManager creates a folder manager rooted at the output directory.
func NewFolderManager(root string) *FolderManager {
	return &FolderManager{root: root}
}

// InspectionDir computes the absolute folder path for a record. A missing
// or unparseable record date substitutes the unknown path components.
func (f *FolderManager) InspectionDir(schema *config.KindSchema, rec *MappedRecord) string {
	pattern := schema.FolderPattern
	if pattern == "" {
		pattern = defaultFolderPattern
	}

	year, month, date := "unknown_year", "unknown_month", "unknown_date"
	if rec.HasDate {
		year = rec.Date.Format("2006")
		month = rec.Date.Format("01")
		date = rec.Date.Format("2006-01-02")
	}

	replacer := strings.NewReplacer(
		"{abbreviation}", schema.Abbreviation,
		"{year}", year,
		"{month}", month,
		"{date}", date,
		"{inspection_id}", SanitizeFilename(rec.InspectionID),
	)

	parts := strings.Split(replacer.Replace(pattern), "/")
	return filepath.Join(append([]string{f.root}, parts...)...)
}

// EnsureInspectionDir creates the record folder and returns its path.
func (f *FolderManager) EnsureInspectionDir(schema *config.KindSchema, rec *MappedRecord) (string, error) {
	dir := f.InspectionDir(schema, rec)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create inspection folder: %w", err)
	}
	return dir, nil
}

// ReportFilename returns the report filename for a record.
func (f *FolderManager) ReportFilename(rec *MappedRecord) string {
	id := SanitizeFilename(rec.InspectionID)
	if id == "" {
		id = "record"
	}
	return id + "_inspection_data.txt"
}

// AttachmentFilename composes one attachment filename. Sequence numbers are
// 1-based and zero-padded to three digits.
func (f *FolderManager) AttachmentFilename(schema *config.KindSchema, rec *MappedRecord, stub string, sequence int) string {
	pattern := schema.FilenamePattern
	if pattern == "" {
		pattern = defaultFilenamePattern
	}

	date, dateCompact := "unknown_date", "unknown_date"
	if rec.HasDate {
		date = rec.Date.Format("2006-01-02")
		dateCompact = rec.Date.Format("20060102")
	}

	replacer := strings.NewReplacer(
		"{abbreviation}", schema.Abbreviation,
		"{inspection_id}", rec.InspectionID,
		"{date}", date,
		"{date_compact}", dateCompact,
		"{stub}", stub,
		"{sequence}", fmt.Sprintf("%03d", sequence),
	)

	return SanitizeFilename(replacer.Replace(pattern))
}

// SanitizeFilename makes a string safe as a single path component: invalid
// characters become underscores, whitespace runs collapse to one space, and
// the result is trimmed and bounded at 100 characters. Running it twice is
// a fixpoint.
func SanitizeFilename(s string) string {
	s = invalidFilenameChars.ReplaceAllString(s, "_")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = strings.Trim(s, " _")
	if r := []rune(s); len(r) > 100 {
		s = strings.Trim(string(r[:100]), " _")
	}
	return s
}
