package pipeline

import (
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/models"
)

func testSchema() *config.KindSchema {
	return &config.KindSchema{
		Abbreviation:       "LCD",
		FullName:           "Load Compliance Check Driver",
		Enabled:            true,
		Endpoint:           "/api/records/lcd/$tip",
		IDField:            config.FieldRef{Upstream: "lcdInspectionId", Column: "lcd_inspection_id"},
		DateField:          config.FieldRef{Upstream: "date", Column: "inspection_date"},
		DateFormat:         "2006-01-02",
		UnknownPlaceholder: "Unknown",
		Fields: []config.FieldMapping{
			{Upstream: "vehicle", Column: "vehicle_hash", Type: config.ValueHash, HashType: models.LookupVehicle},
			{Upstream: "loadSecure", Column: "load_secure", Type: config.ValueBool},
			{Upstream: "comments", Column: "comments", Type: config.ValueString},
		},
	}
}

func testRecord() *MappedRecord {
	return &MappedRecord{
		InspectionID: "LCD - 000123",
		Date:         time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC),
		HasDate:      true,
		Columns:      map[string]any{},
		Context:      map[string]any{},
	}
}

func TestInspectionDir(t *testing.T) {
	fm := NewFolderManager("/out")
	dir := fm.InspectionDir(testSchema(), testRecord())
	assert.Equal(t, filepath.Join("/out", "LCD", "2025", "06", "2025-06-15 LCD - 000123"), dir)
}

func TestInspectionDirUnknownDate(t *testing.T) {
	fm := NewFolderManager("/out")
	rec := testRecord()
	rec.HasDate = false

	dir := fm.InspectionDir(testSchema(), rec)
	assert.Equal(t, filepath.Join("/out", "LCD", "unknown_year", "unknown_month", "unknown_date LCD - 000123"), dir)
}

func TestInspectionDirCustomPattern(t *testing.T) {
	schema := testSchema()
	schema.FolderPattern = "{abbreviation}/{inspection_id}"
	fm := NewFolderManager("/out")

	dir := fm.InspectionDir(schema, testRecord())
	assert.Equal(t, filepath.Join("/out", "LCD", "LCD - 000123"), dir)
}

func TestReportFilename(t *testing.T) {
	fm := NewFolderManager("/out")
	assert.Equal(t, "LCD - 000123_inspection_data.txt", fm.ReportFilename(testRecord()))

	rec := testRecord()
	rec.InspectionID = ""
	assert.Equal(t, "record_inspection_data.txt", fm.ReportFilename(rec))
}

func TestAttachmentFilename(t *testing.T) {
	fm := NewFolderManager("/out")
	name := fm.AttachmentFilename(testSchema(), testRecord(), "photo", 1)
	assert.Equal(t, "LCD_LCD - 000123_20250615_photo_001.jpg", name)

	name = fm.AttachmentFilename(testSchema(), testRecord(), "photo", 12)
	assert.Equal(t, "LCD_LCD - 000123_20250615_photo_012.jpg", name)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"TA - 00014", "TA - 00014"},
		{"  spaced   out  ", "spaced out"},
		{"_underscored_", "underscored"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeFilename(tt.in), "input %q", tt.in)
	}
}

func TestSanitizeFilenameFixpoint(t *testing.T) {
	inputs := []string{
		`report<1>:final`, "TA - 00014", "  a  b  ", "x_", "____",
		"very long name " + string(make([]byte, 0)) + "with stuff",
	}
	for _, in := range inputs {
		once := SanitizeFilename(in)
		assert.Equal(t, once, SanitizeFilename(once), "not a fixpoint for %q", in)
	}
}

func TestSanitizeFilenameTruncates(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	out := SanitizeFilename(long)
	assert.LessOrEqual(t, len(out), 100)
	assert.Equal(t, out, SanitizeFilename(out))
}

func TestSanitizeFilenameTruncatesOnRunes(t *testing.T) {
	long := ""
	for i := 0; i < 60; i++ {
		long += "ülé"
	}
	out := SanitizeFilename(long)
	assert.True(t, utf8.ValidString(out), "truncation must not split a rune")
	assert.Equal(t, 100, utf8.RuneCountInString(out))
	assert.Equal(t, out, SanitizeFilename(out))
}
