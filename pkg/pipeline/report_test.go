package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestRenderer() *Renderer {
	r := NewRenderer()
	r.now = func() time.Time { return time.Date(2025, 7, 1, 10, 30, 0, 0, time.UTC) }
	return r
}

func TestRenderTemplateSubstitution(t *testing.T) {
	schema := testSchema()
	schema.Template = "Report <lcdInspectionId>\nVehicle: <vehicle_resolved>\nSecure: <loadSecure>\nMissing: <nonexistent>\n"

	rec := testRecord()
	rec.Context["lcdInspectionId"] = "LCD - 000123"
	rec.Context["vehicle_resolved"] = "Truck-7"
	rec.Context["loadSecure"] = true

	out := newTestRenderer().Render(schema, rec, nil, 2)
	assert.Contains(t, out, "Report LCD - 000123")
	assert.Contains(t, out, "Vehicle: Truck-7")
	assert.Contains(t, out, "Secure: Yes")
	assert.Contains(t, out, "Missing: Unknown")
}

func TestRenderSpecialKeys(t *testing.T) {
	schema := testSchema()
	schema.Template = "<full_name> (<abbreviation>)\nGenerated <generation_date>\nAttachments: <attachment_count>\n"

	out := newTestRenderer().Render(schema, testRecord(), nil, 3)
	assert.Contains(t, out, "Load Compliance Check Driver (LCD)")
	assert.Contains(t, out, "Generated 2025-07-01 10:30:00")
	assert.Contains(t, out, "Attachments: 3")
}

func TestRenderConditionalBlocks(t *testing.T) {
	schema := testSchema()
	schema.Template = "start\n<if:comments>Comments: <comments>\n</if:comments>end\n"

	rec := testRecord()
	rec.Context["comments"] = "all good"
	out := newTestRenderer().Render(schema, rec, nil, 0)
	assert.Contains(t, out, "Comments: all good")

	rec.Context["comments"] = ""
	out = newTestRenderer().Render(schema, rec, nil, 0)
	assert.NotContains(t, out, "Comments:")
	assert.Contains(t, out, "start\nend")
}

func TestRenderConditionalUnknownPlaceholder(t *testing.T) {
	schema := testSchema()
	schema.Template = "<if:vehicle_resolved>Vehicle: <vehicle_resolved></if:vehicle_resolved>done"

	rec := testRecord()
	rec.Context["vehicle_resolved"] = "Unknown (VH1)"
	out := newTestRenderer().Render(schema, rec, nil, 0)
	assert.NotContains(t, out, "Vehicle:")

	rec.Context["vehicle_resolved"] = "Unknown"
	out = newTestRenderer().Render(schema, rec, nil, 0)
	assert.NotContains(t, out, "Vehicle:")
}

func TestRenderNestedConditionals(t *testing.T) {
	schema := testSchema()
	schema.Template = "<if:a>A<if:b>B</if:b></if:a>."

	rec := testRecord()
	rec.Context["a"] = "yes"
	rec.Context["b"] = "yes"
	assert.Equal(t, "AB.", newTestRenderer().Render(schema, rec, nil, 0))

	rec.Context["b"] = ""
	assert.Equal(t, "A.", newTestRenderer().Render(schema, rec, nil, 0))

	rec.Context["a"] = ""
	rec.Context["b"] = "yes"
	assert.Equal(t, ".", newTestRenderer().Render(schema, rec, nil, 0))
}

func TestRenderCollapsesBlankRuns(t *testing.T) {
	schema := testSchema()
	schema.Template = "top\n\n\n\n\n\nbottom"

	out := newTestRenderer().Render(schema, testRecord(), nil, 0)
	assert.Equal(t, "top\n\n\nbottom", out)
}

func TestRenderDateFormatting(t *testing.T) {
	schema := testSchema()
	schema.DateFormat = "02/01/2006"
	schema.Template = "Date: <date>"

	rec := testRecord()
	rec.Context["date"] = time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)
	out := newTestRenderer().Render(schema, rec, nil, 0)
	assert.Contains(t, out, "Date: 15/06/2025")
}

func TestRenderFallback(t *testing.T) {
	schema := testSchema()
	schema.Template = ""

	rec := testRecord()
	rec.Context["vehicle"] = "VH1"
	rec.Context["vehicle_resolved"] = "Truck-7"
	rec.Context["loadSecure"] = false
	rec.Context["comments"] = "tight"

	out := newTestRenderer().Render(schema, rec, map[string]any{"k": "v"}, 1)

	assert.True(t, strings.HasPrefix(out, "Load Compliance Check Driver LCD - 000123\n"))
	assert.Contains(t, out, "Vehicle: Truck-7")
	assert.Contains(t, out, "Load Secure: No")
	assert.Contains(t, out, "Comments: tight")
	assert.Contains(t, out, "Raw Payload:")
	assert.Contains(t, out, `"k": "v"`)
}

func TestFieldLabel(t *testing.T) {
	assert.Equal(t, "Vehicle", fieldLabel("vehicle"))
	assert.Equal(t, "Load Secure", fieldLabel("loadSecure"))
	assert.Equal(t, "Vehicle Registration Number", fieldLabel("vehicleRegistrationNumber"))
}
