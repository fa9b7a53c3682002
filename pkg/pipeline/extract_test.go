package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractAttachments(t *testing.T) {
	payload := []byte(`{
		"$schema": "/media/file?tip=ignored",
		"lcdInspectionId": "LCD - 000123",
		"driverPhoto": "/media/file?tip=aaa",
		"comments": "no media here",
		"loadPhotos": ["/media/file?tip=bbb", "not a url", "/media/file?tip=ccc"],
		"trailerPhoto": "/media/file?tip=ddd"
	}`)

	atts, err := ExtractAttachments(payload, testSchema())
	require.NoError(t, err)
	require.Len(t, atts, 4)

	// Document order, globally enumerated from 1.
	assert.Equal(t, "aaa", atts[0].AttachmentTIP)
	assert.Equal(t, 1, atts[0].Sequence)
	assert.Equal(t, "driverPhoto", atts[0].Field)

	assert.Equal(t, "bbb", atts[1].AttachmentTIP)
	assert.Equal(t, 2, atts[1].Sequence)
	assert.Equal(t, 1, atts[1].SequenceInField)

	assert.Equal(t, "ccc", atts[2].AttachmentTIP)
	assert.Equal(t, 3, atts[2].Sequence)
	assert.Equal(t, 2, atts[2].SequenceInField)

	assert.Equal(t, "ddd", atts[3].AttachmentTIP)
	assert.Equal(t, 4, atts[3].Sequence)
}

func TestExtractAttachmentsEmpty(t *testing.T) {
	atts, err := ExtractAttachments([]byte(`{"a": 1, "b": "text"}`), testSchema())
	require.NoError(t, err)
	assert.Empty(t, atts)
}

func TestExtractAttachmentsInvalidJSON(t *testing.T) {
	_, err := ExtractAttachments([]byte(`[1,2,3]`), testSchema())
	require.Error(t, err)

	_, err = ExtractAttachments([]byte(`{broken`), testSchema())
	require.Error(t, err)
}

func TestAttachmentTIPFallbackHash(t *testing.T) {
	payload := []byte(`{"photo": "/media/file/abc123"}`)
	atts, err := ExtractAttachments(payload, testSchema())
	require.NoError(t, err)
	require.Len(t, atts, 1)

	// No tip parameter: a stable hash of the URL stands in.
	assert.Contains(t, atts[0].AttachmentTIP, "url-")
	again, err := ExtractAttachments(payload, testSchema())
	require.NoError(t, err)
	assert.Equal(t, atts[0].AttachmentTIP, again[0].AttachmentTIP)
}

func TestStubForFieldOverride(t *testing.T) {
	schema := testSchema()
	schema.AttachmentStubs = map[string]string{"driverPhoto": "drv"}

	assert.Equal(t, "drv", StubForField(schema, "driverPhoto"))
	assert.Equal(t, "load-photos", StubForField(schema, "loadPhotos"))
}

func TestDeriveStub(t *testing.T) {
	tests := []struct {
		field string
		want  string
	}{
		{"driverPhoto", "driver-photo"},
		{"driverPhotoPT3", "driver-photo-t3"},
		{"driverPhotoPT", "driver-photo-t2"},
		{"sidePhotoYT2", "side-photo"},
		{"attachments4", "obs4"},
		{"isTheLoadSecure", "load-secure"},
		{"contactBetweenTheTrailerAndRamp", "trailer-ramp"},
		{"hasTheDriverBeenInducted", "driver-inducted"},
		{"pinsFullyEngagedIntoPlace", "pins"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, deriveStub(tt.field), "field %q", tt.field)
	}
}

func TestDeriveStubTruncationKeepsTag(t *testing.T) {
	stub := deriveStub("extraordinarilyLongDescriptiveFieldNameAboutThingsPT7")
	assert.LessOrEqual(t, len(stub), maxStubLen)
	assert.Regexp(t, `-t7$`, stub)
}
