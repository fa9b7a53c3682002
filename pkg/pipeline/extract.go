package pipeline

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

// mediaURLMarker identifies attachment URLs inside payload values.
const mediaURLMarker = "/media/file"

// maxStubLen bounds auto-derived filename stubs.
const maxStubLen = 30

var (
	ptNumSuffixRe      = regexp.MustCompile(`PT(\d+)$`)
	ptSuffixRe         = regexp.MustCompile(`PT$`)
	ytSuffixRe         = regexp.MustCompile(`YT\d*$`)
	attachmentsFieldRe = regexp.MustCompile(`^attachments(\d+)$`)
	trailingTagRe      = regexp.MustCompile(`-t\d+$`)
	camelBoundaryRe    = regexp.MustCompile(`([a-z0-9])([A-Z])`)
	dashRunRe          = regexp.MustCompile(`-{2,}`)
)

// stubPrefixes are field-name prefixes carrying no filename information.
var stubPrefixes = []string{"contactBetweenThe", "doesThe", "isThe", "hasThe", "is", "has"}

// stubFillerWords are dropped from auto-derived stubs.
var stubFillerWords = map[string]bool{
	"fully": true, "engaged": true, "and": true,
	"the": true, "been": true, "into": true, "place": true,
}

// ExtractedAttachment is one attachment reference found in a payload.
type ExtractedAttachment struct {
	// URL is the attachment URL exactly as it appears in the payload.
	URL string

	// Field is the payload key the URL was found under.
	Field string

	// Stub is the filename fragment derived from the field name.
	Stub string

	// Sequence is the global 1-based enumeration position.
	Sequence int

	// SequenceInField is the 1-based position within the field's list.
	SequenceInField int

	// AttachmentTIP identifies the attachment: the URL's tip query
	// parameter, or a stable hash of the URL when absent.
	AttachmentTIP string
}

// ExtractAttachments walks the top-level payload keys in document order and
// returns every media URL found, globally enumerated from 1. Keys beginning
// with $ are skipped.
func ExtractAttachments(raw []byte, schema *config.KindSchema) ([]ExtractedAttachment, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("invalid payload: %w", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("payload is not a JSON object")
	}

	var out []ExtractedAttachment
	sequence := 0

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("invalid payload: %w", err)
		}
		key := keyTok.(string)

		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("invalid payload value for %q: %w", key, err)
		}

		if strings.HasPrefix(key, "$") {
			continue
		}

		urls := mediaURLs(value)
		if len(urls) == 0 {
			continue
		}

		stub := StubForField(schema, key)
		for i, u := range urls {
			sequence++
			out = append(out, ExtractedAttachment{
				URL:             u,
				Field:           key,
				Stub:            stub,
				Sequence:        sequence,
				SequenceInField: i + 1,
				AttachmentTIP:   attachmentTIP(u),
			})
		}
	}

	return out, nil
}

// mediaURLs returns the media URLs carried by one payload value: a scalar
// string or each string member of a list.
func mediaURLs(value any) []string {
	switch v := value.(type) {
	case string:
		if strings.Contains(v, mediaURLMarker) {
			return []string{v}
		}
	case []any:
		var urls []string
		for _, member := range v {
			if s, ok := member.(string); ok && strings.Contains(s, mediaURLMarker) {
				urls = append(urls, s)
			}
		}
		return urls
	}
	return nil
}

// attachmentTIP extracts the tip query parameter, falling back to a stable
// hash of the URL so re-runs address the same attachment row.
func attachmentTIP(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if tip := u.Query().Get("tip"); tip != "" {
			return tip
		}
	}
	sum := md5.Sum([]byte(rawURL))
	return "url-" + hex.EncodeToString(sum[:])
}

// StubForField returns the filename stub for an attachment field: the
// kind's explicit override when configured, otherwise the auto-derived
// fragment.
func StubForField(schema *config.KindSchema, field string) string {
	if stub, ok := schema.AttachmentStubs[field]; ok {
		return stub
	}
	return deriveStub(field)
}

// deriveStub condenses a payload field name into a short filename fragment.
func deriveStub(field string) string {
	s := field

	if m := attachmentsFieldRe.FindStringSubmatch(s); m != nil {
		return "obs" + m[1]
	}
	s = ptNumSuffixRe.ReplaceAllString(s, "-t$1")
	s = ptSuffixRe.ReplaceAllString(s, "-t2")
	s = ytSuffixRe.ReplaceAllString(s, "")

	for _, prefix := range stubPrefixes {
		if strings.HasPrefix(s, prefix) && len(s) > len(prefix) {
			s = s[len(prefix):]
			break
		}
	}

	s = camelBoundaryRe.ReplaceAllString(s, "$1-$2")
	s = strings.ToLower(s)

	words := strings.Split(s, "-")
	kept := words[:0]
	for _, w := range words {
		if w == "" || stubFillerWords[w] {
			continue
		}
		kept = append(kept, w)
	}
	s = strings.Join(kept, "-")

	s = dashRunRe.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")

	if len(s) > maxStubLen {
		suffix := trailingTagRe.FindString(s)
		head := strings.TrimRight(s[:maxStubLen-len(suffix)], "-")
		s = head + suffix
	}
	return s
}
