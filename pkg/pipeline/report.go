package pipeline

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/goldstarfreight/inspectetl/pkg/config"
)

// fieldTagRe matches a substitution directive. Conditional tags carry a
// colon and are handled before field substitution runs.
var fieldTagRe = regexp.MustCompile(`<([A-Za-z0-9_]+)>`)

// blankRunRe matches runs of three or more blank lines.
var blankRunRe = regexp.MustCompile(`\n{4,}`)

// conditionalGuard bounds template processing against pathological input.
const conditionalGuard = 1000

// Renderer produces the per-inspection text report from a mapped record.
type Renderer struct {
	now func() time.Time
}

// NewRenderer creates a renderer.
func NewRenderer() *Renderer {
	return &Renderer{now: time.Now}
}

// Render produces the report text. The kind's template is used when
// configured; otherwise the fallback layout lists every mapped field.
func (r *Renderer) Render(schema *config.KindSchema, rec *MappedRecord, rawPayload map[string]any, attachmentCount int) string {
	context := r.buildContext(schema, rec, rawPayload, attachmentCount)

	var out string
	if schema.Template != "" {
		out = r.renderTemplate(schema, context)
	} else {
		out = r.renderFallback(schema, rec, context)
	}

	out = blankRunRe.ReplaceAllString(out, "\n\n\n")
	return out
}

// buildContext merges the record context with the well-known special keys.
func (r *Renderer) buildContext(schema *config.KindSchema, rec *MappedRecord, rawPayload map[string]any, attachmentCount int) map[string]any {
	context := make(map[string]any, len(rec.Context)+5)
	for k, v := range rec.Context {
		context[k] = v
	}
	context["generation_date"] = r.now().Format("2006-01-02 15:04:05")
	context["full_name"] = schema.FullName
	context["abbreviation"] = schema.Abbreviation
	context["attachment_count"] = attachmentCount

	if rawPayload != nil {
		if data, err := json.MarshalIndent(rawPayload, "", "  "); err == nil {
			context["json_payload"] = string(data)
		}
	}
	return context
}

func (r *Renderer) renderTemplate(schema *config.KindSchema, context map[string]any) string {
	out := renderConditionals(schema.Template, func(field string) bool {
		return truthy(context[field], schema.UnknownPlaceholder)
	})

	return fieldTagRe.ReplaceAllStringFunc(out, func(tag string) string {
		field := tag[1 : len(tag)-1]
		value, ok := context[field]
		if !ok {
			return schema.UnknownPlaceholder
		}
		return formatValue(schema, value)
	})
}

// renderConditionals resolves <if:field>...</if:field> blocks innermost
// first: the rightmost open tag can contain no nested block, so it is
// always safe to resolve.
func renderConditionals(s string, truthy func(field string) bool) string {
	for i := 0; i < conditionalGuard; i++ {
		start := strings.LastIndex(s, "<if:")
		if start < 0 {
			return s
		}
		nameEnd := strings.Index(s[start:], ">")
		if nameEnd < 0 {
			return s
		}
		field := s[start+len("<if:") : start+nameEnd]

		closeTag := "</if:" + field + ">"
		closeIdx := strings.Index(s[start:], closeTag)
		if closeIdx < 0 {
			// Unmatched open tag: drop it rather than loop.
			s = s[:start] + s[start+nameEnd+1:]
			continue
		}

		body := ""
		if truthy(field) {
			body = s[start+nameEnd+1 : start+closeIdx]
		}
		s = s[:start] + body + s[start+closeIdx+len(closeTag):]
	}
	return s
}

// renderFallback emits a generic report: header, every mapped field with a
// humanized label, then the raw payload.
func (r *Renderer) renderFallback(schema *config.KindSchema, rec *MappedRecord, context map[string]any) string {
	var b strings.Builder

	title := schema.FullName
	if rec.InspectionID != "" {
		title += " " + rec.InspectionID
	}
	b.WriteString(title + "\n")
	b.WriteString(strings.Repeat("=", len(title)) + "\n\n")
	b.WriteString(fmt.Sprintf("Generated: %v\n", context["generation_date"]))
	if rec.HasDate {
		b.WriteString("Date: " + rec.Date.Format(schema.DateFormat) + "\n")
	}
	b.WriteString("\n")

	for _, f := range schema.Fields {
		value, ok := context[f.Upstream]
		if f.Type == config.ValueHash {
			if resolved, rok := context[f.Upstream+"_resolved"]; rok {
				value, ok = resolved, true
			}
		}
		rendered := schema.UnknownPlaceholder
		if ok {
			rendered = formatValue(schema, value)
		}
		b.WriteString(fieldLabel(f.Upstream) + ": " + rendered + "\n")
	}

	if payload, ok := context["json_payload"].(string); ok {
		b.WriteString("\nRaw Payload:\n")
		b.WriteString(payload + "\n")
	}

	return b.String()
}

// formatValue renders one context value for the report.
func formatValue(schema *config.KindSchema, value any) string {
	switch v := value.(type) {
	case nil:
		return schema.UnknownPlaceholder
	case bool:
		if v {
			return "Yes"
		}
		return "No"
	case time.Time:
		return v.Format(schema.DateFormat)
	case string:
		if v == "" {
			return schema.UnknownPlaceholder
		}
		return v
	case map[string]any, []any:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	default:
		return asString(value)
	}
}

// truthy decides whether a conditional block is included.
func truthy(value any, placeholder string) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		if v == "" || v == placeholder {
			return false
		}
		// Unresolved hash placeholders never satisfy a conditional.
		return !strings.HasPrefix(v, "Unknown (")
	case int:
		return v != 0
	case int64:
		return v != 0
	case float64:
		return v != 0
	case time.Time:
		return !v.IsZero()
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

// fieldLabel humanizes a camelCase upstream field name for the fallback
// report: "vehicleRegistration" becomes "Vehicle Registration".
func fieldLabel(field string) string {
	var b strings.Builder
	for i, r := range field {
		if i == 0 {
			b.WriteRune(unicode.ToUpper(r))
			continue
		}
		if unicode.IsUpper(r) {
			b.WriteRune(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
