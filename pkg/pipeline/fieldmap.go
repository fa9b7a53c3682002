// Package pipeline implements the per-record processing stages: field
// mapping, report rendering, folder layout, attachment extraction and
// download, retry scheduling and the orchestrating processor.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/hashes"
	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// MappedRecord is the outcome of mapping one upstream payload through a
// kind schema.
type MappedRecord struct {
	// InspectionID is the human-readable record identifier.
	InspectionID string

	// Date is the record date; HasDate is false when the payload carried
	// none or an unparseable value.
	Date    time.Time
	HasDate bool

	// Columns holds the typed store column values, keyed by column name.
	Columns map[string]any

	// Context is the report template context, keyed by upstream field name.
	// Hash fields appear twice: the raw hash under the field name and the
	// display value under "<field>_resolved".
	Context map[string]any

	// HasUnknownHashes is set when any hash field failed to resolve.
	HasUnknownHashes bool
}

// FieldMapper converts upstream JSON payloads into typed store columns and
// report contexts according to a kind schema.
type FieldMapper struct {
	resolver *hashes.Resolver
}

// NewFieldMapper creates a mapper over the hash resolver.
func NewFieldMapper(resolver *hashes.Resolver) *FieldMapper {
	return &FieldMapper{resolver: resolver}
}

// Map extracts every schema field from the payload. Missing or malformed
// fields never fail the record; they are logged and omitted from Columns so
// the store keeps its previous value.
func (m *FieldMapper) Map(ctx context.Context, schema *config.KindSchema, tip string, payload map[string]any) *MappedRecord {
	rec := &MappedRecord{
		Columns: make(map[string]any),
		Context: make(map[string]any),
	}

	if raw, ok := payload[schema.IDField.Upstream]; ok {
		rec.InspectionID = strings.TrimSpace(asString(raw))
	}
	if rec.InspectionID != "" {
		rec.Columns[schema.IDField.Column] = rec.InspectionID
	}
	rec.Context[schema.IDField.Upstream] = rec.InspectionID

	if raw, ok := payload[schema.DateField.Upstream]; ok {
		if t, err := models.ParseDate(asString(raw)); err == nil {
			rec.Date = t
			rec.HasDate = true
			rec.Columns[schema.DateField.Column] = t
			rec.Context[schema.DateField.Upstream] = t
		} else {
			logger.Warn("unparseable record date",
				logger.KeyTIP, tip,
				logger.KeyKind, schema.Abbreviation,
				"value", asString(raw))
			rec.Context[schema.DateField.Upstream] = asString(raw)
		}
	}

	for _, f := range schema.Fields {
		raw, present := payload[f.Upstream]
		if !present || raw == nil {
			rec.Context[f.Upstream] = nil
			continue
		}

		value, err := convertValue(f.Type, raw)
		if err != nil {
			logger.Warn("field conversion failed",
				logger.KeyTIP, tip,
				logger.KeyKind, schema.Abbreviation,
				"field", f.Upstream,
				logger.KeyError, err)
			rec.Context[f.Upstream] = nil
			continue
		}

		rec.Columns[f.Column] = value
		rec.Context[f.Upstream] = value

		if f.Type == config.ValueHash {
			hash := value.(string)
			resolved, found := m.resolver.Lookup(ctx, f.HashType, hash, tip, rec.InspectionID)
			rec.Context[f.Upstream+"_resolved"] = resolved
			if !found && hash != "" {
				rec.HasUnknownHashes = true
			}
		}
	}

	return rec
}

// convertValue coerces a raw JSON value into the tagged type.
func convertValue(t config.ValueType, raw any) (any, error) {
	switch t {
	case config.ValueString, config.ValueHash:
		return strings.TrimSpace(asString(raw)), nil

	case config.ValueInt:
		switch v := raw.(type) {
		case float64:
			return int64(v), nil
		case json.Number:
			return v.Int64()
		case string:
			return strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		}
		return nil, fmt.Errorf("cannot convert %T to int", raw)

	case config.ValueFloat:
		switch v := raw.(type) {
		case float64:
			return v, nil
		case json.Number:
			return v.Float64()
		case string:
			return strconv.ParseFloat(strings.TrimSpace(v), 64)
		}
		return nil, fmt.Errorf("cannot convert %T to float", raw)

	case config.ValueBool:
		switch v := raw.(type) {
		case bool:
			return v, nil
		case string:
			switch strings.ToLower(strings.TrimSpace(v)) {
			case "true", "yes", "y", "1":
				return true, nil
			case "false", "no", "n", "0", "":
				return false, nil
			}
			return nil, fmt.Errorf("cannot convert %q to bool", v)
		case float64:
			return v != 0, nil
		}
		return nil, fmt.Errorf("cannot convert %T to bool", raw)

	case config.ValueDateTime:
		t, err := models.ParseDate(asString(raw))
		if err != nil {
			return nil, err
		}
		return t, nil

	case config.ValueJSON:
		data, err := json.Marshal(raw)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return nil, fmt.Errorf("unknown value type %q", t)
}

// asString renders a scalar JSON value as a string. Numbers drop a
// trailing .0 so ids read naturally.
func asString(raw any) string {
	switch v := raw.(type) {
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
