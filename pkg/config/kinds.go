package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

// ValueType tags a field mapping with how its upstream value is interpreted.
type ValueType string

const (
	ValueString   ValueType = "string"
	ValueInt      ValueType = "int"
	ValueFloat    ValueType = "float"
	ValueBool     ValueType = "bool"
	ValueDateTime ValueType = "datetime"
	ValueJSON     ValueType = "json"
	ValueHash     ValueType = "hash"
)

// ParseValueType validates a value type string from config.
func ParseValueType(s string) (ValueType, error) {
	switch ValueType(s) {
	case ValueString, ValueInt, ValueFloat, ValueBool, ValueDateTime, ValueJSON, ValueHash:
		return ValueType(s), nil
	}
	return "", fmt.Errorf("unknown field value type %q", s)
}

// KindConfig is the raw, operator-authored schema of one record kind.
type KindConfig struct {
	// Enabled defaults to true; disabled kinds are skipped by the runner
	// but still recognized by the CSV intake.
	Enabled *bool `mapstructure:"enabled" yaml:"enabled,omitempty"`

	// FullName is the human-readable kind name for reports.
	FullName string `mapstructure:"full_name" yaml:"full_name"`

	// Endpoint is the records service path template; $tip is replaced with
	// the record TIP.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// IDField names the upstream field and store column of the
	// human-readable inspection ID.
	IDField FieldRef `mapstructure:"id_field" yaml:"id_field"`

	// DateField names the upstream field and store column of the
	// inspection date.
	DateField FieldRef `mapstructure:"date_field" yaml:"date_field"`

	// DateFormat is the Go layout used when rendering dates in reports.
	DateFormat string `mapstructure:"date_format" yaml:"date_format,omitempty"`

	// UnknownPlaceholder substitutes unresolvable values in reports.
	UnknownPlaceholder string `mapstructure:"unknown_placeholder" yaml:"unknown_placeholder,omitempty"`

	// Fields are the ordered per-kind mappings from upstream JSON fields to
	// store columns.
	Fields []FieldMappingConfig `mapstructure:"fields" yaml:"fields"`

	// Template is the inline text report template. TemplateFile, when set,
	// takes precedence and is read at schema build time. When both are
	// empty the fallback renderer is used.
	Template     string `mapstructure:"template" yaml:"template,omitempty"`
	TemplateFile string `mapstructure:"template_file" yaml:"template_file,omitempty"`

	// FolderPattern overrides the per-record folder layout.
	// Default: {abbreviation}/{year}/{month}/{date} {inspection_id}
	FolderPattern string `mapstructure:"folder_pattern" yaml:"folder_pattern,omitempty"`

	// FilenamePattern overrides attachment filenames.
	// Default: {abbreviation}_{inspection_id}_{date_compact}_{stub}_{sequence}.jpg
	FilenamePattern string `mapstructure:"filename_pattern" yaml:"filename_pattern,omitempty"`

	// AttachmentStubs overrides the auto-derived filename stub for specific
	// upstream attachment fields.
	AttachmentStubs map[string]string `mapstructure:"attachments" yaml:"attachments,omitempty"`
}

// FieldRef names an upstream field and its store column.
type FieldRef struct {
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
	Column   string `mapstructure:"column" yaml:"column"`
}

// FieldMappingConfig is the raw form of one field mapping.
type FieldMappingConfig struct {
	Upstream string `mapstructure:"upstream" yaml:"upstream"`
	Column   string `mapstructure:"column" yaml:"column"`
	Type     string `mapstructure:"type" yaml:"type"`
	HashType string `mapstructure:"hash_type" yaml:"hash_type,omitempty"`
}

// FieldMapping is the validated, tagged-variant form dispatched on by the
// field mapper.
type FieldMapping struct {
	Upstream string
	Column   string
	Type     ValueType
	HashType models.LookupType
}

// KindSchema is the computed, immutable schema of one record kind. Schemas
// are built eagerly at startup into a map keyed by abbreviation.
type KindSchema struct {
	Abbreviation       string
	FullName           string
	Enabled            bool
	Endpoint           string
	IDField            FieldRef
	DateField          FieldRef
	DateFormat         string
	UnknownPlaceholder string
	Fields             []FieldMapping
	Template           string
	FolderPattern      string
	FilenamePattern    string
	AttachmentStubs    map[string]string
}

// EndpointFor substitutes the TIP into the endpoint template.
func (s *KindSchema) EndpointFor(tip string) string {
	return strings.ReplaceAll(s.Endpoint, "$tip", tip)
}

// Columns returns the store column specs this kind contributes to the wide
// work_items table: the id column, the date column and every mapped field.
func (s *KindSchema) Columns() []store.ColumnSpec {
	cols := []store.ColumnSpec{
		{Name: s.IDField.Column, Kind: store.ColumnText},
		{Name: s.DateField.Column, Kind: store.ColumnTime},
	}
	for _, f := range s.Fields {
		cols = append(cols, store.ColumnSpec{Name: f.Column, Kind: columnKind(f.Type)})
	}
	return cols
}

func columnKind(t ValueType) store.ColumnKind {
	switch t {
	case ValueInt:
		return store.ColumnInt
	case ValueFloat:
		return store.ColumnFloat
	case ValueBool:
		return store.ColumnBool
	case ValueDateTime:
		return store.ColumnTime
	default:
		// string, json and hash land as text; a hash column stores the raw
		// hash, the resolved value only appears in reports.
		return store.ColumnText
	}
}

// BuildSchemas computes the per-kind schemas from the raw config. It is the
// single place kind configuration is validated.
func (c *Config) BuildSchemas() (map[string]*KindSchema, error) {
	schemas := make(map[string]*KindSchema, len(c.Kinds))

	for abbrev, kc := range c.Kinds {
		if abbrev == "" || abbrev != strings.ToUpper(abbrev) {
			return nil, fmt.Errorf("kind abbreviation %q must be non-empty and uppercase", abbrev)
		}
		if kc.Endpoint == "" || !strings.Contains(kc.Endpoint, "$tip") {
			return nil, fmt.Errorf("kind %s: endpoint must contain the $tip marker", abbrev)
		}
		if kc.IDField.Upstream == "" || kc.IDField.Column == "" {
			return nil, fmt.Errorf("kind %s: id_field requires upstream and column", abbrev)
		}
		if kc.DateField.Upstream == "" || kc.DateField.Column == "" {
			return nil, fmt.Errorf("kind %s: date_field requires upstream and column", abbrev)
		}

		schema := &KindSchema{
			Abbreviation:       abbrev,
			FullName:           kc.FullName,
			Enabled:            kc.Enabled == nil || *kc.Enabled,
			Endpoint:           kc.Endpoint,
			IDField:            kc.IDField,
			DateField:          kc.DateField,
			DateFormat:         kc.DateFormat,
			UnknownPlaceholder: kc.UnknownPlaceholder,
			Template:           kc.Template,
			FolderPattern:      kc.FolderPattern,
			FilenamePattern:    kc.FilenamePattern,
			AttachmentStubs:    kc.AttachmentStubs,
		}
		if schema.FullName == "" {
			schema.FullName = abbrev
		}
		if schema.DateFormat == "" {
			schema.DateFormat = "2006-01-02"
		}
		if schema.UnknownPlaceholder == "" {
			schema.UnknownPlaceholder = "Unknown"
		}

		if kc.TemplateFile != "" {
			data, err := os.ReadFile(kc.TemplateFile)
			if err != nil {
				return nil, fmt.Errorf("kind %s: failed to read template file: %w", abbrev, err)
			}
			schema.Template = string(data)
		}

		seen := make(map[string]bool, len(kc.Fields))
		for i, fc := range kc.Fields {
			if fc.Upstream == "" || fc.Column == "" {
				return nil, fmt.Errorf("kind %s: field %d requires upstream and column", abbrev, i)
			}
			vt, err := ParseValueType(fc.Type)
			if err != nil {
				return nil, fmt.Errorf("kind %s: field %s: %w", abbrev, fc.Upstream, err)
			}
			fm := FieldMapping{
				Upstream: fc.Upstream,
				Column:   fc.Column,
				Type:     vt,
			}
			if vt == ValueHash {
				if fc.HashType == "" {
					return nil, fmt.Errorf("kind %s: hash field %s requires hash_type", abbrev, fc.Upstream)
				}
				fm.HashType = models.ParseLookupType(fc.HashType)
			} else if fc.HashType != "" {
				return nil, fmt.Errorf("kind %s: field %s: hash_type is only valid for hash fields", abbrev, fc.Upstream)
			}
			if seen[fc.Column] {
				return nil, fmt.Errorf("kind %s: duplicate store column %q", abbrev, fc.Column)
			}
			seen[fc.Column] = true
			schema.Fields = append(schema.Fields, fm)
		}

		schemas[abbrev] = schema
	}

	return schemas, nil
}

// KindOrderOrDefault returns the configured kind iteration order, defaulting
// to sorted abbreviations.
func (c *Config) KindOrderOrDefault() []string {
	if len(c.Runner.KindOrder) > 0 {
		return c.Runner.KindOrder
	}
	order := make([]string, 0, len(c.Kinds))
	for abbrev := range c.Kinds {
		order = append(order, abbrev)
	}
	sort.Strings(order)
	return order
}

// AllKindColumns returns the union of mapped columns across schemas for the
// startup migration, deduplicated by column name.
func AllKindColumns(schemas map[string]*KindSchema) []store.ColumnSpec {
	seen := make(map[string]bool)
	var cols []store.ColumnSpec
	abbrevs := make([]string, 0, len(schemas))
	for a := range schemas {
		abbrevs = append(abbrevs, a)
	}
	sort.Strings(abbrevs)
	for _, a := range abbrevs {
		for _, col := range schemas[a].Columns() {
			if !seen[col.Name] {
				seen[col.Name] = true
				cols = append(cols, col)
			}
		}
	}
	return cols
}
