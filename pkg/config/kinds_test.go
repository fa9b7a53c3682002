package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

func kindFixture() KindConfig {
	return KindConfig{
		FullName:  "Load Compliance Check Driver/Loader",
		Endpoint:  "/api/v1/records/lcdInspection?tip=$tip",
		IDField:   FieldRef{Upstream: "lcdInspectionId", Column: "lcd_inspection_id"},
		DateField: FieldRef{Upstream: "date", Column: "inspection_date"},
		Fields: []FieldMappingConfig{
			{Upstream: "vehicle", Column: "vehicle_hash", Type: "hash", HashType: "vehicle"},
			{Upstream: "loadSecure", Column: "load_secure", Type: "bool"},
		},
	}
}

func TestBuildSchemas(t *testing.T) {
	cfg := &Config{Kinds: map[string]KindConfig{"LCD": kindFixture()}}
	schemas, err := cfg.BuildSchemas()
	require.NoError(t, err)

	s := schemas["LCD"]
	require.NotNil(t, s)
	assert.Equal(t, "LCD", s.Abbreviation)
	assert.True(t, s.Enabled)
	assert.Equal(t, "2006-01-02", s.DateFormat)
	assert.Equal(t, "Unknown", s.UnknownPlaceholder)
	assert.Equal(t, "/api/v1/records/lcdInspection?tip=aa00", s.EndpointFor("aa00"))

	require.Len(t, s.Fields, 2)
	assert.Equal(t, ValueHash, s.Fields[0].Type)
	assert.Equal(t, models.LookupVehicle, s.Fields[0].HashType)
}

func TestBuildSchemasDisabledKind(t *testing.T) {
	disabled := false
	kc := kindFixture()
	kc.Enabled = &disabled
	cfg := &Config{Kinds: map[string]KindConfig{"LCD": kc}}

	schemas, err := cfg.BuildSchemas()
	require.NoError(t, err)
	assert.False(t, schemas["LCD"].Enabled)
}

func TestBuildSchemasValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*KindConfig)
		wantErr string
	}{
		{"missing tip marker", func(k *KindConfig) { k.Endpoint = "/api/v1/records/x" }, "$tip"},
		{"missing id field", func(k *KindConfig) { k.IDField.Column = "" }, "id_field"},
		{"missing date field", func(k *KindConfig) { k.DateField.Upstream = "" }, "date_field"},
		{"bad value type", func(k *KindConfig) { k.Fields[1].Type = "decimal" }, "decimal"},
		{"hash without hash_type", func(k *KindConfig) { k.Fields[0].HashType = "" }, "hash_type"},
		{"hash_type on non-hash", func(k *KindConfig) { k.Fields[1].HashType = "vehicle" }, "hash_type"},
		{"duplicate column", func(k *KindConfig) { k.Fields[1].Column = "vehicle_hash" }, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kc := kindFixture()
			tt.mutate(&kc)
			cfg := &Config{Kinds: map[string]KindConfig{"LCD": kc}}
			_, err := cfg.BuildSchemas()
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestBuildSchemasRejectsLowercaseAbbreviation(t *testing.T) {
	cfg := &Config{Kinds: map[string]KindConfig{"lcd": kindFixture()}}
	_, err := cfg.BuildSchemas()
	assert.ErrorContains(t, err, "uppercase")
}

func TestKindOrderOrDefault(t *testing.T) {
	cfg := &Config{Kinds: map[string]KindConfig{
		"TA": kindFixture(), "LCD": kindFixture(), "SO": kindFixture(),
	}}
	assert.Equal(t, []string{"LCD", "SO", "TA"}, cfg.KindOrderOrDefault())

	cfg.Runner.KindOrder = []string{"SO", "LCD", "TA"}
	assert.Equal(t, []string{"SO", "LCD", "TA"}, cfg.KindOrderOrDefault())
}

func TestAllKindColumnsDeduplicates(t *testing.T) {
	a := kindFixture()
	b := kindFixture()
	b.IDField = FieldRef{Upstream: "trailerAuditId", Column: "trailer_audit_id"}

	cfg := &Config{Kinds: map[string]KindConfig{"LCD": a, "TA": b}}
	schemas, err := cfg.BuildSchemas()
	require.NoError(t, err)

	cols := AllKindColumns(schemas)
	names := make(map[string]store.ColumnKind, len(cols))
	for _, c := range cols {
		_, dup := names[c.Name]
		assert.False(t, dup, "duplicate column %s", c.Name)
		names[c.Name] = c.Kind
	}

	// Shared columns appear once; each id column appears.
	assert.Contains(t, names, "lcd_inspection_id")
	assert.Contains(t, names, "trailer_audit_id")
	assert.Contains(t, names, "inspection_date")
	assert.Equal(t, store.ColumnBool, names["load_secure"])
	assert.Equal(t, store.ColumnTime, names["inspection_date"])
}
