package hashes

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

func newTestStore(t *testing.T) *store.GORMStore {
	t.Helper()
	st, err := store.New(&store.Config{
		Type:   store.DatabaseTypeSQLite,
		SQLite: store.SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestResolverLookupHit(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.ReplaceHashEntries(ctx, []*models.HashEntry{
		{TIPHash: "abc", LookupType: models.LookupVehicle, ResolvedValue: "Truck 42"},
	}))

	r := NewResolver(st, "")
	value, found := r.Lookup(ctx, models.LookupVehicle, "abc", "tip-1", "INS-1")
	assert.True(t, found)
	assert.Equal(t, "Truck 42", value)
}

func TestResolverLookupMiss(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	logPath := filepath.Join(t.TempDir(), "unknown_hashes.log")

	r := NewResolver(st, logPath)
	value, found := r.Lookup(ctx, models.LookupTrailer, "deadbeef", "tip-2", "INS-2")
	assert.False(t, found)
	assert.Equal(t, "Unknown (deadbeef)", value)

	// The sighting is recorded once, repeats stay idempotent.
	_, _ = r.Lookup(ctx, models.LookupTrailer, "deadbeef", "tip-2", "INS-2")
	rows, err := st.ListUnknownHashes(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "deadbeef", rows[0].TIPHash)
	assert.Equal(t, models.LookupTrailer, rows[0].LookupType)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deadbeef")
	assert.Contains(t, string(data), "TIP:tip-2")
}

func TestResolverTypeScoping(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	require.NoError(t, st.ReplaceHashEntries(ctx, []*models.HashEntry{
		{TIPHash: "abc", LookupType: models.LookupVehicle, ResolvedValue: "Truck 42"},
	}))

	r := NewResolver(st, "")
	// Same hash under a different lookup type is a miss.
	value, found := r.Lookup(ctx, models.LookupTeam, "abc", "tip-1", "INS-1")
	assert.False(t, found)
	assert.Equal(t, "Unknown (abc)", value)
}

func TestResolverEmptyHash(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, "")

	value, found := r.Lookup(context.Background(), models.LookupVehicle, "", "tip-1", "INS-1")
	assert.False(t, found)
	assert.Equal(t, "Unknown ()", value)

	rows, err := st.ListUnknownHashes(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestResolverInvalidate(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewResolver(st, "")

	_, found := r.Lookup(ctx, models.LookupVehicle, "abc", "tip-1", "INS-1")
	assert.False(t, found)

	require.NoError(t, st.ReplaceHashEntries(ctx, []*models.HashEntry{
		{TIPHash: "abc", LookupType: models.LookupVehicle, ResolvedValue: "Truck 42"},
	}))

	// Stale cache until invalidated.
	_, found = r.Lookup(ctx, models.LookupVehicle, "abc", "tip-1", "INS-1")
	assert.False(t, found)

	r.Invalidate()
	value, found := r.Lookup(ctx, models.LookupVehicle, "abc", "tip-1", "INS-1")
	assert.True(t, found)
	assert.Equal(t, "Truck 42", value)
}

func TestSyncDictionary(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	r := NewResolver(st, "")

	// A prior miss gets resolved by the refresh.
	_, found := r.Lookup(ctx, models.LookupVehicle, "abc123", "tip-1", "INS-1")
	assert.False(t, found)

	assetPath := writeCSV(t, "assets.csv",
		"nogginId,assetName,assetType\nabc123,Truck 42,PRIME MOVER\n")
	sitePath := writeCSV(t, "sites.csv",
		"nogginId,siteName,goldstarId,siteType\ns1,Night Crew,,team\n")

	result, err := r.SyncDictionary(ctx, assetPath, sitePath)
	require.NoError(t, err)
	assert.Equal(t, 1, result.AssetEntries)
	assert.Equal(t, 1, result.SiteEntries)
	assert.Equal(t, 1, result.CountsByType[models.LookupVehicle])
	assert.Equal(t, 1, result.CountsByType[models.LookupTeam])

	value, found := r.Lookup(ctx, models.LookupVehicle, "abc123", "tip-1", "INS-1")
	assert.True(t, found)
	assert.Equal(t, "Truck 42", value)

	rows, err := st.ListUnknownHashes(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows, "resolved sightings leave the unresolved list")
}

func TestSyncDictionaryNoInputs(t *testing.T) {
	st := newTestStore(t)
	r := NewResolver(st, "")
	_, err := r.SyncDictionary(context.Background(), "", "")
	require.Error(t, err)
}
