package hashes

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// departmentMarkers classify a site as a department by name.
var departmentMarkers = []string{"- Drivers", "- Admin", "Transport", "Workshop", "Distribution"}

// assetTypeLookup maps upstream asset type labels to lookup types.
var assetTypeLookup = map[string]models.LookupType{
	"PRIME MOVER":   models.LookupVehicle,
	"RIGID":         models.LookupVehicle,
	"VEHICLE":       models.LookupVehicle,
	"LIGHT VEHICLE": models.LookupVehicle,
	"FORKLIFT":      models.LookupVehicle,
	"TRAILER":       models.LookupTrailer,
	"DROPDECK":      models.LookupTrailer,
	"DOLLY":         models.LookupTrailer,
	"SKEL":          models.LookupTrailer,
	"UHF":           models.LookupUHF,
}

// SyncResult summarizes a dictionary refresh.
type SyncResult struct {
	AssetEntries    int
	SiteEntries     int
	CountsByType    map[models.LookupType]int
	UnknownResolved bool
}

// SyncDictionary replaces the full hash dictionary from the asset and site
// exports, marks matching unknown-hash sightings resolved, and invalidates
// the cache. Either path may be empty to skip that export.
func (r *Resolver) SyncDictionary(ctx context.Context, assetPath, sitePath string) (*SyncResult, error) {
	var entries []*models.HashEntry
	result := &SyncResult{CountsByType: make(map[models.LookupType]int)}

	if assetPath != "" {
		assets, err := LoadAssetExport(assetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load asset export: %w", err)
		}
		entries = append(entries, assets...)
		result.AssetEntries = len(assets)
	}
	if sitePath != "" {
		sites, err := LoadSiteExport(sitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load site export: %w", err)
		}
		entries = append(entries, sites...)
		result.SiteEntries = len(sites)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no dictionary entries loaded")
	}

	for _, e := range entries {
		result.CountsByType[e.LookupType]++
	}

	if err := r.store.ReplaceHashEntries(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to replace hash dictionary: %w", err)
	}
	result.UnknownResolved = true
	r.Invalidate()

	logger.Info("hash dictionary synced",
		"asset_entries", result.AssetEntries,
		"site_entries", result.SiteEntries,
		"total", len(entries))
	return result, nil
}

// LoadAssetExport parses an asset export CSV into hash entries. The export
// must carry nogginId, assetName and assetType columns; extra columns are
// ignored.
func LoadAssetExport(path string) ([]*models.HashEntry, error) {
	rows, idx, err := readExport(path, "nogginId", "assetName", "assetType")
	if err != nil {
		return nil, err
	}

	entries := make([]*models.HashEntry, 0, len(rows))
	for _, row := range rows {
		hash := strings.TrimSpace(row[idx["nogginId"]])
		if hash == "" {
			continue
		}
		value := strings.TrimSpace(row[idx["assetName"]])
		if value == "" {
			value = "Unknown"
		}
		entries = append(entries, &models.HashEntry{
			TIPHash:       hash,
			LookupType:    AssetLookupType(row[idx["assetType"]]),
			ResolvedValue: value,
			SourceType:    "asset",
		})
	}
	return entries, nil
}

// LoadSiteExport parses a site export CSV into hash entries. The export
// must carry nogginId, siteName, goldstarId and siteType columns.
func LoadSiteExport(path string) ([]*models.HashEntry, error) {
	rows, idx, err := readExport(path, "nogginId", "siteName", "goldstarId", "siteType")
	if err != nil {
		return nil, err
	}

	entries := make([]*models.HashEntry, 0, len(rows))
	for _, row := range rows {
		hash := strings.TrimSpace(row[idx["nogginId"]])
		if hash == "" {
			continue
		}
		name := strings.TrimSpace(row[idx["siteName"]])
		goldstarID := strings.TrimSpace(row[idx["goldstarId"]])

		value := name
		if goldstarID != "" {
			value = goldstarID + " - " + name
		}

		entries = append(entries, &models.HashEntry{
			TIPHash:       hash,
			LookupType:    SiteLookupType(name, row[idx["siteType"]]),
			ResolvedValue: value,
			SourceType:    "site",
		})
	}
	return entries, nil
}

// AssetLookupType maps an upstream asset type label to a lookup type.
// Unmapped labels resolve to unknown.
func AssetLookupType(assetType string) models.LookupType {
	if t, ok := assetTypeLookup[strings.ToUpper(strings.TrimSpace(assetType))]; ok {
		return t
	}
	return models.LookupUnknown
}

// SiteLookupType classifies a site as a department or a team. Sites whose
// name carries an organizational marker are departments regardless of the
// declared site type.
func SiteLookupType(siteName, siteType string) models.LookupType {
	for _, marker := range departmentMarkers {
		if strings.Contains(siteName, marker) {
			return models.LookupDepartment
		}
	}
	if strings.EqualFold(strings.TrimSpace(siteType), "team") {
		return models.LookupTeam
	}
	return models.LookupDepartment
}

// readExport reads a CSV export and returns its data rows plus a column
// index keyed by the required header names. Headers are matched
// case-insensitively and a UTF-8 BOM on the first header is tolerated.
func readExport(path string, required ...string) ([][]string, map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	idx := make(map[string]int, len(required))
	for _, want := range required {
		found := -1
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), want) {
				found = i
				break
			}
		}
		if found < 0 {
			return nil, nil, fmt.Errorf("export %s missing required column %q", path, want)
		}
		idx[want] = found
	}

	var rows [][]string
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		// Short rows cannot satisfy the required columns; skip them.
		short := false
		for _, i := range idx {
			if i >= len(row) {
				short = true
				break
			}
		}
		if short {
			continue
		}
		rows = append(rows, row)
	}
	return rows, idx, nil
}
