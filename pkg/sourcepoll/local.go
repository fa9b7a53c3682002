package sourcepoll

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/metrics"
	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

// ImportStats summarizes one intake run.
type ImportStats struct {
	Files      int
	Inserted   int
	Duplicates int
	Quarantine int
	Errors     int
}

// Importer ingests intake CSVs into the work item table and shepherds the
// files through the staging tree.
type Importer struct {
	store    store.Store
	schemas  map[string]*config.KindSchema
	registry map[string]string
	paths    config.PathsConfig
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewImporter creates an importer.
func NewImporter(st store.Store, schemas map[string]*config.KindSchema, paths config.PathsConfig, m *metrics.Metrics) *Importer {
	return &Importer{
		store:    st,
		schemas:  schemas,
		registry: BuildKindRegistry(schemas),
		paths:    paths,
		metrics:  m,
		now:      time.Now,
	}
}

// ScanPending imports every CSV waiting in the local pending directory,
// oldest first. Imported files are archived; files that fail to parse move
// to the error directory (unrecognized headers to quarantine). A failing
// file never aborts the scan.
func (im *Importer) ScanPending(ctx context.Context) (*ImportStats, error) {
	stats := &ImportStats{}

	files, err := listCSVs(im.paths.Pending())
	if err != nil {
		return stats, err
	}

	for _, path := range files {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}
		stats.Files++

		kind, err := im.ImportFile(ctx, path, stats)
		switch {
		case err == nil:
			if archErr := im.archive(path, kind); archErr != nil {
				logger.Error("failed to archive imported file",
					logger.KeyCSVFile, path, logger.KeyError, archErr)
			}

		case errors.Is(err, ErrUnrecognizedHeader):
			stats.Quarantine++
			logger.Error("unrecognized csv header, quarantining", logger.KeyCSVFile, path)
			im.moveTo(path, im.paths.Quarantine())

		default:
			stats.Errors++
			logger.Error("csv import failed", logger.KeyCSVFile, path, logger.KeyError, err)
			im.moveTo(path, im.paths.Error())
		}
	}

	if stats.Files > 0 {
		logger.Info("local csv scan finished",
			"files", stats.Files,
			"inserted", stats.Inserted,
			"duplicates", stats.Duplicates,
			"quarantined", stats.Quarantine,
			"errors", stats.Errors)
	}
	return stats, nil
}

// ImportFile parses one CSV and inserts its rows. Duplicate TIPs are logged
// and skipped; they are not an error. Returns the detected kind.
func (im *Importer) ImportFile(ctx context.Context, path string, stats *ImportStats) (string, error) {
	parsed, err := ParseCSVFile(path, im.registry, im.schemas)
	if err != nil {
		return "", err
	}

	filename := filepath.Base(path)
	now := im.now()

	for _, rec := range parsed.Records {
		exists, err := im.store.WorkItemExists(ctx, rec.TIP)
		if err != nil {
			return parsed.Kind, fmt.Errorf("failed to check for duplicate: %w", err)
		}
		if exists {
			stats.Duplicates++
			im.metrics.ObserveCSVRow(parsed.Kind, "duplicate")
			logger.Warn("duplicate TIP in csv, skipping",
				logger.KeyTIP, rec.TIP,
				logger.KeyKind, parsed.Kind,
				logger.KeyCSVFile, filename)
			continue
		}

		item := &models.WorkItem{
			TIP:                    rec.TIP,
			Kind:                   parsed.Kind,
			Status:                 models.StatusPending,
			SourceFilename:         filename,
			ExpectedInspectionID:   rec.InspectionID,
			ExpectedInspectionDate: rec.InspectionDate,
			CSVImportedAt:          &now,
		}
		if err := im.store.CreateWorkItem(ctx, item); err != nil {
			if errors.Is(err, models.ErrDuplicateWorkItem) {
				stats.Duplicates++
				im.metrics.ObserveCSVRow(parsed.Kind, "duplicate")
				continue
			}
			return parsed.Kind, fmt.Errorf("failed to insert work item %s: %w", rec.TIP, err)
		}
		stats.Inserted++
		im.metrics.ObserveCSVRow(parsed.Kind, "inserted")
	}

	logger.Info("csv imported",
		logger.KeyCSVFile, filename,
		logger.KeyKind, parsed.Kind,
		logger.KeyRowCount, len(parsed.Records))
	return parsed.Kind, nil
}

// archive moves an imported file to the processed directory under the
// timestamped archive name.
func (im *Importer) archive(path, kind string) error {
	if err := os.MkdirAll(im.paths.Processed(), 0755); err != nil {
		return err
	}
	target := filepath.Join(im.paths.Processed(), im.archiveName(path, kind))
	return os.Rename(path, target)
}

// archiveName builds `<abbrev>_<YYYY-MM-DD>_<HHMMSS>_<original-stem>.csv`.
func (im *Importer) archiveName(path, kind string) string {
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	now := im.now()
	return fmt.Sprintf("%s_%s_%s_%s.csv", kind, now.Format("2006-01-02"), now.Format("150405"), stem)
}

func (im *Importer) moveTo(path, dir string) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("failed to create staging directory", logger.KeyPath, dir, logger.KeyError, err)
		return
	}
	if err := os.Rename(path, filepath.Join(dir, filepath.Base(path))); err != nil {
		logger.Error("failed to move csv", logger.KeyCSVFile, path, logger.KeyError, err)
	}
}

// listCSVs returns the .csv files in a directory sorted by modification
// time, oldest first.
func listCSVs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	type fileWithTime struct {
		path  string
		mtime time.Time
	}
	var files []fileWithTime
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".csv") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, fileWithTime{
			path:  filepath.Join(dir, e.Name()),
			mtime: info.ModTime(),
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime.Before(files[j].mtime) })

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.path
	}
	return paths, nil
}
