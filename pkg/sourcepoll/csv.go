// Package sourcepoll implements the CSV intake: parsing and kind detection,
// the local drop-directory import and the SFTP poll.
package sourcepoll

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// ErrUnrecognizedHeader marks a CSV whose header matches no known kind.
// Such files are quarantined rather than archived.
var ErrUnrecognizedHeader = errors.New("csv header matches no known kind")

// CSVRecord is one intake row: the TIP plus the expected metadata carried
// alongside it.
type CSVRecord struct {
	TIP            string
	InspectionID   string
	InspectionDate *time.Time
}

// ParsedCSV is the outcome of parsing one intake file.
type ParsedCSV struct {
	Kind    string
	Records []CSVRecord
}

// BuildKindRegistry derives the header-detection registry from the kind
// schemas: each kind's id column name, lowercased, maps to its abbreviation.
func BuildKindRegistry(schemas map[string]*config.KindSchema) map[string]string {
	registry := make(map[string]string, len(schemas))
	for abbrev, schema := range schemas {
		registry[strings.ToLower(schema.IDField.Upstream)] = abbrev
	}
	return registry
}

// ParseCSVFile reads one intake CSV. The first column is always the TIP;
// the kind is detected by matching the remaining headers against the
// registry. Rows with an empty TIP are skipped.
func ParseCSVFile(path string, registry map[string]string, schemas map[string]*config.KindSchema) (*ParsedCSV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	kind, idIdx := detectKind(header, registry)
	if kind == "" {
		return nil, ErrUnrecognizedHeader
	}

	dateIdx := -1
	if schema, ok := schemas[kind]; ok {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), schema.DateField.Upstream) {
				dateIdx = i
				break
			}
		}
	}

	parsed := &ParsedCSV{Kind: kind}
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if len(row) == 0 {
			continue
		}

		tip := strings.TrimSpace(row[0])
		if tip == "" {
			continue
		}

		rec := CSVRecord{TIP: tip}
		if idIdx < len(row) {
			rec.InspectionID = strings.TrimSpace(row[idIdx])
		}
		if dateIdx >= 0 && dateIdx < len(row) {
			if t, err := models.ParseDate(row[dateIdx]); err == nil {
				rec.InspectionDate = &t
			}
		}
		parsed.Records = append(parsed.Records, rec)
	}

	return parsed, nil
}

// detectKind matches the header row against the id-column registry,
// case-insensitively and trimmed. Returns the kind abbreviation and the
// matched column index, or "" when nothing matches.
func detectKind(header []string, registry map[string]string) (string, int) {
	for i, h := range header {
		if kind, ok := registry[strings.ToLower(strings.TrimSpace(h))]; ok {
			return kind, i
		}
	}
	return "", -1
}
