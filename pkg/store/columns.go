package store

import (
	"context"
	"fmt"
	"regexp"
)

// ColumnKind is the storage type of a dynamically added mapped column.
type ColumnKind string

const (
	ColumnText  ColumnKind = "text"
	ColumnInt   ColumnKind = "int"
	ColumnFloat ColumnKind = "float"
	ColumnBool  ColumnKind = "bool"
	ColumnTime  ColumnKind = "time"
)

// ColumnSpec describes one per-kind mapped column of the work_items table.
type ColumnSpec struct {
	Name string
	Kind ColumnKind
}

var columnNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// sqlType returns the column type for the active dialect.
func (s *GORMStore) sqlType(kind ColumnKind) string {
	pg := s.db.Dialector.Name() == "postgres"
	switch kind {
	case ColumnInt:
		return "BIGINT"
	case ColumnFloat:
		if pg {
			return "DOUBLE PRECISION"
		}
		return "REAL"
	case ColumnBool:
		return "BOOLEAN"
	case ColumnTime:
		if pg {
			return "TIMESTAMPTZ"
		}
		return "DATETIME"
	default:
		return "TEXT"
	}
}

// EnsureKindColumns adds any missing per-kind mapped columns to the
// work_items table. The table is wide by design: every record kind
// contributes its own nullable column set, derived from configuration rather
// than from the WorkItem struct, so migration happens here instead of in
// AutoMigrate.
//
// Column names come from operator config and are restricted to a safe
// identifier shape before being interpolated into DDL.
func (s *GORMStore) EnsureKindColumns(ctx context.Context, cols []ColumnSpec) error {
	for _, col := range cols {
		if !columnNameRe.MatchString(col.Name) {
			return fmt.Errorf("invalid mapped column name %q", col.Name)
		}
		if s.db.Migrator().HasColumn("work_items", col.Name) {
			continue
		}
		ddl := fmt.Sprintf("ALTER TABLE work_items ADD COLUMN %s %s", col.Name, s.sqlType(col.Kind))
		if err := s.db.WithContext(ctx).Exec(ddl).Error; err != nil {
			return fmt.Errorf("failed to add column %s: %w", col.Name, err)
		}
	}
	return nil
}
