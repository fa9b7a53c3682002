package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/goldstarfreight/inspectetl/pkg/models"
)

// ============================================
// HASH DICTIONARY OPERATIONS
// ============================================

// LoadHashEntries returns the full hash dictionary. The resolver
// materializes this into its in-memory cache on first use.
func (s *GORMStore) LoadHashEntries(ctx context.Context) ([]*models.HashEntry, error) {
	var entries []*models.HashEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// ReplaceHashEntries performs a full dictionary refresh: truncate and bulk
// insert inside one transaction, then mark any matching unknown-hash
// sightings resolved. Batched inserts keep the statement count sane for
// large exports.
func (s *GORMStore) ReplaceHashEntries(ctx context.Context, entries []*models.HashEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("1 = 1").Delete(&models.HashEntry{}).Error; err != nil {
			return err
		}
		if len(entries) > 0 {
			if err := tx.CreateInBatches(entries, 500).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		for _, e := range entries {
			if err := tx.Model(&models.UnknownHash{}).
				Where("tip_hash = ? AND lookup_type = ? AND resolved_at IS NULL", e.TIPHash, e.LookupType).
				Updates(map[string]any{
					"resolved_at":    now,
					"resolved_value": e.ResolvedValue,
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpsertHashEntry inserts or updates one dictionary entry. Used by the
// operator path that resolves a previously unknown hash.
func (s *GORMStore) UpsertHashEntry(ctx context.Context, entry *models.HashEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.HashEntry
		err := tx.Where("tip_hash = ? AND lookup_type = ?", entry.TIPHash, entry.LookupType).
			First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(entry).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&existing).
			Updates(map[string]any{
				"resolved_value": entry.ResolvedValue,
				"source_type":    entry.SourceType,
			}).Error
	})
}

// RecordUnknownHash records a sighting of an unresolved hash. The upsert is
// idempotent: repeat sightings keep the first encountered timestamp.
func (s *GORMStore) RecordUnknownHash(ctx context.Context, tipHash string, lookupType models.LookupType, seenAt time.Time) error {
	err := s.db.WithContext(ctx).Create(&models.UnknownHash{
		TIPHash:          tipHash,
		LookupType:       lookupType,
		FirstEncountered: seenAt,
	}).Error
	if err != nil && isUniqueConstraintError(err) {
		return nil
	}
	return err
}

// ListUnknownHashes returns unresolved sightings, oldest first.
func (s *GORMStore) ListUnknownHashes(ctx context.Context) ([]*models.UnknownHash, error) {
	var rows []*models.UnknownHash
	err := s.db.WithContext(ctx).
		Where("resolved_at IS NULL").
		Order("first_encountered ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
