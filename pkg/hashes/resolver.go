// Package hashes resolves opaque upstream identifiers (vehicle, trailer,
// team, department, UHF hashes) to human-readable values.
//
// The dictionary is bulk-loaded from the operator-provided asset and site
// exports into the store; the resolver keeps a lazily built in-memory cache
// on top and records every miss for later human resolution.
package hashes

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

type cacheKey struct {
	hash       string
	lookupType models.LookupType
}

// Resolver is the store-backed hash dictionary with an in-memory cache.
//
// The cache is read-mostly: it is materialized from the store on first
// lookup and invalidated as a whole when the dictionary is reloaded. A
// single mutex protects load and invalidation.
type Resolver struct {
	mu     sync.Mutex
	store  store.Store
	cache  map[cacheKey]string
	loaded bool

	// unknownLogPath is the dedicated append-only log of misses.
	unknownLogPath string

	now func() time.Time
}

// NewResolver creates a resolver over the store. The cache stays empty
// until the first lookup.
func NewResolver(st store.Store, unknownLogPath string) *Resolver {
	return &Resolver{
		store:          st,
		unknownLogPath: unknownLogPath,
		now:            time.Now,
	}
}

// Placeholder formats the substitute value for an unresolvable hash.
func Placeholder(hash string) string {
	return fmt.Sprintf("Unknown (%s)", hash)
}

// Lookup resolves a hash to its display value. On a miss it records a
// sighting (idempotently), appends a line to the unknown-hashes log, and
// returns the placeholder with found=false. The tip and inspectionID are
// only used for log attribution.
func (r *Resolver) Lookup(ctx context.Context, lookupType models.LookupType, hash, tip, inspectionID string) (string, bool) {
	if hash == "" {
		return Placeholder(hash), false
	}

	r.mu.Lock()
	if !r.loaded {
		if err := r.loadLocked(ctx); err != nil {
			r.mu.Unlock()
			logger.Error("failed to load hash dictionary", logger.KeyError, err)
			return Placeholder(hash), false
		}
	}
	value, ok := r.cache[cacheKey{hash: hash, lookupType: lookupType}]
	r.mu.Unlock()

	if ok {
		return value, true
	}

	r.recordMiss(ctx, lookupType, hash, tip, inspectionID)
	return Placeholder(hash), false
}

// Invalidate drops the cache; the next lookup reloads from the store.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.cache = nil
	r.loaded = false
	r.mu.Unlock()
}

// loadLocked materializes the full dictionary. Caller holds r.mu.
func (r *Resolver) loadLocked(ctx context.Context) error {
	entries, err := r.store.LoadHashEntries(ctx)
	if err != nil {
		return err
	}
	r.cache = make(map[cacheKey]string, len(entries))
	for _, e := range entries {
		r.cache[cacheKey{hash: e.TIPHash, lookupType: e.LookupType}] = e.ResolvedValue
	}
	r.loaded = true
	logger.Debug("hash dictionary loaded", "entries", len(entries))
	return nil
}

func (r *Resolver) recordMiss(ctx context.Context, lookupType models.LookupType, hash, tip, inspectionID string) {
	seenAt := r.now()

	if err := r.store.RecordUnknownHash(ctx, hash, lookupType, seenAt); err != nil {
		logger.Error("failed to record unknown hash",
			logger.KeyHash, hash, logger.KeyLookupType, lookupType, logger.KeyError, err)
	}

	line := fmt.Sprintf("%s | %s | %s | %s | TIP:%s\n",
		seenAt.Format("2006-01-02 15:04:05"), lookupType, hash, inspectionID, tip)
	if err := r.appendUnknownLog(line); err != nil {
		logger.Error("failed to write unknown-hashes log",
			logger.KeyPath, r.unknownLogPath, logger.KeyError, err)
	}

	logger.Warn("unknown hash",
		logger.KeyHash, hash,
		logger.KeyLookupType, lookupType,
		logger.KeyInspectionID, inspectionID,
		logger.KeyTIP, tip)
}

func (r *Resolver) appendUnknownLog(line string) error {
	if r.unknownLogPath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(r.unknownLogPath), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(r.unknownLogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}
