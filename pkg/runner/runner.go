// Package runner implements the continuous top-level loop: periodic CSV
// and SFTP intake, then per-kind batches of eligible work items.
package runner

import (
	"context"
	"sync"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/pipeline"
	"github.com/goldstarfreight/inspectetl/pkg/sourcepoll"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

// Processor handles one work item end to end.
type Processor interface {
	Process(ctx context.Context, item *models.WorkItem) pipeline.Outcome
}

// Runner is the continuous processing loop. Cancellation of the Run
// context is the shutdown request: the in-flight item drains, then the
// loop exits.
type Runner struct {
	cfg       config.RunnerConfig
	schemas   map[string]*config.KindSchema
	kindOrder []string
	store     store.Store
	processor Processor
	importer  *sourcepoll.Importer
	sftp      *sourcepoll.SFTPPoller

	cycle int
}

// Params collects the runner's collaborators. SFTP may be nil when the
// remote drop site is disabled.
type Params struct {
	Config    config.RunnerConfig
	Schemas   map[string]*config.KindSchema
	KindOrder []string
	Store     store.Store
	Processor Processor
	Importer  *sourcepoll.Importer
	SFTP      *sourcepoll.SFTPPoller
}

// New creates a runner.
func New(p Params) *Runner {
	return &Runner{
		cfg:       p.Config,
		schemas:   p.Schemas,
		kindOrder: p.KindOrder,
		store:     p.Store,
		processor: p.Processor,
		importer:  p.Importer,
		sftp:      p.SFTP,
	}
}

// Run loops until the context is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	logger.Info("runner started",
		"kinds", r.kindOrder,
		"tips_per_kind_per_cycle", r.cfg.TipsPerKindPerCycle,
		"cycle_sleep", r.cfg.CycleSleep.String(),
		"parallel", r.cfg.Parallel)

	for {
		if ctx.Err() != nil {
			break
		}
		r.RunCycle(ctx)
		if ctx.Err() != nil {
			break
		}
		sleepInterruptible(ctx, r.cfg.CycleSleep)
	}

	logger.Info("runner stopped", logger.KeyCycle, r.cycle)
	return nil
}

// RunCycle executes one full cycle: intake polls on their schedules, then
// one batch per enabled kind.
func (r *Runner) RunCycle(ctx context.Context) {
	r.cycle++
	logger.Debug("cycle starting", logger.KeyCycle, r.cycle)

	if r.sftp != nil && r.cfg.SFTPEveryN > 0 && r.cycle%r.cfg.SFTPEveryN == 0 {
		if _, err := r.sftp.Poll(ctx); err != nil {
			logger.Error("sftp poll failed", logger.KeyError, err)
		}
	}

	if r.importer != nil && r.cfg.CSVEveryN > 0 && r.cycle%r.cfg.CSVEveryN == 0 {
		if _, err := r.importer.ScanPending(ctx); err != nil && ctx.Err() == nil {
			logger.Error("local csv scan failed", logger.KeyError, err)
		}
	}

	if r.cfg.Parallel {
		r.processKindsParallel(ctx)
		return
	}
	for _, kind := range r.kindOrder {
		if ctx.Err() != nil {
			return
		}
		r.processKind(ctx, kind)
	}
}

// processKindsParallel dispatches one batch per kind concurrently. The
// store, breaker and journal are shared-thread-safe; items within a kind
// stay sequential.
func (r *Runner) processKindsParallel(ctx context.Context) {
	var wg sync.WaitGroup
	for _, kind := range r.kindOrder {
		wg.Add(1)
		go func(kind string) {
			defer wg.Done()
			r.processKind(ctx, kind)
		}(kind)
	}
	wg.Wait()
}

// processKind pulls and processes one batch of eligible items for a kind.
func (r *Runner) processKind(ctx context.Context, kind string) {
	schema, ok := r.schemas[kind]
	if !ok || !schema.Enabled {
		return
	}

	items, err := r.store.EligibleWorkItems(ctx, kind, r.cfg.TipsPerKindPerCycle, time.Now())
	if err != nil {
		logger.Error("failed to load eligible work items",
			logger.KeyKind, kind, logger.KeyError, err)
		return
	}
	if len(items) == 0 {
		return
	}

	logger.Info("processing batch",
		logger.KeyKind, kind, "batch_size", len(items), logger.KeyCycle, r.cycle)

	for _, item := range items {
		if ctx.Err() != nil {
			return
		}
		outcome := r.processor.Process(ctx, item)
		logger.Debug("item processed",
			logger.KeyTIP, item.TIP,
			logger.KeyKind, kind,
			logger.KeyOutcome, string(outcome))
	}
}

// sleepInterruptible sleeps in one-second slices, returning early on
// cancellation.
func sleepInterruptible(ctx context.Context, d time.Duration) {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		slice := time.Second
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(slice):
		}
	}
}
