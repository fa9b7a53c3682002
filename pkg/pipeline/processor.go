package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/metrics"
	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
	"github.com/goldstarfreight/inspectetl/pkg/upstream"
)

// Outcome is the result of one Process call.
type Outcome string

const (
	OutcomeComplete      Outcome = "complete"
	OutcomePartial       Outcome = "partial"
	OutcomeInterrupted   Outcome = "interrupted"
	OutcomeNotFound      Outcome = "not_found"
	OutcomeTransientFail Outcome = "transient_fail"
	OutcomePermanentFail Outcome = "permanent_fail"
)

// TipProcessor drives one record end to end: fetch, map, report, download.
//
// Process never returns an error; every failure mode terminates in a work
// item status update, at most one processing error row, and an Outcome.
type TipProcessor struct {
	store    store.Store
	breaker  *upstream.CircuitBreaker
	client   *upstream.Client
	mapper   *FieldMapper
	renderer *Renderer
	folders  *FolderManager
	download *Downloader
	retry    *RetryScheduler
	journal  *Journal
	schemas  map[string]*config.KindSchema
	upstream config.UpstreamConfig
	metrics  *metrics.Metrics
}

// ProcessorParams collects the processor's collaborators.
type ProcessorParams struct {
	Store      store.Store
	Breaker    *upstream.CircuitBreaker
	Client     *upstream.Client
	Mapper     *FieldMapper
	Renderer   *Renderer
	Folders    *FolderManager
	Downloader *Downloader
	Retry      *RetryScheduler
	Journal    *Journal
	Schemas    map[string]*config.KindSchema
	Upstream   config.UpstreamConfig
	Metrics    *metrics.Metrics
}

// NewTipProcessor wires a processor from its collaborators.
func NewTipProcessor(p ProcessorParams) *TipProcessor {
	return &TipProcessor{
		store:    p.Store,
		breaker:  p.Breaker,
		client:   p.Client,
		mapper:   p.Mapper,
		renderer: p.Renderer,
		folders:  p.Folders,
		download: p.Downloader,
		retry:    p.Retry,
		journal:  p.Journal,
		schemas:  p.Schemas,
		upstream: p.Upstream,
		metrics:  p.Metrics,
	}
}

// Process runs the full pipeline for one work item. Context cancellation is
// the shutdown signal: the in-flight stage finishes and the item is marked
// interrupted.
func (p *TipProcessor) Process(ctx context.Context, item *models.WorkItem) Outcome {
	outcome := p.process(ctx, item)
	p.metrics.ObserveTip(item.Kind, string(outcome))
	p.metrics.SetBreakerState(string(p.breaker.State()))
	return outcome
}

func (p *TipProcessor) process(ctx context.Context, item *models.WorkItem) Outcome {
	tip := item.TIP

	schema, ok := p.schemas[item.Kind]
	if !ok {
		logger.Error("no schema for kind", logger.KeyTIP, tip, logger.KeyKind, item.Kind)
		p.recordError(ctx, tip, models.ErrorTypeAPI, fmt.Sprintf("unknown kind %q", item.Kind), nil)
		if err := p.store.SetWorkItemStatus(ctx, tip, models.StatusFailed); err != nil {
			logger.Error("failed to mark item failed", logger.KeyTIP, tip, logger.KeyError, err)
		}
		return OutcomePermanentFail
	}

	if err := p.breaker.BeforeRequest(); err != nil {
		logger.Info("circuit open, skipping",
			logger.KeyTIP, tip, logger.KeyFailRate, p.breaker.FailureRate())
		return OutcomeTransientFail
	}

	if err := p.store.MarkAttempt(ctx, tip, time.Now()); err != nil {
		logger.Error("failed to mark attempt", logger.KeyTIP, tip, logger.KeyError, err)
		return OutcomeTransientFail
	}

	started := time.Now()
	resp, err := p.client.GetRecord(ctx, schema.EndpointFor(tip))
	p.metrics.ObserveUpstreamLatency("records", time.Since(started))
	if err != nil {
		if ctx.Err() != nil {
			// Shutdown cancelled the fetch; no retry is consumed.
			p.markInterrupted(ctx, tip)
			logger.Info("fetch interrupted by shutdown", logger.KeyTIP, tip)
			return OutcomeInterrupted
		}
		p.breaker.RecordFailure()
		return p.scheduleFailure(ctx, item, models.StatusAPIError, models.ErrorTypeAPI, err)
	}

	if se := upstream.ClassifyStatus(resp.StatusCode, resp.Body); se != nil {
		return p.handleHTTPFailure(ctx, item, se)
	}
	p.breaker.RecordSuccess()

	var payload map[string]any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		p.recordError(ctx, tip, models.ErrorTypeInvalidPayload, err.Error(), nil)
		return p.scheduleFailure(ctx, item, models.StatusAPIError, "", fmt.Errorf("invalid payload: %w", err))
	}

	rec := p.mapper.Map(ctx, schema, tip, payload)

	attachments, err := ExtractAttachments(resp.Body, schema)
	if err != nil {
		p.recordError(ctx, tip, models.ErrorTypeInvalidPayload, err.Error(), nil)
		return p.scheduleFailure(ctx, item, models.StatusAPIError, "", err)
	}

	if err := p.store.MarkAPISuccess(ctx, tip, rec.Columns, string(resp.Body), len(attachments), rec.HasUnknownHashes); err != nil {
		logger.Error("failed to record api success", logger.KeyTIP, tip, logger.KeyError, err)
		return OutcomeTransientFail
	}

	dir, err := p.folders.EnsureInspectionDir(schema, rec)
	if err == nil {
		report := p.renderer.Render(schema, rec, payload, len(attachments))
		err = os.WriteFile(filepath.Join(dir, p.folders.ReportFilename(rec)), []byte(report), 0644)
	}
	if err != nil {
		p.recordError(ctx, tip, models.ErrorTypeFilesystem, err.Error(), nil)
		return p.scheduleFailure(ctx, item, models.StatusFailed, "", err)
	}

	return p.downloadAll(ctx, item, schema, rec, attachments, dir)
}

// downloadAll fetches every attachment in enumeration order and settles the
// item's final status.
func (p *TipProcessor) downloadAll(ctx context.Context, item *models.WorkItem, schema *config.KindSchema, rec *MappedRecord, attachments []ExtractedAttachment, dir string) Outcome {
	tip := item.TIP

	if len(attachments) == 0 {
		if err := p.store.SetWorkItemStatus(ctx, tip, models.StatusComplete); err != nil {
			logger.Error("failed to mark complete", logger.KeyTIP, tip, logger.KeyError, err)
			return OutcomeTransientFail
		}
		p.writeJournal(tip, rec.InspectionID, 0, nil)
		logger.Info("record complete",
			logger.KeyTIP, tip, logger.KeyKind, schema.Abbreviation,
			logger.KeyInspectionID, rec.InspectionID, "attachments", 0)
		return OutcomeComplete
	}

	if err := p.store.SetWorkItemStatus(ctx, tip, models.StatusDownloading); err != nil {
		logger.Error("failed to mark downloading", logger.KeyTIP, tip, logger.KeyError, err)
		return OutcomeTransientFail
	}

	var succeeded []string
	interrupted := false

	for i, att := range attachments {
		if ctx.Err() != nil {
			interrupted = true
			break
		}
		if i > 0 && !sleepInterruptible(ctx, p.download.Pause()) {
			interrupted = true
			break
		}

		filename := p.folders.AttachmentFilename(schema, rec, att.Stub, att.Sequence)
		if err := p.download.Download(ctx, tip, att, filepath.Join(dir, filename)); err != nil {
			errType := models.ErrorTypeAttachmentDownload
			result := "failed"
			if IsValidationError(err) {
				errType = models.ErrorTypeAttachmentValidation
				result = "validation_failed"
			}
			p.metrics.ObserveAttachment(result)
			p.recordError(ctx, tip, errType, err.Error(), map[string]any{
				"attachment_tip": att.AttachmentTIP,
				"sequence":       att.Sequence,
				"url":            att.URL,
			})
			logger.Warn("attachment failed",
				logger.KeyTIP, tip,
				logger.KeyAttachmentTIP, att.AttachmentTIP,
				logger.KeySequence, att.Sequence,
				logger.KeyError, err)
			continue
		}
		p.metrics.ObserveAttachment("complete")
		succeeded = append(succeeded, filename)
	}

	// After a shutdown the run context is cancelled; bookkeeping writes go
	// through a detached context so they still land.
	bookCtx := ctx
	if interrupted {
		bookCtx = context.WithoutCancel(ctx)
	}
	if err := p.store.RefreshAttachmentProgress(bookCtx, tip); err != nil {
		logger.Error("failed to refresh attachment progress", logger.KeyTIP, tip, logger.KeyError, err)
	}

	if interrupted {
		p.markInterrupted(ctx, tip)
		p.writeJournal(tip, rec.InspectionID, len(succeeded), succeeded)
		logger.Info("record interrupted by shutdown",
			logger.KeyTIP, tip, "completed", len(succeeded), "total", len(attachments))
		return OutcomeInterrupted
	}

	p.writeJournal(tip, rec.InspectionID, len(succeeded), succeeded)

	switch {
	case len(succeeded) == len(attachments):
		if err := p.store.SetWorkItemStatus(ctx, tip, models.StatusComplete); err != nil {
			logger.Error("failed to mark complete", logger.KeyTIP, tip, logger.KeyError, err)
			return OutcomeTransientFail
		}
		logger.Info("record complete",
			logger.KeyTIP, tip, logger.KeyKind, schema.Abbreviation,
			logger.KeyInspectionID, rec.InspectionID, "attachments", len(attachments))
		return OutcomeComplete

	case len(succeeded) > 0:
		p.scheduleFailure(ctx, item, models.StatusPartial, "",
			fmt.Errorf("%d of %d attachments failed", len(attachments)-len(succeeded), len(attachments)))
		return OutcomePartial

	default:
		return p.scheduleFailure(ctx, item, models.StatusFailed, "",
			fmt.Errorf("all %d attachments failed", len(attachments)))
	}
}

// handleHTTPFailure maps a classified upstream error onto the status
// machine.
func (p *TipProcessor) handleHTTPFailure(ctx context.Context, item *models.WorkItem, se *upstream.StatusError) Outcome {
	tip := item.TIP

	switch se.Kind {
	case upstream.KindNotFound:
		if err := p.store.SetWorkItemStatus(ctx, tip, models.StatusNotFound); err != nil {
			logger.Error("failed to mark not_found", logger.KeyTIP, tip, logger.KeyError, err)
		}
		logger.Info("record not found upstream", logger.KeyTIP, tip)
		return OutcomeNotFound

	case upstream.KindRateLimited:
		p.breaker.RecordFailure()
		logger.Warn("rate limited, cooling down",
			logger.KeyTIP, tip, "cooldown", p.upstream.RateLimitCooldown.String())
		// The cooldown is outside the retry schedule; the attempt does not
		// count against the retry budget.
		if err := p.store.ScheduleRetry(ctx, tip, models.StatusAPIError, "rate limited (429)", item.RetryCount, nil, false); err != nil {
			logger.Error("failed to requeue rate-limited item", logger.KeyTIP, tip, logger.KeyError, err)
		}
		sleepInterruptible(ctx, p.upstream.RateLimitCooldown)
		return OutcomeTransientFail

	case upstream.KindUnauthorized, upstream.KindForbidden:
		p.breaker.RecordFailure()
		p.recordError(ctx, tip, models.ErrorTypeAuth, se.Error(), nil)
		logger.Error("upstream rejected credentials, freezing item",
			logger.KeyTIP, tip, logger.KeyHTTPStatus, se.StatusCode)
		if err := p.store.ScheduleRetry(ctx, tip, models.StatusAPIError, se.Error(), item.RetryCount, nil, true); err != nil {
			logger.Error("failed to freeze item", logger.KeyTIP, tip, logger.KeyError, err)
		}
		return OutcomePermanentFail

	default:
		p.breaker.RecordFailure()
		return p.scheduleFailure(ctx, item, models.StatusAPIError, models.ErrorTypeAPI, se)
	}
}

// scheduleFailure increments the retry count and either schedules the next
// attempt or freezes the item when the budget is exhausted. An empty
// errType suppresses the processing error row when the caller already
// recorded one.
func (p *TipProcessor) scheduleFailure(ctx context.Context, item *models.WorkItem, status models.Status, errType string, cause error) Outcome {
	tip := item.TIP

	if errType != "" {
		p.recordError(ctx, tip, errType, cause.Error(), nil)
	}

	retryCount := item.RetryCount + 1
	nextRetryAt, permanent := p.retry.Next(retryCount)

	var next *time.Time
	if !permanent {
		next = &nextRetryAt
	}
	if err := p.store.ScheduleRetry(ctx, tip, status, cause.Error(), retryCount, next, permanent); err != nil {
		logger.Error("failed to schedule retry", logger.KeyTIP, tip, logger.KeyError, err)
		return OutcomeTransientFail
	}

	if permanent {
		logger.Error("retry budget exhausted, item permanently failed",
			logger.KeyTIP, tip, logger.KeyAttempts, retryCount, logger.KeyError, cause)
		return OutcomePermanentFail
	}

	logger.Warn("attempt failed, retry scheduled",
		logger.KeyTIP, tip,
		logger.KeyStatus, status,
		logger.KeyAttempts, retryCount,
		"next_retry_at", nextRetryAt.Format(time.RFC3339),
		logger.KeyError, cause)

	if status == models.StatusPartial {
		return OutcomePartial
	}
	return OutcomeTransientFail
}

// markInterrupted records that a shutdown caught the item mid-flight. The
// status write uses a detached context because the run context is already
// cancelled.
func (p *TipProcessor) markInterrupted(ctx context.Context, tip string) {
	if err := p.store.SetWorkItemStatus(context.WithoutCancel(ctx), tip, models.StatusInterrupted); err != nil {
		logger.Error("failed to mark interrupted", logger.KeyTIP, tip, logger.KeyError, err)
	}
}

func (p *TipProcessor) recordError(ctx context.Context, tip, errType, message string, details map[string]any) {
	detailsJSON := ""
	if details != nil {
		if data, err := json.Marshal(details); err == nil {
			detailsJSON = string(data)
		}
	}
	if err := p.store.RecordProcessingError(ctx, tip, errType, message, detailsJSON); err != nil {
		logger.Error("failed to record processing error", logger.KeyTIP, tip, logger.KeyError, err)
	}
}

func (p *TipProcessor) writeJournal(tip, inspectionID string, completed int, filenames []string) {
	if p.journal == nil {
		return
	}
	if err := p.journal.Record(tip, inspectionID, completed, filenames); err != nil {
		logger.Error("failed to write session journal", logger.KeyTIP, tip, logger.KeyError, err)
	}
}

// sleepInterruptible sleeps in one-second slices, returning false as soon
// as the context is cancelled.
func sleepInterruptible(ctx context.Context, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return true
		}
		slice := time.Second
		if remaining < slice {
			slice = remaining
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(slice):
		}
	}
}
