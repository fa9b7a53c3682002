package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
	"github.com/goldstarfreight/inspectetl/pkg/upstream"
)

// headerProbeSize is how many leading bytes validation inspects.
const headerProbeSize = 10

// Downloader fetches, validates and persists one attachment at a time.
type Downloader struct {
	store  store.Store
	client *upstream.Client
	cfg    config.AttachmentConfig
}

// NewDownloader creates a downloader.
func NewDownloader(st store.Store, client *upstream.Client, cfg config.AttachmentConfig) *Downloader {
	return &Downloader{store: st, client: client, cfg: cfg}
}

// Download runs the full protocol for one attachment: row upsert, fetch,
// temp write, validation, atomic rename, MD5, row completion. A prior
// complete download whose file still validates is skipped untouched.
//
// The returned error is non-nil only for failures worth a ProcessingError
// row; the attachment row itself always reflects the outcome.
func (d *Downloader) Download(ctx context.Context, recordTIP string, att ExtractedAttachment, finalPath string) error {
	existing, err := d.store.GetAttachment(ctx, recordTIP, att.AttachmentTIP)
	if err == nil && existing.Status == models.AttachmentComplete {
		if d.validateFile(existing.FilePath) == nil {
			logger.Debug("attachment already complete, skipping",
				logger.KeyTIP, recordTIP,
				logger.KeyAttachmentTIP, att.AttachmentTIP,
				logger.KeyFilename, existing.Filename)
			return nil
		}
		// File vanished or corrupted since the last run; redownload.
		logger.Warn("complete attachment failed revalidation, redownloading",
			logger.KeyTIP, recordTIP,
			logger.KeyAttachmentTIP, att.AttachmentTIP,
			logger.KeyPath, existing.FilePath)
	} else if err != nil && !errors.Is(err, models.ErrAttachmentNotFound) {
		return fmt.Errorf("failed to read attachment row: %w", err)
	}

	row := &models.Attachment{
		RecordTIP:     recordTIP,
		AttachmentTIP: att.AttachmentTIP,
		Sequence:      att.Sequence,
		Filename:      filenameOf(finalPath),
		FilePath:      finalPath,
	}
	if err := d.store.BeginAttachmentDownload(ctx, row); err != nil {
		return fmt.Errorf("failed to begin attachment download: %w", err)
	}

	started := time.Now()
	if err := d.fetchAndPlace(ctx, att.URL, finalPath); err != nil {
		markErr := d.store.MarkAttachmentFailed(ctx, recordTIP, att.AttachmentTIP, validationStatusFor(err), err.Error())
		if markErr != nil {
			logger.Error("failed to mark attachment failed",
				logger.KeyTIP, recordTIP,
				logger.KeyAttachmentTIP, att.AttachmentTIP,
				logger.KeyError, markErr)
		}
		return err
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return fmt.Errorf("failed to stat downloaded file: %w", err)
	}
	md5Hash, err := fileMD5(finalPath)
	if err != nil {
		return fmt.Errorf("failed to hash downloaded file: %w", err)
	}

	if err := d.store.MarkAttachmentComplete(ctx, recordTIP, att.AttachmentTIP, info.Size(), md5Hash, time.Now()); err != nil {
		return fmt.Errorf("failed to mark attachment complete: %w", err)
	}

	logger.Info("attachment downloaded",
		logger.KeyTIP, recordTIP,
		logger.KeyAttachmentTIP, att.AttachmentTIP,
		logger.KeySequence, att.Sequence,
		logger.KeyFilename, row.Filename,
		logger.KeyFileSize, info.Size(),
		logger.KeyDuration, time.Since(started).String())
	return nil
}

// Pause returns the configured inter-attachment pause.
func (d *Downloader) Pause() time.Duration {
	return d.cfg.Pause
}

// validationError marks a failure of post-download validation as opposed to
// a transport failure.
type validationError struct {
	reason string
}

func (e *validationError) Error() string {
	return "attachment validation failed: " + e.reason
}

// IsValidationError reports whether an attachment failure was a validation
// failure rather than a transport one.
func IsValidationError(err error) bool {
	_, ok := err.(*validationError)
	return ok
}

func validationStatusFor(err error) models.ValidationStatus {
	if IsValidationError(err) {
		return models.ValidationFailed
	}
	return models.ValidationPending
}

// fetchAndPlace downloads to a temp file, validates it and atomically
// renames it into place. The temp file never survives a failure.
func (d *Downloader) fetchAndPlace(ctx context.Context, rawURL, finalPath string) error {
	resp, err := d.client.GetMedia(ctx, rawURL)
	if err != nil {
		return err
	}
	if se := upstream.ClassifyStatus(resp.StatusCode, resp.Body); se != nil {
		return se
	}

	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, resp.Body, 0644); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := d.validateFile(tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to place attachment: %w", err)
	}
	return nil
}

// validateFile checks a downloaded file: it exists, meets the size floor
// and has a readable non-empty header.
func (d *Downloader) validateFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &validationError{reason: "file missing"}
	}
	if info.Size() < d.cfg.MinSizeBytes {
		return &validationError{reason: fmt.Sprintf("size %d below minimum %d", info.Size(), d.cfg.MinSizeBytes)}
	}

	f, err := os.Open(path)
	if err != nil {
		return &validationError{reason: "file unreadable"}
	}
	defer f.Close()

	header := make([]byte, headerProbeSize)
	n, err := f.Read(header)
	if err != nil || n == 0 {
		return &validationError{reason: "empty file header"}
	}
	return nil
}

func fileMD5(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func filenameOf(path string) string {
	return filepath.Base(path)
}
