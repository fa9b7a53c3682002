package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/goldstarfreight/inspectetl/internal/logger"
	"github.com/goldstarfreight/inspectetl/pkg/config"
	"github.com/goldstarfreight/inspectetl/pkg/hashes"
	"github.com/goldstarfreight/inspectetl/pkg/metrics"
	"github.com/goldstarfreight/inspectetl/pkg/pipeline"
	"github.com/goldstarfreight/inspectetl/pkg/runner"
	"github.com/goldstarfreight/inspectetl/pkg/sourcepoll"
	"github.com/goldstarfreight/inspectetl/pkg/store"
	"github.com/goldstarfreight/inspectetl/pkg/upstream"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the continuous ingestion pipeline",
	Long: `Start the continuous ingestion pipeline.

The runner loops until interrupted: it polls the SFTP drop site and the local
pending directory for intake CSVs on their configured cadences, then processes
a batch of eligible TIPs per record kind.

The first SIGINT or SIGTERM requests a graceful shutdown: the in-flight record
finishes its current stage and is journaled. A second signal aborts
immediately.

Examples:
  # Start with default config location
  inspectetl start

  # Start with custom config
  inspectetl start --config /etc/inspectetl/config.yaml

  # Override config via environment
  INSPECTETL_LOGGING_LEVEL=DEBUG inspectetl start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	schemas, err := cfg.BuildSchemas()
	if err != nil {
		return fmt.Errorf("invalid kind configuration: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("inspectetl starting",
		"version", Version,
		"kinds", cfg.KindOrderOrDefault(),
		"database", cfg.Database.Type)

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := st.EnsureKindColumns(ctx, config.AllKindColumns(schemas)); err != nil {
		return fmt.Errorf("failed to migrate kind columns: %w", err)
	}
	if err := cfg.Paths.EnsureTree(); err != nil {
		return err
	}

	var m *metrics.Metrics
	var opsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		m = metrics.New()
		opsSrv = metrics.NewServer(cfg.Metrics.Port, m, st)
		opsSrv.Start()
		logger.Info("ops server enabled", "port", cfg.Metrics.Port)
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := opsSrv.Shutdown(shutdownCtx); err != nil {
				logger.Error("ops server shutdown error", logger.KeyError, err)
			}
		}()
	} else {
		logger.Info("ops server disabled")
	}

	journal, err := pipeline.NewJournal(cfg.Paths.JournalDir)
	if err != nil {
		return fmt.Errorf("failed to open session journal: %w", err)
	}

	resolver := hashes.NewResolver(st, cfg.Paths.UnknownHashLog)
	breaker := upstream.NewCircuitBreaker(
		cfg.Breaker.WindowSize,
		cfg.Breaker.FailureThreshold,
		cfg.Breaker.RecoveryThreshold,
		cfg.Breaker.OpenDuration)
	client := upstream.New(cfg.Upstream)

	processor := pipeline.NewTipProcessor(pipeline.ProcessorParams{
		Store:      st,
		Breaker:    breaker,
		Client:     client,
		Mapper:     pipeline.NewFieldMapper(resolver),
		Renderer:   pipeline.NewRenderer(),
		Folders:    pipeline.NewFolderManager(cfg.Paths.OutputRoot),
		Downloader: pipeline.NewDownloader(st, client, cfg.Attachments),
		Retry:      pipeline.NewRetryScheduler(cfg.Retry),
		Journal:    journal,
		Schemas:    schemas,
		Upstream:   cfg.Upstream,
		Metrics:    m,
	})

	importer := sourcepoll.NewImporter(st, schemas, cfg.Paths, m)

	var sftpPoller *sourcepoll.SFTPPoller
	if cfg.SFTP.Enabled {
		sftpPoller = sourcepoll.NewSFTPPoller(cfg.SFTP, importer, cfg.Paths)
		logger.Info("sftp intake enabled",
			"host", cfg.SFTP.Host, "remote_dir", cfg.SFTP.RemoteDir)
	} else {
		logger.Info("sftp intake disabled")
	}

	r := runner.New(runner.Params{
		Config:    cfg.Runner,
		Schemas:   schemas,
		KindOrder: cfg.KindOrderOrDefault(),
		Store:     st,
		Processor: processor,
		Importer:  importer,
		SFTP:      sftpPoller,
	})

	runnerDone := make(chan error, 1)
	go func() {
		runnerDone <- r.Run(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("pipeline is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		logger.Info("shutdown signal received, draining in-flight work")
		cancel()

		// A second signal aborts without waiting for the drain.
		select {
		case <-sigChan:
			logger.Error("second signal received, aborting")
			os.Exit(1)
		case err := <-runnerDone:
			signal.Stop(sigChan)
			if err != nil {
				logger.Error("runner shutdown error", logger.KeyError, err)
				return err
			}
		}
		logger.Info("pipeline stopped gracefully")

	case err := <-runnerDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("runner error", logger.KeyError, err)
			return err
		}
		logger.Info("pipeline stopped")
	}

	return nil
}
