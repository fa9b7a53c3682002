package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goldstarfreight/inspectetl/pkg/sourcepoll"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

var importTruncate bool

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import intake CSVs from the pending directory",
	Long: `Run one pass over the local pending directory and import every intake
CSV found there. Imported files are archived, unrecognized files are
quarantined.

This is the one-shot form of the intake the runner performs periodically;
use it to backfill a batch without starting the pipeline.

Examples:
  # Import whatever is pending
  inspectetl import

  # Empty the work queue tables first, then import
  inspectetl import --truncate`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().BoolVar(&importTruncate, "truncate", false, "Empty the work item, attachment and error tables before importing")
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	schemas, err := cfg.BuildSchemas()
	if err != nil {
		return fmt.Errorf("invalid kind configuration: %w", err)
	}

	ctx := context.Background()

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	if err := cfg.Paths.EnsureTree(); err != nil {
		return err
	}

	if importTruncate {
		if err := st.TruncateIntake(ctx); err != nil {
			return fmt.Errorf("failed to truncate intake: %w", err)
		}
		fmt.Println("Work queue tables emptied.")
	}

	importer := sourcepoll.NewImporter(st, schemas, cfg.Paths, nil)
	stats, err := importer.ScanPending(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Files:       %d\n", stats.Files)
	fmt.Printf("Inserted:    %d\n", stats.Inserted)
	fmt.Printf("Duplicates:  %d\n", stats.Duplicates)
	fmt.Printf("Quarantined: %d\n", stats.Quarantine)
	fmt.Printf("Errors:      %d\n", stats.Errors)
	return nil
}
