package commands

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/goldstarfreight/inspectetl/internal/cli/output"
	"github.com/goldstarfreight/inspectetl/pkg/models"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show work queue status",
	Long: `Display work item counts grouped by record kind and status.

Examples:
  # Show the queue as a table
  inspectetl status

  # Output as JSON
  inspectetl status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json|yaml)")
}

// QueueRow is one kind/status bucket of the work queue.
type QueueRow struct {
	Kind   string `json:"kind" yaml:"kind"`
	Status string `json:"status" yaml:"status"`
	Count  int64  `json:"count" yaml:"count"`
}

// AttachmentTotals summarizes attachment rows across all records.
type AttachmentTotals struct {
	Total    int64 `json:"total" yaml:"total"`
	Complete int64 `json:"complete" yaml:"complete"`
	Failed   int64 `json:"failed" yaml:"failed"`
}

// StatusReport is the full payload of the status command.
type StatusReport struct {
	Queue       []QueueRow       `json:"queue" yaml:"queue"`
	Attachments AttachmentTotals `json:"attachments" yaml:"attachments"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	format, err := output.ParseFormat(statusOutput)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	ctx := context.Background()
	counts, err := st.CountsByKindStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query work queue: %w", err)
	}
	attCounts, err := st.CountAttachmentsByStatus(ctx)
	if err != nil {
		return fmt.Errorf("failed to query attachments: %w", err)
	}

	rows := make([]QueueRow, len(counts))
	var total int64
	for i, c := range counts {
		rows[i] = QueueRow{Kind: c.Kind, Status: string(c.Status), Count: c.Count}
		total += c.Count
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Kind != rows[j].Kind {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Status < rows[j].Status
	})

	report := StatusReport{
		Queue: rows,
		Attachments: AttachmentTotals{
			Complete: attCounts[models.AttachmentComplete],
			Failed:   attCounts[models.AttachmentFailed],
		},
	}
	for _, n := range attCounts {
		report.Attachments.Total += n
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(os.Stdout, report)
	case output.FormatYAML:
		return output.PrintYAML(os.Stdout, report)
	default:
		if len(rows) == 0 {
			fmt.Println("Work queue is empty.")
			return nil
		}
		table := output.NewTableData("KIND", "STATUS", "COUNT")
		for _, r := range rows {
			table.AddRow(r.Kind, r.Status, strconv.FormatInt(r.Count, 10))
		}
		if err := output.PrintTable(os.Stdout, table); err != nil {
			return err
		}
		fmt.Printf("\nTotal: %d\n", total)
		fmt.Printf("Attachments: %d total, %d complete, %d failed\n",
			report.Attachments.Total, report.Attachments.Complete, report.Attachments.Failed)
	}
	return nil
}
