package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/goldstarfreight/inspectetl/pkg/hashes"
	"github.com/goldstarfreight/inspectetl/pkg/store"
)

var (
	syncAssetsPath string
	syncSitesPath  string
)

var syncHashesCmd = &cobra.Command{
	Use:   "sync-hashes",
	Short: "Refresh the hash dictionary from export CSVs",
	Long: `Replace the hash dictionary from asset and site export CSVs.

The asset export maps vehicle, trailer and equipment hashes to display names;
the site export maps department and team hashes. Previously logged unknown
hash sightings that now resolve are marked as such.

At least one of --assets and --sites is required.

Examples:
  inspectetl sync-hashes --assets assets.csv --sites sites.csv
  inspectetl sync-hashes --assets assets.csv`,
	RunE: runSyncHashes,
}

func init() {
	syncHashesCmd.Flags().StringVar(&syncAssetsPath, "assets", "", "Path to the asset export CSV")
	syncHashesCmd.Flags().StringVar(&syncSitesPath, "sites", "", "Path to the site export CSV")
}

func runSyncHashes(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() { _ = st.Close() }()

	resolver := hashes.NewResolver(st, cfg.Paths.UnknownHashLog)
	result, err := resolver.SyncDictionary(context.Background(), syncAssetsPath, syncSitesPath)
	if err != nil {
		return err
	}

	fmt.Printf("Asset entries: %d\n", result.AssetEntries)
	fmt.Printf("Site entries:  %d\n", result.SiteEntries)
	for lt, n := range result.CountsByType {
		fmt.Printf("  %-12s %d\n", string(lt)+":", n)
	}
	if result.UnknownResolved {
		fmt.Println("Previously unknown hashes resolved.")
	}
	return nil
}
