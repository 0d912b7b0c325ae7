package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/econlens/econlens/internal/metrics"
	"github.com/econlens/econlens/internal/output"
)

var (
	cacheStatsOutput string
	cacheClearYes    bool
	cacheClearDryRun bool
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the payload cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache occupancy and freshness",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(cacheStatsOutput)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.CacheStats(cmd.Context())
		if err != nil {
			return err
		}

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(stats, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(payload))
			return nil
		}

		lines := []string{
			"Cache Statistics",
			"",
			fmt.Sprintf("Entries:  %d total, %d active, %d expired", stats.Total, stats.Active, stats.Expired),
			fmt.Sprintf("Size:     %d bytes", stats.SizeBytes),
		}
		if len(stats.BySource) > 0 {
			lines = append(lines, "")
			sources := make([]string, 0, len(stats.BySource))
			for source := range stats.BySource {
				sources = append(sources, source)
			}
			sort.Strings(sources)
			for _, source := range sources {
				lines = append(lines, fmt.Sprintf("%s: %d", source, stats.BySource[source]))
			}
		}
		fmt.Print(ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

var cacheSweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove expired cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		removed, err := db.SweepExpired(cmd.Context())
		if err != nil {
			return err
		}
		metrics.RecordCacheSweep(removed)

		fmt.Printf("Swept %d expired entr(ies)\n", removed)
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cache entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		stats, err := db.CacheStats(cmd.Context())
		if err != nil {
			return err
		}

		if cacheClearDryRun {
			fmt.Printf("Would delete %d entr(ies)\n", stats.Total)
			return nil
		}
		if !cacheClearYes {
			return errors.New("cache clear requires --yes (or use --dry-run)")
		}

		deleted, err := db.ClearCache(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("Deleted %d/%d entr(ies)\n", deleted, stats.Total)
		return nil
	},
}

func init() {
	cacheStatsCmd.Flags().StringVar(&cacheStatsOutput, "output-format", string(output.FormatTable), "Output format: table|json")
	cacheClearCmd.Flags().BoolVar(&cacheClearYes, "yes", false, "Confirm destructive clear")
	cacheClearCmd.Flags().BoolVar(&cacheClearDryRun, "dry-run", false, "Show what would be deleted")

	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheSweepCmd)
	cacheCmd.AddCommand(cacheClearCmd)
	rootCmd.AddCommand(cacheCmd)
}
