package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/econlens/econlens/internal/config"
	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/provider"
	"github.com/econlens/econlens/internal/output"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search a provider's series catalog",
	Args:  cobra.ExactArgs(1),
	RunE:  runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().String("source", string(core.SourceFRED), "Data source: fred, worldbank")
	searchCmd.Flags().Duration("ttl", 0, "Cache TTL override for this search")
	searchCmd.Flags().Bool("no-cache", false, "Bypass the cache entirely")
	searchCmd.Flags().String("output", "table", "Output format: table, json, markdown")
	searchCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	searchCmd.Flags().String("out-dir", "", "Write output to a directory")
}

func runSearch(cmd *cobra.Command, args []string) error {
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	ttl, err := cmd.Flags().GetDuration("ttl")
	if err != nil {
		return err
	}
	noCache, err := cmd.Flags().GetBool("no-cache")
	if err != nil {
		return err
	}
	format, err := resolveOutputFormat(cmd, "output")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	db, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer db.Close() // nolint:errcheck // best-effort cleanup; errors logged internally

	cfg := config.GetConfig()
	if cfg == nil {
		return errors.New("config not loaded")
	}

	service := buildService(cfg, db)

	report, err := service.Search(ctx, source, args[0], provider.FetchOptions{TTL: ttl, NoCache: noCache})
	if err != nil {
		return err
	}

	stem := fmt.Sprintf("%s.search.%s", report.Result.Source, sanitizeFilename(args[0]))
	sink, err := resolveSink(cmd, format, stem)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rendered, err := output.NewFormatter(format).FormatSearch(report)
	if err != nil {
		return err
	}
	if rendered != "" {
		if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
			return err
		}
	}
	return nil
}
