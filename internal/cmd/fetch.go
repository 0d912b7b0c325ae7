package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/econlens/econlens/internal/config"
	"github.com/econlens/econlens/internal/core"
	"github.com/econlens/econlens/internal/core/provider"
	"github.com/econlens/econlens/internal/observability"
	"github.com/econlens/econlens/internal/output"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <series-id>",
	Short: "Fetch one time series",
	Long:  "Fetch observations for one series through the cache, rate limiter, and retry pipeline",
	Args:  cobra.ExactArgs(1),
	RunE:  runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().String("source", string(core.SourceFRED), "Data source: fred, worldbank")
	fetchCmd.Flags().String("geo", "", "Geography code (e.g. US, DEU)")
	fetchCmd.Flags().String("start", "", "Start date (YYYY-MM-DD)")
	fetchCmd.Flags().String("end", "", "End date (YYYY-MM-DD)")
	fetchCmd.Flags().String("variant", "", "Provider transform variant (e.g. pc1)")
	fetchCmd.Flags().Duration("ttl", 0, "Cache TTL override for this fetch")
	fetchCmd.Flags().Bool("no-cache", false, "Bypass the cache entirely")
	fetchCmd.Flags().String("output", "table", "Output format: table, json, markdown")
	fetchCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	fetchCmd.Flags().String("out-dir", "", "Write output to a directory")
}

func runFetch(cmd *cobra.Command, args []string) error {
	source, err := cmd.Flags().GetString("source")
	if err != nil {
		return err
	}
	geo, err := cmd.Flags().GetString("geo")
	if err != nil {
		return err
	}
	start, err := cmd.Flags().GetString("start")
	if err != nil {
		return err
	}
	end, err := cmd.Flags().GetString("end")
	if err != nil {
		return err
	}
	variant, err := cmd.Flags().GetString("variant")
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

	req := core.SeriesRequest{
		Source:    core.Source(strings.ToLower(strings.TrimSpace(source))),
		SeriesID:  args[0],
		Geography: geo,
		StartDate: start,
		EndDate:   end,
		Variant:   variant,
	}.Normalize()
	if err := req.Validate(); err != nil {
		return err
	}

	ctx := cmd.Context()
	startedAt := time.Now()

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

	report, err := service.FetchSeries(ctx, req, provider.FetchOptions{TTL: ttl, NoCache: noCache})
	if err != nil {
		return err
	}

	stem := fmt.Sprintf("%s.%s", req.Source, sanitizeFilename(req.SeriesID))
	sink, err := resolveSink(cmd, format, stem)
	if err != nil {
		return err
	}
	defer func() { _ = sink.close() }()

	rendered, err := output.NewFormatter(format).FormatSeries(report)
	if err != nil {
		return err
	}
	if rendered != "" {
		if _, err := fmt.Fprintln(sink.writer, rendered); err != nil {
			return err
		}
	}

	if format != output.FormatJSON {
		logFetchOutcome(report.Provenance, len(report.Series.Observations), startedAt)
	}
	return nil
}

func logFetchOutcome(prov core.Provenance, observations int, startedAt time.Time) {
	observability.CLILogger.Info(
		"Fetch complete",
		zap.String("source", string(prov.Source)),
		zap.String("series_id", prov.SeriesID),
		zap.Int("observations", observations),
		zap.Int("attempts", prov.Attempts),
		zap.Bool("from_cache", prov.FromCache),
		zap.Bool("stale", prov.Stale),
		zap.Duration("elapsed", time.Since(startedAt)),
	)
}
