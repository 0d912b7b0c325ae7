package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/econlens/econlens/internal/core/store"
	"github.com/econlens/econlens/internal/output"
)

var (
	rateLimitResetAll    bool
	rateLimitResetSource string
	rateLimitResetPrefix string
	rateLimitResetYes    bool
	rateLimitResetDryRun bool
)

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset persisted provider cooldowns",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd, "output-format")
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := store.CooldownQuery{
			All:    rateLimitResetAll,
			Source: strings.TrimSpace(rateLimitResetSource),
			Prefix: strings.TrimSpace(rateLimitResetPrefix),
		}
		if err := query.Validate(); err != nil {
			return err
		}

		if query.All && !rateLimitResetYes && !rateLimitResetDryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.CountCooldowns(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := resolveSink(cmd, format, "rate-limit.reset")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if rateLimitResetDryRun {
			return writeCooldownResetResult(format, sink.writer, matched, 0, true)
		}

		deleted, err := db.ResetCooldowns(cmd.Context(), query)
		if err != nil {
			return err
		}

		return writeCooldownResetResult(format, sink.writer, matched, deleted, false)
	},
}

func writeCooldownResetResult(format output.Format, w io.Writer, matched int, deleted int64, dryRun bool) error {
	result := map[string]any{
		"matched": matched,
		"deleted": deleted,
		"dry_run": dryRun,
	}

	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(payload))
		return err
	}

	if dryRun {
		_, err := fmt.Fprintf(w, "Would clear %d cooldown(s)\n", matched)
		return err
	}
	_, err := fmt.Fprintf(w, "Cleared %d/%d cooldown(s)\n", deleted, matched)
	return err
}

func init() {
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetAll, "all", false, "Reset all sources")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetSource, "source", "", "Reset a single source (exact match)")
	rateLimitResetCmd.Flags().StringVar(&rateLimitResetPrefix, "prefix", "", "Reset sources with matching prefix")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetYes, "yes", false, "Confirm destructive reset")
	rateLimitResetCmd.Flags().BoolVar(&rateLimitResetDryRun, "dry-run", false, "Show what would be cleared")
	rateLimitResetCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitResetCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitResetCmd.Flags().String("out-dir", "", "Write output to a directory")
}
