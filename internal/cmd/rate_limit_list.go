package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/econlens/econlens/internal/core/store"
	"github.com/econlens/econlens/internal/output"
)

var (
	rateLimitListAll    bool
	rateLimitListPrefix string
)

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List persisted provider cooldowns",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd, "output-format")
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

		query := store.CooldownQuery{
			All:    rateLimitListAll,
			Prefix: strings.TrimSpace(rateLimitListPrefix),
		}
		if !query.All && query.Prefix == "" {
			query.All = true
		}

		cooldowns, err := db.ListCooldowns(cmd.Context(), query)
		if err != nil {
			return err
		}

		sink, err := resolveSink(cmd, format, "rate-limit.list")
		if err != nil {
			return err
		}
		defer func() { _ = sink.close() }()

		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(cooldowns, "", "  ")
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(sink.writer, string(payload))
			return err
		}

		now := time.Now()
		lines := []string{"Provider Cooldowns", ""}
		if len(cooldowns) == 0 {
			lines = append(lines, "(no persisted cooldowns)")
			_, _ = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
			return nil
		}

		for _, cd := range cooldowns {
			state := "expired"
			if cd.Active(now) {
				state = fmt.Sprintf("active, %s remaining", cd.Until.Sub(now).Round(time.Second))
			}
			lines = append(lines, fmt.Sprintf("%s: until=%s hits=%d (%s)",
				cd.Source, cd.Until.UTC().Format(time.RFC3339), cd.Hits, state))
		}

		_, _ = fmt.Fprint(sink.writer, ascii.DrawBox(strings.Join(lines, "\n"), 0))
		return nil
	},
}

func init() {
	rateLimitListCmd.Flags().String("output-format", string(output.FormatTable), "Output format: table|json")
	rateLimitListCmd.Flags().String("out", "", "Write output to a file (default stdout)")
	rateLimitListCmd.Flags().String("out-dir", "", "Write output to a directory")
	rateLimitListCmd.Flags().BoolVar(&rateLimitListAll, "all", false, "List all sources")
	rateLimitListCmd.Flags().StringVar(&rateLimitListPrefix, "prefix", "", "List sources with matching prefix")
}
