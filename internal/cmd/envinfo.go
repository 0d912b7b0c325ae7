package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/econlens/econlens/internal/config"
	"github.com/econlens/econlens/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display comprehensive environment, configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		version := crucible.GetVersion()

		observability.CLILogger.Info("=== EconLens Environment Information ===")
		observability.CLILogger.Info("")

		// Application Info
		identity := GetAppIdentity()
		observability.CLILogger.Info("Application:")
		observability.CLILogger.Info("  Name:       " + identity.BinaryName)
		observability.CLILogger.Info("  Version:    " + versionInfo.Version)
		observability.CLILogger.Info("  Commit:     " + versionInfo.Commit)
		observability.CLILogger.Info("  Built:      " + versionInfo.BuildDate)
		observability.CLILogger.Info("")

		// SSOT Info
		observability.CLILogger.Info("SSOT:")
		observability.CLILogger.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		observability.CLILogger.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		observability.CLILogger.Info("")

		// Runtime Info
		observability.CLILogger.Info("Runtime:")
		observability.CLILogger.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		observability.CLILogger.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		observability.CLILogger.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		observability.CLILogger.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		observability.CLILogger.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return
		}

		// Configuration
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		observability.CLILogger.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		observability.CLILogger.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		observability.CLILogger.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		observability.CLILogger.Info("  DB Driver:      "+cfg.Store.Driver, zap.String("db_driver", cfg.Store.Driver))
		observability.CLILogger.Info("  DB Path:        "+cfg.Store.Path, zap.String("db_path", cfg.Store.Path))
		observability.CLILogger.Info(fmt.Sprintf("  Metrics Port:   %d", cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		observability.CLILogger.Info("  Config File:    "+config.DefaultConfigPath(), zap.String("config_file", config.DefaultConfigPath()))
		observability.CLILogger.Info("")

		// Cache Configuration
		observability.CLILogger.Info("Cache:")
		observability.CLILogger.Info("  Series TTL:     " + cfg.Cache.SeriesTTL.String())
		observability.CLILogger.Info("  Search TTL:     " + cfg.Cache.SearchTTL.String())
		observability.CLILogger.Info("")

		// Fetch Pipeline Configuration
		observability.CLILogger.Info("Fetch:")
		observability.CLILogger.Info(fmt.Sprintf("  Max Attempts:   %d", cfg.Fetch.MaxAttempts))
		observability.CLILogger.Info("  Initial Delay:  " + cfg.Fetch.InitialDelay.String())
		observability.CLILogger.Info("  Max Delay:      " + cfg.Fetch.MaxDelay.String())
		observability.CLILogger.Info(fmt.Sprintf("  Backoff Factor: %.1f", cfg.Fetch.BackoffFactor))
		observability.CLILogger.Info("  Max Wait:       " + cfg.Fetch.MaxWait.String())
		observability.CLILogger.Info(fmt.Sprintf("  Workers:        %d", cfg.Workers))
		observability.CLILogger.Info("")

		// Rate Limits
		observability.CLILogger.Info("Rate Limits:")
		observability.CLILogger.Info(fmt.Sprintf("  Safety Margin:  %.2f", cfg.RateLimitMargin))
		sources := make([]string, 0, len(cfg.RateLimits))
		for source := range cfg.RateLimits {
			sources = append(sources, source)
		}
		sort.Strings(sources)
		for _, source := range sources {
			observability.CLILogger.Info(fmt.Sprintf("  %s: %d req/window", source, cfg.RateLimits[source]))
		}
		observability.CLILogger.Info("")

		// Provider Configuration
		observability.CLILogger.Info("Providers:")
		observability.CLILogger.Info("  FRED Base URL:  " + cfg.Providers.FRED.BaseURL)
		if strings.TrimSpace(cfg.Providers.FRED.APIKey) != "" {
			observability.CLILogger.Info("  FRED API Key:   (set)")
		} else {
			observability.CLILogger.Info("  FRED API Key:   (not set)")
		}
		observability.CLILogger.Info("  WB Base URL:    " + cfg.Providers.WorldBank.BaseURL)
		observability.CLILogger.Info("")

		observability.CLILogger.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
