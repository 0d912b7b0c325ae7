package observability_test

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/econlens/econlens/internal/observability"
)

func TestLoggerInitialization(t *testing.T) {
	t.Run("CLI logger", func(t *testing.T) {
		observability.InitCLILogger("econlens-test", false)

		if observability.CLILogger == nil {
			t.Fatal("CLI logger should not be nil after initialization")
		}

		observability.CLILogger.Info("fetch pipeline ready",
			zap.String("source", "fred"))
	})

	t.Run("server logger", func(t *testing.T) {
		observability.InitServerLogger("econlens-test", "info")

		if observability.ServerLogger == nil {
			t.Fatal("Server logger should not be nil after initialization")
		}

		observability.ServerLogger.Info("request handled",
			zap.String("component", "server"),
			zap.Int("status", 200))
	})

	t.Run("CLI logger at debug level", func(t *testing.T) {
		logger, err := logging.NewCLI("econlens-verbose-test")
		if err != nil {
			t.Fatalf("Failed to create logger: %v", err)
		}

		logger.SetLevel(logging.DEBUG)
		logger.Debug("limiter wait",
			zap.String("source", "worldbank"))
	})

	t.Run("structured profile with correlation middleware", func(t *testing.T) {
		// Mirrors the config InitServerLogger builds.
		config := &logging.LoggerConfig{
			Profile:      logging.ProfileStructured,
			DefaultLevel: "INFO",
			Service:      "econlens-correlation-test",
			Environment:  "test",
			Middleware: []logging.MiddlewareConfig{
				{
					Name:    "correlation",
					Enabled: true,
					Order:   100,
					Config:  make(map[string]any),
				},
			},
			Sinks: []logging.SinkConfig{
				{
					Type:   "console",
					Format: "json",
					Console: &logging.ConsoleSinkConfig{
						Stream:   "stderr",
						Colorize: false,
					},
				},
			},
		}

		logger, err := logging.New(config)
		if err != nil {
			t.Fatalf("Failed to create structured logger: %v", err)
		}

		logger.Info("correlation test",
			zap.String("feature", "correlation"))
	})
}

func TestEmbeddedCrucibleVersions(t *testing.T) {
	t.Run("version access", func(t *testing.T) {
		version := crucible.GetVersion()

		if version.Gofulmen == "" {
			t.Error("Gofulmen version should not be empty")
		}
		if version.Crucible == "" {
			t.Error("Crucible version should not be empty")
		}
	})

	t.Run("version string", func(t *testing.T) {
		versionStr := crucible.GetVersionString()
		if versionStr == "" {
			t.Error("Version string should not be empty")
		}
	})

	t.Run("registries reachable", func(t *testing.T) {
		// The version command and config loader both read these.
		if crucible.SchemaRegistry == nil {
			t.Fatal("SchemaRegistry should not be nil")
		}
		if crucible.SchemaRegistry.Observability() == nil {
			t.Fatal("Observability schemas should not be nil")
		}
		if crucible.ConfigRegistry == nil {
			t.Fatal("ConfigRegistry should not be nil")
		}
	})
}

func TestLoggerSchemaValidation(t *testing.T) {
	// logging.New validates the config against embedded crucible schemas;
	// a schema drift would fail here before it fails in the CLI.
	config := &logging.LoggerConfig{
		Profile:      logging.ProfileSimple,
		DefaultLevel: "INFO",
		Service:      "econlens-schema-test",
		Environment:  "test",
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: "console",
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
	}

	logger, err := logging.New(config)
	if err != nil {
		t.Fatalf("Failed to create logger (schema validation failed): %v", err)
	}
	if logger == nil {
		t.Fatal("Logger should not be nil after creation")
	}
}
