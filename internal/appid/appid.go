package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/econlens/econlens/internal/assets/appidentity"
)

func init() {
	// Registration is best-effort: explicit overrides (Options.ExplicitPath,
	// FULMEN_APP_IDENTITY_PATH) still win, and the embedded copy only matters
	// when no `.fulmen/app.yaml` exists next to the binary.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get resolves the application identity (env prefix, config name, telemetry
// namespace) used across the CLI and server.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}
