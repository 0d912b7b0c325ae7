package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/econlens/econlens/internal/appid"
)

func TestAppIdentityLoading(t *testing.T) {
	ctx := context.Background()
	identity, err := appid.Get(ctx)
	if err != nil {
		t.Fatalf("Failed to load app identity: %v", err)
	}
	if identity == nil {
		t.Fatal("App identity is nil")
	}

	fields := map[string]string{
		"Vendor":     identity.Vendor,
		"BinaryName": identity.BinaryName,
		"EnvPrefix":  identity.EnvPrefix,
		"ConfigName": identity.ConfigName,
	}
	for name, value := range fields {
		if value == "" {
			t.Errorf("App identity field %s is empty", name)
		}
	}

	// Env var specs and the admin token lookup both append to the prefix,
	// so it must carry the trailing underscore.
	if identity.EnvPrefix != "" && !strings.HasSuffix(identity.EnvPrefix, "_") {
		t.Errorf("Expected env_prefix to end with underscore, got '%s'", identity.EnvPrefix)
	}
}
