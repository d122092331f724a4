package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/yndnr/sidus-go/internal/infra/confloader"
)

// DefaultDir returns ~/.sidus.
func DefaultDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".sidus"
	}
	return filepath.Join(homeDir, ".sidus")
}

// DefaultConfigPath returns the default client config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// DefaultProfilePath returns the default profile store path.
func DefaultProfilePath() string {
	return filepath.Join(DefaultDir(), "cli.yaml")
}

// DefaultKeyPath returns the local key used to seal saved secrets.
func DefaultKeyPath() string {
	return filepath.Join(DefaultDir(), "local.key")
}

// Load merges defaults, the YAML file at path, SIDUS_* environment
// variables and overrides, then verifies the result. An empty path means
// DefaultConfigPath; a missing file is not an error.
func Load(path string, overrides map[string]any) (*ClientConfig, error) {
	if path == "" {
		path = DefaultConfigPath()
	}

	loader := confloader.NewLoader(
		confloader.WithDefaults(DefaultsMap()),
		confloader.WithOptionalConfigFile(path),
		confloader.WithOverrides(overrides),
	)

	cfg := Default()
	if err := loader.Load(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Verify(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}
