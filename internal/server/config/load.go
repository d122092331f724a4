package config

import (
	"fmt"

	"github.com/yndnr/sidus-go/internal/infra/confloader"
)

// EnvPrefix is the prefix of emulator environment variables, e.g.
// SIDUS_EMULATOR_DEVICE__SECRET_KEY.
const EnvPrefix = "SIDUS_EMULATOR_"

// Load reads the optional YAML file at path, then the environment, then
// overrides, on top of Default(), and verifies the result.
func Load(path string, overrides map[string]any) (*EmulatorConfig, error) {
	cfg := Default()

	opts := []confloader.Option{
		confloader.WithEnvPrefix(EnvPrefix),
		confloader.WithOverrides(overrides),
	}
	if path != "" {
		opts = append(opts, confloader.WithConfigFile(path))
	}

	if err := confloader.NewLoader(opts...).Load(cfg); err != nil {
		return nil, err
	}
	if err := Verify(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
