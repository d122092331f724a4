// Package config provides the sidus-emulator configuration.
//
//   - spec.go: EmulatorConfig struct definition
//   - default.go: Default configuration values
//   - verify.go: Validation (addresses, TLS pair, secret key, limits)
//   - sanitize.go: Log sanitization (hide the secret key)
//
// Configuration is loaded via internal/infra/confloader from a YAML file,
// SIDUS_EMULATOR_* environment variables and flags.
package config
