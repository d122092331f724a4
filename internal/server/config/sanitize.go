package config

import "github.com/yndnr/sidus-go/internal/telemetry/logger"

// Sanitize returns a copy of cfg that is safe to log: the secret key is
// reduced to its first and last characters.
func Sanitize(cfg *EmulatorConfig) *EmulatorConfig {
	out := *cfg
	out.Device.SecretKey = logger.MaskValue(out.Device.SecretKey)
	out.Device.ProtocolVersions = append([]int(nil), cfg.Device.ProtocolVersions...)
	return &out
}
