package config

import "time"

// Default configuration values.
const (
	DefaultAddr      = "127.0.0.1:12345"
	DefaultPath      = "/"
	DefaultReadLimit = 64 << 10

	DefaultMaxSkew   = 5 * time.Second
	DefaultRateLimit = 10
	DefaultBurst     = 20

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultProtocolVersions is what the emulator reports by default.
var DefaultProtocolVersions = []int{2}

// Default returns the default emulator configuration. It has no secret
// key; one must be configured.
func Default() *EmulatorConfig {
	return &EmulatorConfig{
		Server: ServerSection{
			Addr:      DefaultAddr,
			Path:      DefaultPath,
			ReadLimit: DefaultReadLimit,
		},
		Device: DeviceSection{
			MaxSkew:          DefaultMaxSkew,
			RateLimit:        DefaultRateLimit,
			Burst:            DefaultBurst,
			ProtocolVersions: append([]int(nil), DefaultProtocolVersions...),
		},
		Log: LogSection{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
