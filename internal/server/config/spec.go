// Package config defines the emulator configuration structure.
package config

import "time"

// EmulatorConfig is the root configuration for sidus-emulator.
type EmulatorConfig struct {
	Server ServerSection `koanf:"server" yaml:"server"`
	Device DeviceSection `koanf:"device" yaml:"device"`
	Log    LogSection    `koanf:"log" yaml:"log"`
}

// ServerSection configures the listener.
type ServerSection struct {
	Addr string `koanf:"addr" yaml:"addr"`

	// Path is where the device WebSocket endpoint is mounted.
	// /metrics is always served next to it.
	Path string `koanf:"path" yaml:"path"`

	// TLSCertFile and TLSKeyFile enable wss://. Both or neither.
	// The pair is reloaded when either file changes.
	TLSCertFile string `koanf:"tls_cert_file" yaml:"tls_cert_file,omitempty"`
	TLSKeyFile  string `koanf:"tls_key_file" yaml:"tls_key_file,omitempty"`

	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64 `koanf:"read_limit" yaml:"read_limit"`
}

// DeviceSection configures how the emulated device treats requests.
type DeviceSection struct {
	// SecretKey is the base64 key shared with clients.
	SecretKey string `koanf:"secret_key" yaml:"secret_key"`

	// MaxSkew is how far a token's second may be from the device clock.
	MaxSkew time.Duration `koanf:"max_skew" yaml:"max_skew"`

	// RateLimit is the sustained requests per second allowed on one
	// connection; Burst is the bucket size.
	RateLimit float64 `koanf:"rate_limit" yaml:"rate_limit"`
	Burst     int     `koanf:"burst" yaml:"burst"`

	// NestedIDs makes every other response carry its request id inside
	// an echoed "request" object instead of at the top level.
	NestedIDs bool `koanf:"nested_ids" yaml:"nested_ids"`

	// ProtocolVersions is the answer to get_protocol_versions.
	ProtocolVersions []int `koanf:"protocol_versions" yaml:"protocol_versions"`
}

// LogSection configures logging.
type LogSection struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"`
}
