package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/internal/core/service"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/pkg/token"
)

// ClientConfig is the configuration for sidusctl (~/.sidus/config.yaml).
type ClientConfig struct {
	// Profile names a saved profile to use instead of the store's current one.
	Profile string `koanf:"profile" yaml:"profile,omitempty"`

	// Output is the default output format: table, json or yaml.
	Output string `koanf:"output" yaml:"output"`

	Device  DeviceConfig  `koanf:"device" yaml:"device"`
	Request RequestConfig `koanf:"request" yaml:"request"`
	Log     LogConfig     `koanf:"log" yaml:"log"`
	Monitor MonitorConfig `koanf:"monitor" yaml:"monitor"`
}

// DeviceConfig overrides the device settings of the selected profile.
type DeviceConfig struct {
	URL              string        `koanf:"url" yaml:"url,omitempty"`
	SecretKey        string        `koanf:"secret_key" yaml:"secret_key,omitempty"`
	NodeID           string        `koanf:"node_id" yaml:"node_id,omitempty"`
	CAFile           string        `koanf:"ca_file" yaml:"ca_file,omitempty"`
	Insecure         bool          `koanf:"insecure" yaml:"insecure,omitempty"`
	HandshakeTimeout time.Duration `koanf:"handshake_timeout" yaml:"handshake_timeout"`

	// ReadLimit caps one inbound frame in bytes; 0 disables the cap. A
	// larger frame closes the connection.
	ReadLimit int64 `koanf:"read_limit" yaml:"read_limit"`
}

// RequestConfig configures the dispatcher.
type RequestConfig struct {
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`
	Format string `koanf:"format" yaml:"format"` // json, text, console
}

// MonitorConfig configures `sidusctl monitor`.
type MonitorConfig struct {
	Addr     string        `koanf:"addr" yaml:"addr"`
	Interval time.Duration `koanf:"interval" yaml:"interval"`
}

// Default returns the default client configuration.
func Default() *ClientConfig {
	return &ClientConfig{
		Output: "table",
		Device: DeviceConfig{
			HandshakeTimeout: 10 * time.Second,
			ReadLimit:        connection.DefaultReadLimit,
		},
		Request: RequestConfig{
			Timeout: service.DefaultTimeout,
		},
		Log: LogConfig{
			Level:  "warn",
			Format: "console",
		},
		Monitor: MonitorConfig{
			Addr:     "127.0.0.1:9464",
			Interval: service.DefaultProbeInterval,
		},
	}
}

// DefaultsMap returns Default() keyed by dotted path for the loader.
func DefaultsMap() map[string]any {
	d := Default()
	return map[string]any{
		"output":                   d.Output,
		"device.handshake_timeout": d.Device.HandshakeTimeout,
		"device.read_limit":        d.Device.ReadLimit,
		"request.timeout":          d.Request.Timeout,
		"log.level":                d.Log.Level,
		"log.format":               d.Log.Format,
		"monitor.addr":             d.Monitor.Addr,
		"monitor.interval":         d.Monitor.Interval,
	}
}

// Verify checks the configuration and returns every problem found.
func (c *ClientConfig) Verify() error {
	var errs []error

	if c.Device.URL != "" {
		if err := connection.ValidateEndpoint(c.Device.URL); err != nil {
			errs = append(errs, fmt.Errorf("device.url: %w", err))
		}
	}
	if c.Device.SecretKey != "" {
		if _, err := token.DecodeKey(c.Device.SecretKey); err != nil {
			errs = append(errs, fmt.Errorf("device.secret_key: %w", err))
		}
	}
	if c.Device.HandshakeTimeout < 0 {
		errs = append(errs, errors.New("device.handshake_timeout must not be negative"))
	}
	if c.Device.ReadLimit < 0 {
		errs = append(errs, errors.New("device.read_limit must not be negative"))
	}
	if c.Request.Timeout <= 0 {
		errs = append(errs, errors.New("request.timeout must be positive"))
	}
	if !logger.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level: unknown level %q", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "text", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}
	switch c.Output {
	case "table", "json", "yaml":
	default:
		errs = append(errs, fmt.Errorf("output: unknown format %q", c.Output))
	}
	if c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}

	return errors.Join(errs...)
}

// Sanitize returns a copy safe for display, with the secret key masked.
func (c *ClientConfig) Sanitize() *ClientConfig {
	cp := *c
	cp.Device.SecretKey = logger.MaskValue(c.Device.SecretKey)
	return &cp
}

// Settings flattens the configuration into display rows ordered by key.
func (c *ClientConfig) Settings() [][2]string {
	return [][2]string{
		{"profile", c.Profile},
		{"output", c.Output},
		{"device.url", c.Device.URL},
		{"device.secret_key", c.Device.SecretKey},
		{"device.node_id", c.Device.NodeID},
		{"device.ca_file", c.Device.CAFile},
		{"device.insecure", fmt.Sprint(c.Device.Insecure)},
		{"device.handshake_timeout", c.Device.HandshakeTimeout.String()},
		{"device.read_limit", fmt.Sprint(c.Device.ReadLimit)},
		{"request.timeout", c.Request.Timeout.String()},
		{"log.level", c.Log.Level},
		{"log.format", c.Log.Format},
		{"monitor.addr", c.Monitor.Addr},
		{"monitor.interval", c.Monitor.Interval.String()},
	}
}

// ResolveProfile layers the device section over a saved profile. Fields
// set in the configuration win.
func (c *ClientConfig) ResolveProfile(saved connection.Profile) connection.Profile {
	p := saved
	if p.Name == "" {
		p.Name = "default"
	}
	if c.Device.URL != "" {
		p.URL = c.Device.URL
	}
	if c.Device.SecretKey != "" {
		p.SecretKey = c.Device.SecretKey
	}
	if c.Device.NodeID != "" {
		p.NodeID = c.Device.NodeID
	}
	return p
}
