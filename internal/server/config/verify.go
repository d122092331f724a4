package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/pkg/token"
)

// Verify validates the configuration and reports every problem found.
func Verify(cfg *EmulatorConfig) error {
	return errors.Join(
		verifyServer(&cfg.Server),
		verifyDevice(&cfg.Device),
		verifyLog(&cfg.Log),
	)
}

func verifyServer(cfg *ServerSection) error {
	var errs []error

	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr: %w", err))
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		errs = append(errs, fmt.Errorf("server.path must start with /, got %q", cfg.Path))
	}
	if cfg.Path == "/metrics" {
		errs = append(errs, errors.New("server.path must not be /metrics"))
	}
	if (cfg.TLSCertFile == "") != (cfg.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}
	for _, f := range []string{cfg.TLSCertFile, cfg.TLSKeyFile} {
		if f == "" {
			continue
		}
		if _, err := os.Stat(f); err != nil {
			errs = append(errs, fmt.Errorf("tls file: %w", err))
		}
	}
	if cfg.ReadLimit <= 0 {
		errs = append(errs, errors.New("server.read_limit must be positive"))
	}

	return errors.Join(errs...)
}

func verifyDevice(cfg *DeviceSection) error {
	var errs []error

	if cfg.SecretKey == "" {
		errs = append(errs, errors.New("device.secret_key is required"))
	} else if _, err := token.DecodeKey(cfg.SecretKey); err != nil {
		errs = append(errs, fmt.Errorf("device.secret_key: %w", err))
	}
	if cfg.MaxSkew <= 0 {
		errs = append(errs, errors.New("device.max_skew must be positive"))
	}
	if cfg.RateLimit <= 0 {
		errs = append(errs, errors.New("device.rate_limit must be positive"))
	}
	if cfg.Burst < 1 {
		errs = append(errs, errors.New("device.burst must be at least 1"))
	}
	if len(cfg.ProtocolVersions) == 0 {
		errs = append(errs, errors.New("device.protocol_versions must not be empty"))
	}

	return errors.Join(errs...)
}

func verifyLog(cfg *LogSection) error {
	if !logger.ValidLevel(cfg.Level) {
		return fmt.Errorf("log.level: unknown level %q", cfg.Level)
	}
	switch strings.ToLower(cfg.Format) {
	case "json", "text", "console":
		return nil
	default:
		return fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
}
