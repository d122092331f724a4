package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/yndnr/sidus-go/internal/infra/buildinfo"
	"github.com/yndnr/sidus-go/internal/infra/shutdown"
	"github.com/yndnr/sidus-go/internal/infra/tlsroots"
	"github.com/yndnr/sidus-go/internal/server/config"
	"github.com/yndnr/sidus-go/internal/server/deviceserver"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
	"github.com/yndnr/sidus-go/pkg/token"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("sidus-emulator", flag.ContinueOnError)
	var (
		configFile  = fs.String("config", "", "Path to configuration file")
		showVersion = fs.Bool("version", false, "Show version information")
		generateKey = fs.Bool("generate-key", false, "Print a new random secret key and exit")
		addr        = fs.String("addr", "", "Listen address (server.addr)")
		secretKey   = fs.String("secret-key", "", "Device secret key, base64 (device.secret_key)")
		nestedIDs   = fs.Bool("nested-ids", false, "Alternate top-level and nested response ids (device.nested_ids)")
		logLevel    = fs.String("log-level", "", "Log level (log.level)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("sidus-emulator %s\n", buildinfo.String())
		return nil
	}
	if *generateKey {
		key, err := token.GenerateKey()
		if err != nil {
			return err
		}
		fmt.Printf("%s  (fingerprint %s)\n", token.EncodeKey(key), token.Fingerprint(key))
		return nil
	}

	// Only flags given on the command line override the file.
	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			overrides["server.addr"] = *addr
		case "secret-key":
			overrides["device.secret_key"] = *secretKey
		case "nested-ids":
			overrides["device.nested_ids"] = *nestedIDs
		case "log-level":
			overrides["log.level"] = *logLevel
		}
	})

	cfg, err := config.Load(*configFile, overrides)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: os.Stdout,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.SetDefault(log)

	key, _ := token.DecodeKey(cfg.Device.SecretKey)
	log.Info("starting sidus-emulator",
		"version", buildinfo.Get().Version,
		"config", *configFile,
		"key_fingerprint", token.Fingerprint(key),
		"max_skew", cfg.Device.MaxSkew,
		"nested_ids", cfg.Device.NestedIDs)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	opts := []deviceserver.Option{
		deviceserver.WithLogger(log),
		deviceserver.WithMetrics(metric.NewRegistry()),
	}
	scheme := "ws"
	if cfg.Server.TLSCertFile != "" {
		reloader, err := tlsroots.NewCertReloader(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile,
			tlsroots.WithLogger(logger.Slog(log)))
		if err != nil {
			return fmt.Errorf("load tls: %w", err)
		}
		go func() {
			if err := reloader.Run(ctx); err != nil {
				log.Warn("certificate reload stopped", "error", err)
			}
		}()
		opts = append(opts, deviceserver.WithTLSConfig(tlsroots.ServerConfig(reloader)))
		scheme = "wss"
	}

	srv, err := deviceserver.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("init emulator: %w", err)
	}

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	shutdownHandler := shutdown.NewHandler(10 * time.Second)
	shutdownHandler.OnShutdown(func(ctx context.Context) error {
		log.Info("shutting down emulator")
		return srv.Shutdown(ctx)
	})

	go func() {
		log.Info("emulator listening", "url", fmt.Sprintf("%s://%s%s", scheme, ln.Addr(), cfg.Server.Path))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("emulator server error", "error", err)
			shutdownHandler.Trigger()
		}
	}()

	log.Info("emulator started, press Ctrl+C to stop")
	if err := shutdownHandler.Wait(); err != nil {
		log.Error("shutdown error", "error", err)
		return err
	}

	log.Info("emulator stopped gracefully")
	return nil
}
