package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/core/service"
	"github.com/yndnr/sidus-go/internal/infra/confloader"
	"github.com/yndnr/sidus-go/internal/infra/shutdown"
	"github.com/yndnr/sidus-go/internal/server/httpserver"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
)

const monitorShutdownTimeout = 5 * time.Second

// MonitorCommand returns the monitor command.
func MonitorCommand() *cli.Command {
	return &cli.Command{
		Name:  "monitor",
		Usage: "Probe the device periodically and serve its status and metrics",
		Description: `Serves /metrics (Prometheus) and /status (JSON) until interrupted.
The configuration and profile files are watched; edits take effect
without a restart.`,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "Listen address (default monitor.addr)"},
			&cli.DurationFlag{Name: "interval", Usage: "Probe interval (default monitor.interval)"},
		},
		Action: monitorAction,
	}
}

// dispatcherProber resolves the dispatcher on every probe so a reload
// takes effect on the next tick.
type dispatcherProber struct {
	rt *Runtime
}

func (p dispatcherProber) ProtocolVersions(ctx context.Context) (json.RawMessage, error) {
	d, err := p.rt.Dispatcher()
	if err != nil {
		return nil, err
	}
	return d.ProtocolVersions(ctx)
}

func monitorAction(c *cli.Context) error {
	rt := GetRuntime(c)
	if rt.inShell {
		return fmt.Errorf("monitor cannot run inside the shell")
	}

	addr := rt.Config.Monitor.Addr
	if c.IsSet("addr") {
		addr = c.String("addr")
	}
	interval := rt.Config.Monitor.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	log := rt.Logger.With("component", "monitor")

	tracker := service.NewStatusTracker()
	probe := service.NewProbe(dispatcherProber{rt: rt}, tracker, interval, rt.Logger)
	rt.Metrics.MustRegister(metric.NewCollector(tracker))

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	srv := httpserver.New(httpserver.Standard(monitorHandler(rt.Metrics, tracker), log))

	handler := shutdown.NewHandler(monitorShutdownTimeout)
	ctx, cancel := handler.Context(c.Context)
	defer cancel()

	go func() {
		select {
		case <-c.Context.Done():
			handler.Trigger()
		case <-handler.Stopping():
		}
	}()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("monitor server failed", "error", err)
			handler.Trigger()
		}
	}()
	handler.OnShutdown(func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	})

	watcher, err := confloader.NewWatcher(confloader.WithWatcherLogger(logger.Slog(rt.Logger)))
	if err != nil {
		log.Warn("hot reload disabled", "error", err)
	} else {
		for _, path := range []string{rt.ConfigPath, rt.Store.Path()} {
			if err := watcher.Watch(path); err != nil {
				log.Warn("not watching file", "path", path, "error", err)
			}
		}
		watcher.OnChange(func(path string) {
			if err := rt.reload(c.App.ErrWriter); err != nil {
				log.Error("reload failed, keeping previous settings", "path", path, "error", err)
				return
			}
			tracker.Reset()
			log.Info("configuration reloaded", "path", path)
			_ = probe.Once(ctx)
		})
		go func() {
			_ = watcher.Run(ctx)
		}()
	}

	probeDone := make(chan struct{})
	go func() {
		defer close(probeDone)
		_ = probe.Run(ctx)
	}()
	handler.OnShutdown(func(ctx context.Context) error {
		cancel()
		select {
		case <-probeDone:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})

	fmt.Fprintf(c.App.Writer, "Monitoring %s, serving http://%s/metrics and /status\n", rt.Manager.Current().Endpoint(), ln.Addr())
	return handler.Wait()
}

// monitorHandler serves the metrics registry and the tracker's snapshot.
// /status answers 503 while the device is unreachable.
func monitorHandler(reg *metric.Registry, tracker *service.StatusTracker) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", reg.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		if !tracker.Reachable() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(tracker.Snapshot())
	})
	return mux
}
