package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/yndnr/sidus-go/internal/cli/config"
	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/internal/cli/output"
	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/internal/core/service"
	"github.com/yndnr/sidus-go/internal/infra/buildinfo"
	"github.com/yndnr/sidus-go/internal/infra/tlsroots"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/internal/telemetry/metric"
	"github.com/yndnr/sidus-go/pkg/token"
)

const runtimeKey = "runtime"

// Exit codes returned by sidusctl.
const (
	ExitOK         = 0
	ExitError      = 1
	ExitConfig     = 2
	ExitConnection = 3
	ExitTimeout    = 4
	ExitProtocol   = 5
)

// Runtime is the state shared by commands. One Runtime lives for the whole
// process, so requests issued from the shell draw tokens from the same
// generator as the command that started it.
type Runtime struct {
	Tokens  *token.Generator
	Metrics *metric.Registry
	Manager *connection.Manager

	Home       string
	ConfigPath string
	Config     *config.ClientConfig
	Store      *config.Store
	Logger     logger.Logger

	overrides map[string]any
	inherited map[string]any
	inShell   bool

	mu         sync.Mutex
	configErr  error
	profileErr error
	dispatcher *service.Dispatcher
}

// NewRuntime creates a Runtime with its own token generator and metrics.
func NewRuntime() *Runtime {
	return &Runtime{
		Tokens:  token.NewGenerator(),
		Metrics: metric.NewRegistry(),
		Manager: connection.NewManager(),
	}
}

// App creates the CLI application.
func App() *cli.App {
	return NewApp(NewRuntime())
}

// NewApp creates the CLI application around rt.
func NewApp(rt *Runtime) *cli.App {
	return &cli.App{
		Name:    "sidusctl",
		Usage:   "Sidus device command-line client",
		Version: buildinfo.String(),
		Flags:   globalFlags(),
		Commands: []*cli.Command{
			CallCommand(),
			PingCommand(),
			TokenCommand(),
			MonitorCommand(),
			ProfileCommand(),
			ConfigCommand(),
			ShellCommand(),
			VersionCommand(),
		},
		Metadata: map[string]any{runtimeKey: rt},
		Before: func(c *cli.Context) error {
			return rt.setup(c)
		},
		HideVersion: true,
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "home",
			Usage:   "Directory holding config.yaml, cli.yaml, local.key and history (default ~/.sidus)",
			EnvVars: []string{"SIDUS_HOME"},
		},
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (default <home>/config.yaml)",
			EnvVars: []string{"SIDUS_CONFIG"},
		},
		&cli.StringFlag{
			Name:    "profile",
			Aliases: []string{"p"},
			Usage:   "Saved profile to use instead of the current one",
		},
		&cli.StringFlag{
			Name:    "url",
			Aliases: []string{"u"},
			Usage:   "Device endpoint, e.g. ws://127.0.0.1:12345",
		},
		&cli.StringFlag{
			Name:  "secret-key",
			Usage: "Device secret key (base64, 32 bytes)",
		},
		&cli.StringFlag{
			Name:  "node-id",
			Usage: "Node behind the device to address",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Usage:   "How long to wait for a response",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: console, text, json",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"V"},
			Usage:   "Enable debug logging",
		},
	}
}

// flagOverrides maps explicitly set global flags to config keys.
func flagOverrides(c *cli.Context) map[string]any {
	overrides := make(map[string]any)
	for flag, key := range map[string]string{
		"profile":    "profile",
		"url":        "device.url",
		"secret-key": "device.secret_key",
		"node-id":    "device.node_id",
		"output":     "output",
		"log-level":  "log.level",
		"log-format": "log.format",
	} {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}
	if c.IsSet("timeout") {
		overrides["request.timeout"] = c.Duration("timeout")
	}
	if c.Bool("verbose") {
		overrides["log.level"] = "debug"
	}
	return overrides
}

// setup loads configuration and selects the device profile. It runs before
// every command, including each line of the shell.
func (rt *Runtime) setup(c *cli.Context) error {
	overrides := make(map[string]any, len(rt.inherited))
	for k, v := range rt.inherited {
		overrides[k] = v
	}
	for k, v := range flagOverrides(c) {
		overrides[k] = v
	}
	rt.overrides = overrides

	// Shell lines keep the files chosen when the shell started.
	if home := c.String("home"); home != "" {
		rt.Home = home
	} else if !rt.inShell || rt.Home == "" {
		rt.Home = config.DefaultDir()
	}
	if path := c.String("config"); path != "" {
		rt.ConfigPath = path
	} else if !rt.inShell || rt.ConfigPath == "" {
		rt.ConfigPath = filepath.Join(rt.Home, "config.yaml")
	}
	rt.Store = config.NewStore(filepath.Join(rt.Home, "cli.yaml"), filepath.Join(rt.Home, "local.key"))

	rt.configErr = nil
	if err := rt.reload(c.App.ErrWriter); err != nil {
		if c.Args().First() != "config" {
			return err
		}
		// config init --force must be able to replace a broken file.
		rt.configErr = err
		rt.Config = config.Default()
		rt.Logger = logger.Default()
	}
	return nil
}

// reload re-reads configuration and profiles and points the manager at the
// resulting device. Requests already in flight keep their profile.
func (rt *Runtime) reload(logOut io.Writer) error {
	cfg, err := config.Load(rt.ConfigPath, rt.overrides)
	if err != nil {
		return domain.ErrConfiguration.WithDetails(err.Error())
	}

	if logOut == nil {
		logOut = os.Stderr
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOut,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.Config = cfg
	rt.Logger = log
	rt.dispatcher = nil
	rt.profileErr = nil

	saved, err := rt.savedProfile(cfg.Profile)
	if err != nil {
		// Only device commands need a profile; profile and config commands
		// must keep working to repair the store.
		rt.profileErr = err
		rt.Manager.Clear()
		return nil
	}
	rt.Manager.Use(cfg.ResolveProfile(saved))
	return nil
}

func (rt *Runtime) savedProfile(name string) (connection.Profile, error) {
	if name != "" {
		return rt.Store.Get(name)
	}
	p, err := rt.Store.Current()
	if errors.Is(err, config.ErrNoCurrentProfile) {
		return connection.Profile{}, nil
	}
	return p, err
}

// Dispatcher returns the request dispatcher for the selected device.
func (rt *Runtime) Dispatcher() (*service.Dispatcher, error) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if rt.profileErr != nil {
		return nil, domain.ErrConfiguration.WithCause(rt.profileErr)
	}
	if rt.dispatcher != nil {
		return rt.dispatcher, nil
	}

	cfg := rt.Config
	tlsConfig, err := tlsroots.ClientConfig(tlsroots.ClientOptions{
		CAFile:             cfg.Device.CAFile,
		InsecureSkipVerify: cfg.Device.Insecure,
	})
	if err != nil {
		return nil, domain.ErrConfiguration.WithDetails("device.ca_file").WithCause(err)
	}

	dialer := connection.NewDialer(
		connection.WithHandshakeTimeout(cfg.Device.HandshakeTimeout),
		connection.WithReadLimit(cfg.Device.ReadLimit),
		connection.WithTLSConfig(tlsConfig),
		connection.WithUserAgent(buildinfo.UserAgent("sidusctl")),
	)
	rt.dispatcher = service.NewDispatcher(dialer, rt.Manager, rt.Tokens,
		service.WithTimeout(cfg.Request.Timeout),
		service.WithLogger(rt.Logger),
		service.WithMetrics(rt.Metrics),
	)
	return rt.dispatcher, nil
}

// Print renders data in the configured output format.
func (rt *Runtime) Print(c *cli.Context, data any) error {
	format, err := output.ParseFormat(rt.Config.Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, c.Bool("wide")).Format(c.App.Writer, data)
}

// interactive reports whether progress output should be drawn.
func (rt *Runtime) interactive(c *cli.Context) bool {
	if rt.Config.Output != string(output.FormatTable) {
		return false
	}
	f, ok := c.App.ErrWriter.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// GetRuntime retrieves the Runtime from context.
func GetRuntime(c *cli.Context) *Runtime {
	if rt, ok := c.App.Metadata[runtimeKey].(*Runtime); ok {
		return rt
	}
	return nil
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, domain.ErrConfiguration), errors.Is(err, domain.ErrInvalidEndpoint):
		return ExitConfig
	case errors.Is(err, domain.ErrConnection), errors.Is(err, domain.ErrConnectionLost):
		return ExitConnection
	case errors.Is(err, domain.ErrTimeout):
		return ExitTimeout
	case errors.Is(err, domain.ErrProtocol):
		return ExitProtocol
	default:
		return ExitError
	}
}

// PrintError prints an error message to w.
func PrintError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
}
