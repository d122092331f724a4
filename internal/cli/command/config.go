package command

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/yndnr/sidus-go/internal/cli/config"
)

// ConfigCommand returns the config subcommand group.
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Inspect and initialize the client configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "show",
				Usage: "Show the effective configuration",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reveal", Usage: "Print the secret key unmasked"},
				},
				Action: configShow,
			},
			{
				Name:  "init",
				Usage: "Write a configuration file with default values",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "Overwrite an existing file"},
				},
				Action: configInit,
			},
			{
				Name:   "path",
				Usage:  "Print the configuration file path",
				Action: configPath,
			},
		},
	}
}

func configShow(c *cli.Context) error {
	rt := GetRuntime(c)
	if rt.configErr != nil {
		return rt.configErr
	}

	cfg := rt.Config
	if !c.Bool("reveal") {
		cfg = cfg.Sanitize()
	}

	settings := make(map[string]string)
	for _, kv := range cfg.Settings() {
		settings[kv[0]] = kv[1]
	}
	return rt.Print(c, settings)
}

func configInit(c *cli.Context) error {
	rt := GetRuntime(c)
	path := rt.ConfigPath

	if _, err := os.Stat(path); err == nil && !c.Bool("force") {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "Wrote %s\n", path)
	return nil
}

func configPath(c *cli.Context) error {
	fmt.Fprintln(c.App.Writer, GetRuntime(c).ConfigPath)
	return nil
}
