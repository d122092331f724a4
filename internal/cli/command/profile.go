package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/internal/telemetry/logger"
	"github.com/yndnr/sidus-go/pkg/token"
)

// ProfileCommand returns the profile subcommand group.
func ProfileCommand() *cli.Command {
	return &cli.Command{
		Name:  "profile",
		Usage: "Manage saved device profiles",
		Subcommands: []*cli.Command{
			{
				Name:      "add",
				Usage:     "Save a profile, replacing one with the same name",
				ArgsUsage: "NAME",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "url", Usage: "Device endpoint (ws:// or wss://)"},
					&cli.StringFlag{Name: "key", Usage: "Secret key (base64, 32 bytes)"},
					&cli.BoolFlag{Name: "generate-key", Usage: "Generate a new secret key and print it once"},
					&cli.StringFlag{Name: "node-id", Usage: "Default node id"},
					&cli.BoolFlag{Name: "use", Usage: "Make the profile current"},
				},
				Action: profileAdd,
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List saved profiles",
				Action:  profileList,
			},
			{
				Name:      "use",
				Usage:     "Select the current profile",
				ArgsUsage: "NAME",
				Action:    profileUse,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Delete a saved profile",
				ArgsUsage: "NAME",
				Action:    profileRemove,
			},
		},
	}
}

type profileRow struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	NodeID      string `json:"node_id,omitempty" yaml:"node_id,omitempty"`
	Fingerprint string `json:"key_fingerprint,omitempty" yaml:"key_fingerprint,omitempty" table:"wide"`
	Active      bool   `json:"current" yaml:"current"`
}

func profileName(c *cli.Context) (string, error) {
	name := c.Args().First()
	if name == "" {
		return "", fmt.Errorf("usage: sidusctl profile %s NAME", c.Command.Name)
	}
	if c.NArg() > 1 {
		return "", fmt.Errorf("unexpected arguments after %s: %v", name, c.Args().Tail())
	}
	return name, nil
}

func profileAdd(c *cli.Context) error {
	name, err := profileName(c)
	if err != nil {
		return err
	}

	p := connection.Profile{
		Name:      name,
		URL:       c.String("url"),
		SecretKey: c.String("key"),
		NodeID:    c.String("node-id"),
	}

	if c.Bool("generate-key") {
		if p.SecretKey != "" {
			return fmt.Errorf("--key and --generate-key are mutually exclusive")
		}
		key, err := token.GenerateKey()
		if err != nil {
			return err
		}
		p.SecretKey = token.EncodeKey(key)
	}
	if p.SecretKey != "" {
		if _, err := token.DecodeKey(p.SecretKey); err != nil {
			return fmt.Errorf("--key: %w", err)
		}
	}

	rt := GetRuntime(c)
	if err := rt.Store.Add(p); err != nil {
		return err
	}
	if c.Bool("use") {
		if err := rt.Store.Use(name); err != nil {
			return err
		}
	}

	fmt.Fprintf(c.App.Writer, "Saved profile %s\n", name)
	if c.Bool("generate-key") {
		fmt.Fprintf(c.App.Writer, "Secret key (configure it on the device): %s\n", p.SecretKey)
	}
	return nil
}

func profileList(c *cli.Context) error {
	rt := GetRuntime(c)
	profiles, current, err := rt.Store.List()
	if err != nil {
		return err
	}

	rows := make([]profileRow, 0, len(profiles))
	for _, p := range profiles {
		row := profileRow{
			Name:   p.Name,
			URL:    p.Endpoint(),
			NodeID: p.NodeID,
			Active: p.Name == current,
		}
		if key, err := token.DecodeKey(p.SecretKey); err == nil {
			row.Fingerprint = token.Fingerprint(key)
		} else if p.SecretKey != "" {
			row.Fingerprint = "invalid (" + logger.MaskValue(p.SecretKey) + ")"
		}
		rows = append(rows, row)
	}
	return rt.Print(c, rows)
}

func profileUse(c *cli.Context) error {
	name, err := profileName(c)
	if err != nil {
		return err
	}
	if err := GetRuntime(c).Store.Use(name); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Using profile %s\n", name)
	return nil
}

func profileRemove(c *cli.Context) error {
	name, err := profileName(c)
	if err != nil {
		return err
	}
	if err := GetRuntime(c).Store.Remove(name); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Removed profile %s\n", name)
	return nil
}
