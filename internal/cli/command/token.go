package command

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/pkg/token"
)

// TokenCommand returns the token subcommand group.
func TokenCommand() *cli.Command {
	keyFlag := &cli.StringFlag{
		Name:  "key",
		Usage: "Secret key (base64); defaults to the selected profile's key",
	}

	return &cli.Command{
		Name:  "token",
		Usage: "Derive, inspect and generate device credentials",
		Subcommands: []*cli.Command{
			{
				Name:  "derive",
				Usage: "Derive tokens for the current second, at most one per second",
				Flags: []cli.Flag{
					keyFlag,
					&cli.IntFlag{
						Name:    "count",
						Aliases: []string{"n"},
						Usage:   "Number of tokens to derive",
						Value:   1,
					},
				},
				Action: tokenDerive,
			},
			{
				Name:      "open",
				Usage:     "Authenticate a token and show the second it is bound to",
				ArgsUsage: "TOKEN",
				Flags:     []cli.Flag{keyFlag},
				Action:    tokenOpen,
			},
			{
				Name:   "keygen",
				Usage:  "Generate a new random secret key",
				Action: tokenKeygen,
			},
		},
	}
}

type tokenRow struct {
	Second int64  `json:"second" yaml:"second"`
	Time   string `json:"time" yaml:"time"`
	Token  string `json:"token" yaml:"token"`
}

// secretKey returns the --key flag or the selected profile's key.
func secretKey(c *cli.Context) ([]byte, error) {
	encoded := c.String("key")
	if encoded == "" {
		encoded = GetRuntime(c).Manager.Current().SecretKey
	}
	key, err := token.DecodeKey(encoded)
	if err != nil {
		return nil, domain.ErrConfiguration.WithDetails("secret key: pass --key or select a profile with one").WithCause(err)
	}
	return key, nil
}

func tokenDerive(c *cli.Context) error {
	key, err := secretKey(c)
	if err != nil {
		return err
	}
	count := c.Int("count")
	if count < 1 {
		return fmt.Errorf("--count must be at least 1")
	}

	rt := GetRuntime(c)
	rows := make([]tokenRow, 0, count)
	for i := 0; i < count; i++ {
		tok, err := rt.Tokens.Derive(c.Context, key)
		if err != nil {
			return err
		}
		second, err := token.Open(key, tok)
		if err != nil {
			return err
		}
		rows = append(rows, tokenRow{
			Second: second,
			Time:   time.Unix(second, 0).UTC().Format(time.RFC3339),
			Token:  tok,
		})
	}
	return rt.Print(c, rows)
}

type openResult struct {
	Second int64  `json:"second" yaml:"second"`
	Time   string `json:"time" yaml:"time"`
	Age    string `json:"age" yaml:"age"`
}

func tokenOpen(c *cli.Context) error {
	tok := c.Args().First()
	if tok == "" {
		return fmt.Errorf("usage: sidusctl token open TOKEN")
	}
	key, err := secretKey(c)
	if err != nil {
		return err
	}

	second, err := token.Open(key, tok)
	if err != nil {
		return err
	}

	bound := time.Unix(second, 0)
	return GetRuntime(c).Print(c, openResult{
		Second: second,
		Time:   bound.UTC().Format(time.RFC3339),
		Age:    time.Since(bound).Round(time.Second).String(),
	})
}

func tokenKeygen(c *cli.Context) error {
	key, err := token.GenerateKey()
	if err != nil {
		return err
	}
	return GetRuntime(c).Print(c, []keygenResult{{
		SecretKey:   token.EncodeKey(key),
		Fingerprint: token.Fingerprint(key),
	}})
}

type keygenResult struct {
	SecretKey   string `json:"secret_key" yaml:"secret_key"`
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`
}
