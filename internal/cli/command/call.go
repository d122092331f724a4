package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/cli/output"
	"github.com/yndnr/sidus-go/internal/core/domain"
	"github.com/yndnr/sidus-go/internal/core/service"
)

// CallCommand returns the call command.
func CallCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "Perform an action on the device and print its data",
		ArgsUsage: "ACTION",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "args",
				Usage: `Action arguments as a JSON object, e.g. '{"channel": 1}'`,
			},
			&cli.StringFlag{
				Name:  "args-file",
				Usage: `Read the arguments object from a file ("-" for stdin)`,
			},
			&cli.StringSliceFlag{
				Name:    "arg",
				Aliases: []string{"a"},
				Usage:   "Single argument KEY=VALUE; VALUE is parsed as JSON when it can be",
			},
		},
		Action: callAction,
	}
}

func callAction(c *cli.Context) error {
	action := c.Args().First()
	if action == "" {
		return domain.ErrInvalidAction.WithDetails("usage: sidusctl call ACTION")
	}
	if c.NArg() > 1 {
		return domain.ErrInvalidAction.WithDetails(fmt.Sprintf("unexpected arguments after %s: %v", action, c.Args().Tail()))
	}

	args, err := parseCallArgs(c)
	if err != nil {
		return err
	}

	rt := GetRuntime(c)
	d, err := rt.Dispatcher()
	if err != nil {
		return err
	}

	var opts service.SendOptions
	if args != nil {
		opts.Args = args
	}

	var spinner *output.Spinner
	if rt.interactive(c) {
		spinner = output.NewSpinner(c.App.ErrWriter, "waiting for "+action)
		spinner.Start()
	}

	data, err := d.Send(c.Context, action, opts)
	if spinner != nil {
		spinner.Stop()
	}
	if err != nil {
		return err
	}
	return rt.Print(c, data)
}

// parseCallArgs merges --args-file, --args and --arg, later sources
// overriding earlier keys. It returns nil when none is given.
func parseCallArgs(c *cli.Context) (map[string]json.RawMessage, error) {
	var merged map[string]json.RawMessage

	if path := c.String("args-file"); path != "" {
		var (
			data []byte
			err  error
		)
		if path == "-" {
			data, err = io.ReadAll(c.App.Reader)
		} else {
			data, err = os.ReadFile(path)
		}
		if err != nil {
			return nil, domain.ErrInvalidAction.WithDetails("read args file").WithCause(err)
		}
		if merged, err = decodeArgsObject(data); err != nil {
			return nil, err
		}
	}

	if s := c.String("args"); s != "" {
		obj, err := decodeArgsObject([]byte(s))
		if err != nil {
			return nil, err
		}
		merged = mergeArgs(merged, obj)
	}

	for _, kv := range c.StringSlice("arg") {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, domain.ErrInvalidAction.WithDetails(fmt.Sprintf("--arg %q: want KEY=VALUE", kv))
		}
		merged = mergeArgs(merged, map[string]json.RawMessage{key: argValue(value)})
	}

	return merged, nil
}

func decodeArgsObject(data []byte) (map[string]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		return nil, domain.ErrInvalidAction.WithDetails("args must be a JSON object")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, domain.ErrInvalidAction.WithDetails("args must be a JSON object").WithCause(err)
	}
	if obj == nil {
		obj = map[string]json.RawMessage{}
	}
	return obj, nil
}

func mergeArgs(dst, src map[string]json.RawMessage) map[string]json.RawMessage {
	if dst == nil {
		dst = make(map[string]json.RawMessage, len(src))
	}
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

// argValue keeps valid JSON as is and quotes anything else.
func argValue(s string) json.RawMessage {
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	quoted, _ := json.Marshal(s)
	return quoted
}
