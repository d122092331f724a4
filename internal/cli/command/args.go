package command

import (
	"context"
	"strings"

	"github.com/urfave/cli/v2"
)

// Run runs app with args, accepting command flags after positional
// arguments: "profile add NAME --url U" parses like "profile add --url U NAME".
func Run(ctx context.Context, app *cli.App, args []string) error {
	return app.RunContext(ctx, normalizeArgs(app, args))
}

// normalizeArgs moves the flags of the invoked command ahead of its
// positional arguments. args[0] is the program name. Everything after "--"
// stays positional.
func normalizeArgs(app *cli.App, args []string) []string {
	if len(args) == 0 {
		return args
	}
	out := make([]string, 0, len(args))
	out = append(out, args[0])
	return append(out, normalizeLevel(app.Flags, app.Commands, args[1:])...)
}

// normalizeLevel handles one level of the command tree. Flags before the
// first positional belong to this level; a positional naming a subcommand
// hands the rest to that subcommand.
func normalizeLevel(flags []cli.Flag, cmds []*cli.Command, args []string) []string {
	valued := valueFlags(flags)

	if len(cmds) > 0 {
		var out []string
		for i := 0; i < len(args); i++ {
			arg := args[i]
			if !isFlag(arg) {
				if cmd := findCommand(cmds, arg); cmd != nil {
					out = append(out, arg)
					return append(out, normalizeLevel(cmd.Flags, cmd.Subcommands, args[i+1:])...)
				}
				return append(out, args[i:]...)
			}
			out = append(out, arg)
			if arg == "--" {
				return append(out, args[i+1:]...)
			}
			if takesValue(arg, valued) && i+1 < len(args) {
				i++
				out = append(out, args[i])
			}
		}
		return out
	}

	var flagArgs, positional []string
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			positional = append(positional, args[i:]...)
			break
		}
		if !isFlag(arg) {
			positional = append(positional, arg)
			continue
		}
		flagArgs = append(flagArgs, arg)
		if takesValue(arg, valued) && i+1 < len(args) {
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	return append(flagArgs, positional...)
}

func isFlag(arg string) bool {
	return len(arg) > 1 && arg[0] == '-'
}

// takesValue reports whether arg is a value flag written without "=".
func takesValue(arg string, valued map[string]bool) bool {
	name := strings.TrimLeft(arg, "-")
	if strings.Contains(name, "=") {
		return false
	}
	return valued[name]
}

// valueFlags returns the names and aliases of flags that consume a value.
func valueFlags(flags []cli.Flag) map[string]bool {
	valued := make(map[string]bool)
	for _, f := range flags {
		df, ok := f.(cli.DocGenerationFlag)
		if !ok || !df.TakesValue() {
			continue
		}
		for _, name := range f.Names() {
			valued[name] = true
		}
	}
	return valued
}

func findCommand(cmds []*cli.Command, name string) *cli.Command {
	for _, cmd := range cmds {
		if cmd.HasName(name) {
			return cmd
		}
	}
	return nil
}
