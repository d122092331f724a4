package command

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/sidus-go/internal/cli/connection"
	"github.com/yndnr/sidus-go/internal/cli/repl"
)

// ShellCommand returns the interactive shell command.
func ShellCommand() *cli.Command {
	return &cli.Command{
		Name:  "shell",
		Usage: "Start an interactive shell",
		Description: `Each line is run as a sidusctl command line, without the program name.
Global flags given to shell apply to every line; tokens are issued from a
single generator for the whole session.`,
		Action: shellAction,
	}
}

func shellAction(c *cli.Context) error {
	rt := GetRuntime(c)
	if rt.inShell {
		return fmt.Errorf("already in a shell")
	}

	rt.inShell = true
	rt.inherited = rt.overrides
	defer func() {
		rt.inShell = false
		rt.inherited = nil
	}()

	exec := func(ctx context.Context, args []string) error {
		app := NewApp(rt)
		app.Reader = c.App.Reader
		app.Writer = c.App.Writer
		app.ErrWriter = c.App.ErrWriter
		app.ExitErrHandler = func(*cli.Context, error) {}
		return Run(ctx, app, append([]string{"sidusctl"}, args...))
	}

	fmt.Fprintf(c.App.Writer, "Connected to %s. Type 'help' for commands, 'exit' to leave.\n", rt.Manager.Current().Endpoint())

	r := repl.New(exec,
		repl.WithIO(c.App.Reader, c.App.Writer),
		repl.WithHistory(repl.NewHistory(filepath.Join(rt.Home, "history"))),
		repl.WithCompleter(repl.NewCompleter(commandNames(NewApp(rt).Commands))),
		repl.WithPrompt(func() string { return shellPrompt(rt.Manager.Current()) }),
	)
	return r.Run(c.Context)
}

// shellPrompt names the active profile, if any.
func shellPrompt(p connection.Profile) string {
	if p.Name == "" {
		return "sidus> "
	}
	return "sidus:" + p.Name + "> "
}

// commandNames lists commands and their subcommands as "parent child".
func commandNames(cmds []*cli.Command) []string {
	var names []string
	for _, cmd := range cmds {
		if cmd.Hidden {
			continue
		}
		names = append(names, cmd.Name)
		for _, sub := range commandNames(cmd.Subcommands) {
			names = append(names, cmd.Name+" "+sub)
		}
	}
	return names
}
