package main

import (
	"context"
	"os"

	"github.com/yndnr/sidus-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := command.Run(context.Background(), app, os.Args); err != nil {
		command.PrintError(os.Stderr, err)
		os.Exit(command.ExitCode(err))
	}
}
