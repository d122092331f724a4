// Package command defines the sidusctl commands on top of urfave/cli/v2.
//
// A single Runtime is shared by every command run in the process. It holds
// the token generator, the loaded configuration, the profile store and a
// lazily built dispatcher, so commands issued from the interactive shell
// never derive two tokens in the same second.
//
// Errors map to exit codes through ExitCode:
//
//	0  success
//	1  other errors
//	2  configuration (bad key, bad endpoint, unknown profile)
//	3  connection failed or lost
//	4  response timeout
//	5  device returned an error code
package command
