// Package repl provides the interactive shell of sidusctl.
//
// Lines are split shell-style and handed to an Executor, which runs them
// through the same command tree as the command line. A trailing "?" lists
// the commands starting with what was typed. History is kept in
// ~/.sidus/history; lines carrying secrets are not recorded.
package repl
