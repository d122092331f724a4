// Package logger provides structured logging for sidus-go.
//
//   - logger.go: slog-based Logger with json, text and console (tint) output
//   - context.go: context-aware logging with request and connection IDs
//   - redact.go: name-based redaction of tokens and secret keys
package logger
