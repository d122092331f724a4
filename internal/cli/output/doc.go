// Package output renders sidusctl results.
//
//   - formatter.go: Formatter interface, format parsing
//   - table.go: key/value and column tables
//   - json.go, yaml.go: machine-readable output
//   - spinner.go: wait indicator shown on terminals while a request is
//     outstanding
//
// Device data arrives as raw JSON; every formatter decodes it first so
// tables and YAML show values rather than bytes.
package output
