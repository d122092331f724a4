// Package confloader loads layered configuration and watches files for
// changes.
//
// Priority (highest to lowest):
//
//  1. Overrides (command-line flags)
//  2. Environment variables (SIDUS_ prefix, "__" between levels)
//  3. YAML configuration file
//  4. Defaults
//
// The Watcher is used for hot reload: it reports writes to specific files
// and ignores the rest of their directory.
package confloader
