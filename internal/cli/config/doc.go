// Package config provides sidusctl configuration.
//
//   - spec.go: ClientConfig (~/.sidus/config.yaml) with defaults and checks
//   - load.go: layered loading through confloader
//   - profile.go: named device profiles (~/.sidus/cli.yaml) with sealed
//     secret keys
package config
