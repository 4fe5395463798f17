// Package config assembles the application configuration.
//
// Values are layered, lowest precedence first: Defaults, an optional YAML
// file, PHOTO_* environment variables, then command-line flags set by the
// caller. Validate rejects out-of-range values with ErrInvalidConfig.
//
// The package also carries the build information and the startup banner.
package config
