// Package config manages the service configuration: defaults, an
// optional YAML file, and environment variable overrides, applied in
// that order.
package config
