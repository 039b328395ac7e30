// Package config loads application configuration from GATEHOUSE_*
// environment variables, optionally overlaid with a YAML file, and
// validates it before the service starts.
package config
