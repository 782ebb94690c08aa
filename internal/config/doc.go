// Package config loads the shiftboard.yaml configuration file and applies
// SHIFTBOARD_* environment overrides on top of it.
//
// Precedence, lowest to highest: built-in defaults, the YAML file,
// environment variables, command-line flags (applied by the CLI).
package config
