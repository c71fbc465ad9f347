// Package config provides configuration loading and validation for the
// audio ingestion service. It handles YAML-based configuration with
// struct validation; secrets may be injected through environment
// variables, resolved exactly once at load time.
package config
