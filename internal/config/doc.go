// Package config loads the TaxAdvisor runtime configuration from a YAML, TOML
// or JSON file, overlays secrets from the environment and fills in defaults.
// A missing model credential is a valid configuration: the agents then answer
// from locally computed figures.
package config
