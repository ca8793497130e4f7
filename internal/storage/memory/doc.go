// Package memory provides a portfolio repository held entirely in memory,
// optionally seeded from a YAML file.
package memory
