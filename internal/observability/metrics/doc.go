// Package metrics registers the Prometheus collectors for HTTP traffic,
// pipeline stages and asynchronous advice jobs.
package metrics
