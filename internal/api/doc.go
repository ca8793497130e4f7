// Package api exposes the advisory pipeline over HTTP: synchronous advice,
// asynchronous advice jobs, the tool catalog, health and metrics endpoints,
// and the MCP transport when enabled.
package api
