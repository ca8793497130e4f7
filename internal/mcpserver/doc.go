// Package mcpserver exposes the portfolio tools over the Model Context
// Protocol so that external agents can call them directly.
package mcpserver
