// Package tool declares the data tools offered to the model and dispatches
// model-issued invocations to the portfolio query service.
package tool
