// Package pipeline sequences the advisor, auditor and illustrator stages for
// one question and assembles their combined result.
package pipeline
