// Package agent contains the three advisory stages: the tool-calling Advisor
// loop that produces the primary tax-loss-harvesting strategy, the single-turn
// Auditor that reviews it, and the best-effort Illustrator that renders an
// infographic. Every stage degrades to a deterministic local answer instead of
// returning an error.
package agent
