// Package tax computes the simplified 22% tax-loss-harvesting preview that
// grounds the advisor's fallback answer.
package tax
