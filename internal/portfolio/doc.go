// Package portfolio models holdings and realized gains and exposes the
// read-only query views consumed by the data tools.
package portfolio
