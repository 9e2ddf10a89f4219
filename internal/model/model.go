// Package model defines the core domain types shared across the protocol:
// markets, user accounts, positions, and quoted prices.
// All monetary values use shopspring/decimal, never float64.
package model

import "github.com/shopspring/decimal"

// Price is a quotation derived from the oracle feed with the market's
// spread applied on both sides.
type Price struct {
	// Real is the feed quotation before spread adjustment.
	Real decimal.Decimal `json:"real"`
	// Buy is the executable long quotation, the quote plus the spread.
	Buy decimal.Decimal `json:"buy"`
	// Sell is the executable short quotation, the quote minus the spread.
	Sell decimal.Decimal `json:"sell"`
	// Spread is the raw quote times the market's spread fraction. All
	// four fields are rounded to two decimal places.
	Spread decimal.Decimal `json:"spread"`
}

// Direction of a position: buy opens long exposure, sell opens short.
type Direction uint8

const (
	Buy Direction = iota + 1
	Sell
)

func (d Direction) String() string {
	switch d {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Valid reports whether the direction is one of the two defined values.
func (d Direction) Valid() bool { return d == Buy || d == Sell }
