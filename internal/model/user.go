package model

import (
	"errors"

	"github.com/shopspring/decimal"
)

// PositionIndexCap bounds the open and closed position offset indexes.
// When a list is full the oldest entry is evicted first.
const PositionIndexCap = 64

// FullPositionHeaderCap bounds the set of open full-position headers held
// on a user account. Unlike the offset indexes, exceeding it is a hard
// error rather than an eviction.
const FullPositionHeaderCap = 16

// ErrFullPositionExceededLimit is returned when a user already holds the
// maximum number of open full-position headers.
var ErrFullPositionExceededLimit = errors.New("model: full position quantity exceeds the limit")

// UserAccount is the per-trader state: deposit balance, margin totals split
// by mode and direction, and bounded indexes of position offsets.
type UserAccount struct {
	// Authority is the owner wallet address.
	Authority string `json:"authority"`
	// PositionSeedOffset is the next position's unique index. It starts at 1,
	// strictly increases by one per open, and is never reused.
	PositionSeedOffset uint32 `json:"position_seed_offset"`
	// Balance is the deposit wallet. Independent-mode margin is deducted
	// from it; full-mode margin is covered implicitly by equity.
	Balance decimal.Decimal `json:"balance"`
	// Profit is the accumulated settled P/L.
	Profit decimal.Decimal `json:"profit"`
	// MarginTotal is the total margin in use across both modes.
	MarginTotal decimal.Decimal `json:"margin_total"`
	// Margin sub-totals split by mode and direction.
	MarginFullBuyTotal         decimal.Decimal `json:"margin_full_buy_total"`
	MarginFullSellTotal        decimal.Decimal `json:"margin_full_sell_total"`
	MarginIndependentBuyTotal  decimal.Decimal `json:"margin_independent_buy_total"`
	MarginIndependentSellTotal decimal.Decimal `json:"margin_independent_sell_total"`
	// PositionFullVector is a signed counter of directional full-position
	// exposure: buy size adds, sell size subtracts.
	PositionFullVector decimal.Decimal `json:"position_full_vector"`
	// OpenPositionIndex holds offsets of open positions, oldest first.
	OpenPositionIndex []uint32 `json:"open_position_index"`
	// ClosedPositionIndex holds offsets of closed positions, oldest first.
	ClosedPositionIndex []uint32 `json:"closed_position_index"`
	// FullPositionHeaders summarizes open full-mode positions for net-equity
	// aggregation across markets.
	FullPositionHeaders []PositionHeader `json:"full_position_headers"`
}

// MarginFullTotal is the margin in use in full-position mode.
func (u *UserAccount) MarginFullTotal() decimal.Decimal {
	return u.MarginFullBuyTotal.Add(u.MarginFullSellTotal)
}

// MarginIndependentTotal is the margin in use in independent mode.
func (u *UserAccount) MarginIndependentTotal() decimal.Decimal {
	return u.MarginIndependentBuyTotal.Add(u.MarginIndependentSellTotal)
}

// OpenOffset records a newly opened position offset, evicting the oldest
// entry once the index is at capacity.
func (u *UserAccount) OpenOffset(offset uint32) {
	u.OpenPositionIndex = appendCapped(u.OpenPositionIndex, offset)
}

// CloseOffset moves an offset from the open index to the closed index.
func (u *UserAccount) CloseOffset(offset uint32) {
	for i, v := range u.OpenPositionIndex {
		if v == offset {
			u.OpenPositionIndex = append(u.OpenPositionIndex[:i], u.OpenPositionIndex[i+1:]...)
			break
		}
	}
	u.ClosedPositionIndex = appendCapped(u.ClosedPositionIndex, offset)
}

// AddHeader appends a full-position header, enforcing the hard cap before
// insertion.
func (u *UserAccount) AddHeader(h PositionHeader) error {
	if len(u.FullPositionHeaders) >= FullPositionHeaderCap {
		return ErrFullPositionExceededLimit
	}
	u.FullPositionHeaders = append(u.FullPositionHeaders, h)
	return nil
}

// RemoveHeader filters out the header carrying the given offset.
func (u *UserAccount) RemoveHeader(offset uint32) {
	kept := u.FullPositionHeaders[:0]
	for _, h := range u.FullPositionHeaders {
		if h.PositionSeedOffset != offset {
			kept = append(kept, h)
		}
	}
	u.FullPositionHeaders = kept
}

// appendCapped appends to a drop-oldest capped index.
func appendCapped(index []uint32, offset uint32) []uint32 {
	if len(index) >= PositionIndexCap {
		index = index[len(index)-PositionIndexCap+1:]
	}
	return append(index, offset)
}
