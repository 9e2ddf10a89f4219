// Package oracle adapts external price feeds into the fixed-precision
// quotations the instruction handlers consume.
package oracle

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/model"
)

// ErrPriceUnavailable is returned when the feed has no current valid quote
// for the requested oracle account. Oracle unavailability is fatal to the
// instruction; there is no fallback source yet.
var ErrPriceUnavailable = errors.New("oracle: no current valid quote")

// Feed supplies the raw feed quotation for an oracle account reference.
type Feed interface {
	Quote(ctx context.Context, ref string) (decimal.Decimal, error)
}

// GetPrice reads the feed for the given oracle reference and derives the
// buy/sell quotations from the market spread fraction. Pure read, no side
// effects.
func GetPrice(ctx context.Context, feed Feed, ref string, marketSpread decimal.Decimal) (model.Price, error) {
	quote, err := feed.Quote(ctx, ref)
	if err != nil {
		return model.Price{}, err
	}
	return Derive(quote, marketSpread), nil
}

// Derive applies the market spread fraction to a raw feed quotation. The
// spread and both sides are computed from the unrounded quote; only the
// outputs are rounded, half-up, to two decimal places. Rounding the quote
// first can shift the derived sides by a cent on sub-cent feed values.
func Derive(quote, marketSpread decimal.Decimal) model.Price {
	spread := quote.Mul(marketSpread)
	return model.Price{
		Real:   quote.Round(2),
		Buy:    quote.Add(spread).Round(2),
		Sell:   quote.Sub(spread).Round(2),
		Spread: spread.Round(2),
	}
}

// MemoryFeed is a settable in-process feed used by tests and local
// clusters.
type MemoryFeed struct {
	mu     sync.RWMutex
	quotes map[string]decimal.Decimal
}

// NewMemoryFeed creates an empty in-memory feed.
func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{quotes: make(map[string]decimal.Decimal)}
}

// Set publishes a quote for an oracle reference.
func (f *MemoryFeed) Set(ref string, quote decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quotes[ref] = quote
}

// Unset removes the quote for an oracle reference.
func (f *MemoryFeed) Unset(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.quotes, ref)
}

func (f *MemoryFeed) Quote(_ context.Context, ref string) (decimal.Decimal, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	quote, ok := f.quotes[ref]
	if !ok {
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	return quote, nil
}
