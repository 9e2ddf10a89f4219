package oracle

import (
	"context"
	"strings"

	"github.com/adshao/go-binance/v2"
	"github.com/shopspring/decimal"
)

// BinanceFeed quotes spot ticker prices from the exchange. It exists for
// development clusters where no on-chain oracle accounts are available;
// the oracle reference is mapped to an exchange symbol by stripping the
// pair separator ("BTC/USD" → "BTCUSDT").
type BinanceFeed struct {
	client *binance.Client
}

// NewBinanceFeed creates a feed backed by the public spot ticker API.
// No API credentials are required for price reads.
func NewBinanceFeed() *BinanceFeed {
	return &BinanceFeed{client: binance.NewClient("", "")}
}

func (f *BinanceFeed) Quote(ctx context.Context, ref string) (decimal.Decimal, error) {
	prices, err := f.client.NewListPricesService().Symbol(symbolFor(ref)).Do(ctx)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(prices) == 0 {
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	quote, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Decimal{}, ErrPriceUnavailable
	}
	return quote, nil
}

// symbolFor converts a pair category or oracle reference into a Binance
// spot symbol. USD pairs trade against USDT on the exchange.
func symbolFor(ref string) string {
	sym := strings.ReplaceAll(ref, "/", "")
	sym = strings.ToUpper(sym)
	if strings.HasSuffix(sym, "USD") {
		sym += "T"
	}
	return sym
}
