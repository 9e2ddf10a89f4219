package engine

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/model"
)

// Risk-control thresholds, all fractions of the market's total liquidity
// except burstRate, which is the minimum equity-to-margin ratio.
var (
	// exposureProportionLimit keeps the long/short imbalance from draining
	// the liquidity pool.
	exposureProportionLimit = decimal.NewFromFloat(0.7)
	// fundPoolProportionLimit caps unidirectional positions against
	// malicious position opening.
	fundPoolProportionLimit = decimal.NewFromFloat(1.5)
	// fundSizeProportionLimit caps a single position's notional.
	fundSizeProportionLimit = decimal.NewFromFloat(0.2)
	// burstRate is the liquidation-line ratio.
	burstRate = decimal.NewFromFloat(0.5)
)

// checkRisk evaluates the four open-position risk gates against the
// provisionally updated market and user state. The evaluation order is a
// contract: exposure, margin ratio, fund size, fund pool. Any failure
// aborts the instruction before commit.
func (e *Engine) checkRisk(
	ctx context.Context,
	m *model.Market,
	preExposure decimal.Decimal,
	u *model.UserAccount,
	fundSize decimal.Decimal,
	direction model.Direction,
	price model.Price,
) error {
	liquidity := m.TotalLiquidity()

	exposure := m.Exposure()
	if exposure.GreaterThan(liquidity.Mul(exposureProportionLimit)) &&
		exposure.GreaterThan(preExposure) {
		return ErrRiskControlBlockingExposure
	}

	maxMargin := decimal.Max(u.MarginFullBuyTotal, u.MarginFullSellTotal)
	if maxMargin.IsPositive() {
		markets := map[string]*model.Market{m.Category: m}
		prices := map[string]model.Price{m.Category: price}
		equity, err := e.userEquity(ctx, u, markets, prices)
		if err != nil {
			return err
		}
		if equity.Div(maxMargin).LessThan(burstRate) {
			return ErrInsufficientMargin
		}
	}

	if fundSize.GreaterThan(liquidity.Mul(fundSizeProportionLimit)) {
		return ErrRiskControlBlockingFundSize
	}

	pool := m.LongPositionTotal
	if direction == model.Sell {
		pool = m.ShortPositionTotal
	}
	if pool.GreaterThan(liquidity.Mul(fundPoolProportionLimit)) {
		return ErrRiskControlBlockingFundPool
	}
	return nil
}
