package model

import "github.com/shopspring/decimal"

// MarketStatus controls which instructions a market accepts.
type MarketStatus uint8

const (
	// MarketNormal accepts all instructions.
	MarketNormal MarketStatus = iota + 1
	// MarketLocked allows closing settlement but not opening.
	MarketLocked
	// MarketFrozen allows neither opening nor closing.
	MarketFrozen
)

func (s MarketStatus) String() string {
	switch s {
	case MarketNormal:
		return "normal"
	case MarketLocked:
		return "locked"
	case MarketFrozen:
		return "frozen"
	default:
		return "unknown"
	}
}

// CategoryMaxLen bounds the trading-pair string stored on a market.
const CategoryMaxLen = 20

// MaxLeverage is the protocol-wide leverage ceiling.
const MaxLeverage = 125

// MaxOperators is the number of operator key slots on a market.
const MaxOperators = 5

// Default rates applied when a market is created.
var (
	DefaultManagementRate  = decimal.NewFromFloat(0.0004)
	DefaultTransactionRate = decimal.NewFromFloat(0.003)
	DefaultInsuranceRate   = decimal.NewFromFloat(0.0005)
	DefaultMarginRate      = decimal.NewFromInt(1)
)

// FundRate is the funding-rate base: 1% of the exposure proportion.
var FundRate = decimal.NewFromFloat(0.01)

// Categories eligible for full-position mode on officer markets.
const (
	CategoryBTCUSD = "BTC/USD"
	CategoryETHUSD = "ETH/USD"
	CategorySOLUSD = "SOL/USD"
)

// SupportsFullPosition reports whether the category is one of the
// recognized full-position-eligible pairs.
func SupportsFullPosition(category string) bool {
	switch category {
	case CategoryBTCUSD, CategoryETHUSD, CategorySOLUSD:
		return true
	}
	return false
}

// Market is the per-trading-pair state: rates, vault balances, aggregate
// exposure, and support flags. The category is immutable after creation.
type Market struct {
	// Category is the trading pair, e.g. "BTC/USD". At most CategoryMaxLen bytes.
	Category string `json:"category"`
	// MaxLeverage is the maximum allowable leverage ratio.
	MaxLeverage uint16 `json:"max_leverage"`
	// ManagementRate is the position management fee fraction.
	ManagementRate decimal.Decimal `json:"management_rate"`
	// TransactionRate is the transaction fee fraction.
	TransactionRate decimal.Decimal `json:"transaction_rate"`
	// InsuranceRate is the fraction of margin moved into the insurance vault
	// on every open.
	InsuranceRate decimal.Decimal `json:"insurance_rate"`
	// MarginRate scales the margin requirement. Currently pinned at 100%.
	MarginRate decimal.Decimal `json:"margin_rate"`
	Status     MarketStatus    `json:"status"`
	// VaultFull is the count of issued liquidity units. It moves in lockstep
	// with VaultBaseBalance on investment/divestment and also acts as the
	// base vault's capacity ceiling during close settlement.
	VaultFull uint64 `json:"vault_full"`
	// VaultBaseBalance is the token balance of the basic liquidity fund.
	VaultBaseBalance decimal.Decimal `json:"vault_base_balance"`
	// VaultProfitBalance is the token balance of the profit-and-loss fund.
	VaultProfitBalance decimal.Decimal `json:"vault_profit_balance"`
	// VaultInsuranceBalance is the insurance fund token balance.
	VaultInsuranceBalance decimal.Decimal `json:"vault_insurance_balance"`
	// LongPositionTotal is the aggregate long notional in the market.
	LongPositionTotal decimal.Decimal `json:"long_position_total"`
	// ShortPositionTotal is the aggregate short notional in the market.
	ShortPositionTotal decimal.Decimal `json:"short_position_total"`
	// Authority is the market administrator.
	Authority string `json:"authority"`
	// Operators may adjust rates. Up to MaxOperators keys.
	Operators [MaxOperators]string `json:"operators"`
	// OracleAccount is the primary price feed reference.
	OracleAccount string `json:"oracle_account"`
	// FallbackOracleAccount is stored for a planned secondary feed.
	// It is not consulted yet.
	FallbackOracleAccount string `json:"fallback_oracle_account"`
	// Spread is the quotation deviation fraction applied on both sides.
	Spread decimal.Decimal `json:"spread"`
	// Officer marks a market created by the team authority.
	Officer bool `json:"officer"`
	// IsSupportFullPosition marks a market eligible for full-position mode.
	IsSupportFullPosition bool `json:"is_support_full_position"`
}

// Exposure is the absolute imbalance between aggregate long and short
// notional: abs(abs(long) - abs(short)).
func (m *Market) Exposure() decimal.Decimal {
	return m.LongPositionTotal.Abs().Sub(m.ShortPositionTotal.Abs()).Abs()
}

// TotalLiquidity is the pooled fund backing the market: base + profit.
func (m *Market) TotalLiquidity() decimal.Decimal {
	return m.VaultBaseBalance.Add(m.VaultProfitBalance)
}

// ExposureProportion is exposure / total liquidity. Zero when there is no
// exposure, and also when the pool is drained: a divested-out market has
// nothing to charge funding against.
func (m *Market) ExposureProportion() decimal.Decimal {
	exposure := m.Exposure()
	liquidity := m.TotalLiquidity()
	if exposure.IsZero() || !liquidity.IsPositive() {
		return decimal.Zero
	}
	return exposure.Div(liquidity)
}

// FundingRate is the periodic funding fraction paid by the dominant side:
// exposure proportion scaled by FundRate.
func (m *Market) FundingRate() decimal.Decimal {
	return m.ExposureProportion().Mul(FundRate)
}

// DominantDirection is the side carrying the larger aggregate notional.
func (m *Market) DominantDirection() Direction {
	if m.LongPositionTotal.GreaterThan(m.ShortPositionTotal) {
		return Buy
	}
	return Sell
}

// PositionFund computes the funding payment for a position of the given
// direction and fund size. A position on the dominant side pays funding
// (negative result); a position on the minority side receives a share of
// the funding collected from the dominant side, proportional to its share
// of the minority total.
func (m *Market) PositionFund(direction Direction, fundSize decimal.Decimal) decimal.Decimal {
	long := m.LongPositionTotal.Abs()
	short := m.ShortPositionTotal.Abs()
	max, min := long, short
	if short.GreaterThan(long) {
		max, min = short, long
	}
	rate := m.FundingRate()
	if direction == m.DominantDirection() {
		return fundSize.Mul(rate).Neg()
	}
	if min.IsZero() {
		return decimal.Zero
	}
	total := max.Mul(rate)
	return total.Mul(min.Div(max)).Mul(fundSize.Div(min))
}
