package model

import "github.com/shopspring/decimal"

// PositionType selects the margin mode for a position.
type PositionType uint8

const (
	// Full positions share collateral across markets via net equity.
	Full PositionType = iota + 1
	// Independent positions ring-fence margin per position.
	Independent
)

func (t PositionType) String() string {
	switch t {
	case Full:
		return "full"
	case Independent:
		return "independent"
	default:
		return "unknown"
	}
}

// Valid reports whether the type is one of the two defined modes.
func (t PositionType) Valid() bool { return t == Full || t == Independent }

// PositionStatus is the lifecycle state of a position. The only legal
// transitions are Normal → NormalClosing and Normal → ForceClosing; both
// are terminal.
type PositionStatus uint8

const (
	PositionNormal PositionStatus = iota + 1
	PositionNormalClosing
	PositionForceClosing
	PositionPending
)

func (s PositionStatus) String() string {
	switch s {
	case PositionNormal:
		return "normal"
	case PositionNormalClosing:
		return "normal_closing"
	case PositionForceClosing:
		return "force_closing"
	case PositionPending:
		return "pending"
	default:
		return "unknown"
	}
}

// Closing reports whether the position has reached a terminal closing state.
func (s PositionStatus) Closing() bool {
	return s == PositionNormalClosing || s == PositionForceClosing
}

// DefaultLot is the contract multiplier. Reserved; currently always 1.
const DefaultLot = 1

// Position is one record per opened trade.
type Position struct {
	// PositionSeedOffset is a copy of the user offset the position was
	// created under; it ties the record to its UserAccount slot.
	PositionSeedOffset uint32          `json:"position_seed_offset"`
	Margin             decimal.Decimal `json:"margin"`
	Leverage           uint16          `json:"leverage"`
	PositionType       PositionType    `json:"position_type"`
	PositionStatus     PositionStatus  `json:"position_status"`
	Direction          Direction       `json:"direction"`
	Size               decimal.Decimal `json:"size"`
	// Lot is the contract multiplier, fixed at 1 for now.
	Lot int64 `json:"lot"`
	// OpenPrice is the executed quotation for the position's direction.
	OpenPrice decimal.Decimal `json:"open_price"`
	// OpenSpread is the spread the open quotation was based on.
	OpenSpread decimal.Decimal `json:"open_spread"`
	// OpenRealPrice is the unadjusted feed quotation at open.
	OpenRealPrice    decimal.Decimal `json:"open_real_price"`
	ClosePrice       decimal.Decimal `json:"close_price"`
	CloseSpread      decimal.Decimal `json:"close_spread"`
	CloseRealPrice   decimal.Decimal `json:"close_real_price"`
	Profit           decimal.Decimal `json:"profit"`
	StopSurplusPrice decimal.Decimal `json:"stop_surplus_price"`
	StopLossPrice    decimal.Decimal `json:"stop_loss_price"`
	CreateTime       int64           `json:"create_time"`
	OpenTime         int64           `json:"open_time"`
	CloseTime        int64           `json:"close_time"`
	// ValidityTime bounds pending orders in listing mode; unused for
	// market-price opens.
	ValidityTime  int64  `json:"validity_time"`
	OpenOperator  string `json:"open_operator"`
	CloseOperator string `json:"close_operator"`
	// Authority is the wallet owning the position.
	Authority string `json:"authority"`
	// MarketAccount is the address of the market the position trades on.
	MarketAccount string `json:"market_account"`
}

// FloatingPL is the unrealized P/L at the given quotation, rounded to two
// decimal places. Longs exit at the sell quotation, shorts at the buy.
func (p *Position) FloatingPL(price Price) decimal.Decimal {
	lot := decimal.NewFromInt(p.Lot)
	switch p.Direction {
	case Buy:
		return price.Sell.Sub(p.OpenPrice).Mul(lot).Mul(p.Size).Round(2)
	default:
		return p.OpenPrice.Sub(price.Buy).Mul(lot).Mul(p.Size).Round(2)
	}
}

// FundSize is the position's notional: open price × lot × size.
func (p *Position) FundSize() decimal.Decimal {
	return p.OpenPrice.Mul(decimal.NewFromInt(p.Lot)).Mul(p.Size)
}

// PositionHeader is a lightweight per-position summary kept on the user
// account for full-position equity aggregation across markets.
type PositionHeader struct {
	PositionSeedOffset uint32          `json:"position_seed_offset"`
	OpenPrice          decimal.Decimal `json:"open_price"`
	Direction          Direction       `json:"direction"`
	Size               decimal.Decimal `json:"size"`
	// Market is the category tag of the market the position trades on.
	Market string `json:"market"`
}

// FloatingPL is the header's unrealized P/L at the given quotation.
func (h *PositionHeader) FloatingPL(price Price) decimal.Decimal {
	switch h.Direction {
	case Buy:
		return price.Sell.Sub(h.OpenPrice).Mul(h.Size)
	default:
		return h.OpenPrice.Sub(price.Buy).Mul(h.Size)
	}
}

// FundSize is the header's notional: open price × size.
func (h *PositionHeader) FundSize() decimal.Decimal {
	return h.OpenPrice.Mul(h.Size)
}
