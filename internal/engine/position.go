package engine

import (
	"context"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/model"
)

// OpenPosition opens a trade on a market and returns the new position's
// address. The whole mutation (insurance deduction, exposure totals,
// margin totals, header insertion, risk gates) commits atomically or not
// at all.
func (e *Engine) OpenPosition(
	ctx context.Context,
	caller string,
	category string,
	size decimal.Decimal,
	leverage uint16,
	positionType model.PositionType,
	direction model.Direction,
) (string, error) {
	if !size.IsPositive() || !positionType.Valid() || !direction.Valid() {
		return "", ErrInvalidParameterOfPosition
	}
	m, err := e.loadMarket(ctx, category)
	if err != nil {
		return "", err
	}
	if leverage < 1 || leverage > m.MaxLeverage {
		return "", ErrInvalidParameterOfPosition
	}
	if m.Status != model.MarketNormal {
		return "", ErrMarketPauses
	}
	u, err := e.loadUser(ctx, caller)
	if err != nil {
		return "", err
	}
	if positionType == model.Full {
		if !m.IsSupportFullPosition {
			return "", ErrMarketNotSupportOpenPosition
		}
		if len(u.FullPositionHeaders) >= model.FullPositionHeaderCap {
			return "", model.ErrFullPositionExceededLimit
		}
	}

	price, err := e.marketPrice(ctx, m)
	if err != nil {
		return "", err
	}
	openPrice := price.Buy
	if direction == model.Sell {
		openPrice = price.Sell
	}

	margin := size.Mul(openPrice).
		Div(decimal.NewFromInt(int64(leverage))).
		Mul(m.MarginRate).
		Round(2)
	insurance := margin.Mul(m.InsuranceRate).Round(2)
	fundSize := openPrice.Mul(decimal.NewFromInt(model.DefaultLot)).Mul(size)
	preExposure := m.Exposure()

	// Provisional state update on local copies.
	u.Balance = u.Balance.Sub(insurance)
	m.VaultInsuranceBalance = m.VaultInsuranceBalance.Add(insurance)
	u.MarginTotal = u.MarginTotal.Add(margin)
	switch {
	case positionType == model.Full && direction == model.Buy:
		u.MarginFullBuyTotal = u.MarginFullBuyTotal.Add(margin)
	case positionType == model.Full && direction == model.Sell:
		u.MarginFullSellTotal = u.MarginFullSellTotal.Add(margin)
	case direction == model.Buy:
		u.MarginIndependentBuyTotal = u.MarginIndependentBuyTotal.Add(margin)
	default:
		u.MarginIndependentSellTotal = u.MarginIndependentSellTotal.Add(margin)
	}
	if direction == model.Buy {
		m.LongPositionTotal = m.LongPositionTotal.Add(fundSize)
	} else {
		m.ShortPositionTotal = m.ShortPositionTotal.Add(fundSize)
	}
	if positionType == model.Independent {
		u.Balance = u.Balance.Sub(margin)
	}
	if u.Balance.IsNegative() {
		return "", ErrInsufficientBalanceForUser
	}

	offset := u.PositionSeedOffset
	if positionType == model.Full {
		header := model.PositionHeader{
			PositionSeedOffset: offset,
			OpenPrice:          openPrice,
			Direction:          direction,
			Size:               size,
			Market:             category,
		}
		if err := u.AddHeader(header); err != nil {
			return "", err
		}
		if direction == model.Buy {
			u.PositionFullVector = u.PositionFullVector.Add(size)
		} else {
			u.PositionFullVector = u.PositionFullVector.Sub(size)
		}
	}

	if err := e.checkRisk(ctx, m, preExposure, u, fundSize, direction, price); err != nil {
		return "", err
	}

	now := e.now().Unix()
	marketAddress := ledger.MarketAddress(category)
	p := &model.Position{
		PositionSeedOffset: offset,
		Margin:             margin,
		Leverage:           leverage,
		PositionType:       positionType,
		PositionStatus:     model.PositionNormal,
		Direction:          direction,
		Size:               size,
		Lot:                model.DefaultLot,
		OpenPrice:          openPrice,
		OpenSpread:         price.Spread,
		OpenRealPrice:      price.Real,
		CreateTime:         now,
		OpenTime:           now,
		OpenOperator:       caller,
		Authority:          caller,
		MarketAccount:      marketAddress,
	}
	address := ledger.PositionAddress(caller, marketAddress, offset)

	u.PositionSeedOffset++
	u.OpenOffset(offset)

	tx := ledger.NewTx()
	tx.PutMarket(marketAddress, m)
	tx.PutUser(ledger.UserAddress(caller), u)
	tx.PutPosition(address, p)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		return "", err
	}

	slog.Info("position opened",
		"address", address,
		"owner", caller,
		"category", category,
		"offset", offset,
		"direction", direction.String(),
		"type", positionType.String(),
		"size", size.String(),
		"leverage", leverage,
		"open_price", openPrice.String(),
		"margin", margin.String(),
	)
	return address, nil
}

// ClosePosition finalizes a position at the current quotation. The owner
// closes normally; the clearing robot force-closes; anyone else is
// rejected. Settlement runs the profit-then-base vault waterfall and the
// mode-specific balance credit, then archives the record.
func (e *Engine) ClosePosition(ctx context.Context, caller, address string) error {
	p, err := e.ledger.GetPosition(ctx, address)
	if err != nil {
		return err
	}

	var status model.PositionStatus
	switch caller {
	case p.Authority:
		status = model.PositionNormalClosing
	case e.cfg.ClearingRobot:
		status = model.PositionForceClosing
	default:
		return ErrNoPermission
	}
	if p.PositionStatus != model.PositionNormal {
		return ErrPositionStatusInvalid
	}

	m, err := e.ledger.GetMarket(ctx, p.MarketAccount)
	if err != nil {
		return ErrIllegalMarketAccount
	}
	if m.Status == model.MarketFrozen {
		return ErrMarketFrozen
	}
	u, err := e.loadUser(ctx, p.Authority)
	if err != nil {
		return err
	}

	price, err := e.marketPrice(ctx, m)
	if err != nil {
		return err
	}
	pl := p.FloatingPL(price)
	settleVaults(m, pl)

	// Settle against the user account.
	u.Profit = u.Profit.Add(pl)
	if p.PositionType == model.Independent {
		settlement := p.Margin.Add(pl)
		if settlement.IsPositive() {
			u.Balance = u.Balance.Add(settlement)
		} else {
			// The loss exceeds the ring-fenced margin; the balance is left
			// untouched and the shortfall is only logged. Preserved from the
			// reference behavior pending clarification.
			slog.Warn("insufficient margin on independent settlement",
				"address", address,
				"owner", p.Authority,
				"margin", p.Margin.String(),
				"pl", pl.String(),
			)
		}
	} else {
		u.Balance = u.Balance.Add(pl)
	}

	fundSize := p.FundSize()
	if p.Direction == model.Buy {
		m.LongPositionTotal = m.LongPositionTotal.Sub(fundSize)
	} else {
		m.ShortPositionTotal = m.ShortPositionTotal.Sub(fundSize)
	}
	u.MarginTotal = u.MarginTotal.Sub(p.Margin)
	switch {
	case p.PositionType == model.Full && p.Direction == model.Buy:
		u.MarginFullBuyTotal = u.MarginFullBuyTotal.Sub(p.Margin)
	case p.PositionType == model.Full && p.Direction == model.Sell:
		u.MarginFullSellTotal = u.MarginFullSellTotal.Sub(p.Margin)
	case p.Direction == model.Buy:
		u.MarginIndependentBuyTotal = u.MarginIndependentBuyTotal.Sub(p.Margin)
	default:
		u.MarginIndependentSellTotal = u.MarginIndependentSellTotal.Sub(p.Margin)
	}
	if p.PositionType == model.Full {
		u.RemoveHeader(p.PositionSeedOffset)
		if p.Direction == model.Buy {
			u.PositionFullVector = u.PositionFullVector.Sub(p.Size)
		} else {
			u.PositionFullVector = u.PositionFullVector.Add(p.Size)
		}
	}
	u.CloseOffset(p.PositionSeedOffset)

	closePrice := price.Sell
	if p.Direction == model.Sell {
		closePrice = price.Buy
	}
	p.PositionStatus = status
	p.ClosePrice = closePrice
	p.CloseSpread = price.Spread
	p.CloseRealPrice = price.Real
	p.Profit = pl
	p.CloseTime = e.now().Unix()
	p.CloseOperator = caller

	tx := ledger.NewTx()
	tx.PutMarket(p.MarketAccount, m)
	tx.PutUser(ledger.UserAddress(p.Authority), u)
	tx.ArchivePosition(address, p)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		return err
	}

	slog.Info("position closed",
		"address", address,
		"owner", p.Authority,
		"operator", caller,
		"status", status.String(),
		"close_price", closePrice.String(),
		"pl", pl.String(),
	)
	return nil
}

// settleVaults applies the position's P/L to the market's profit-then-base
// vault waterfall. Wins draw down the profit vault first with overflow
// taken from the base vault; losses top up the base vault, with any excess
// above the base capacity ceiling (the issued unit count) spilling into
// the profit vault.
func settleVaults(m *model.Market, pl decimal.Decimal) {
	if pl.Sign() >= 0 {
		m.VaultProfitBalance = m.VaultProfitBalance.Sub(pl)
		if m.VaultProfitBalance.IsNegative() {
			m.VaultBaseBalance = m.VaultBaseBalance.Add(m.VaultProfitBalance)
			m.VaultProfitBalance = decimal.Zero
			// A win larger than total liquidity cannot drive the base
			// balance negative; the pool absorbs it down to empty.
			if m.VaultBaseBalance.IsNegative() {
				slog.Warn("liquidity pool exhausted on settlement",
					"category", m.Category,
					"shortfall", m.VaultBaseBalance.Abs().String(),
				)
				m.VaultBaseBalance = decimal.Zero
			}
		}
		return
	}
	m.VaultBaseBalance = m.VaultBaseBalance.Add(pl.Abs())
	ceiling := decimal.NewFromInt(int64(m.VaultFull))
	if m.VaultBaseBalance.GreaterThan(ceiling) {
		m.VaultProfitBalance = m.VaultProfitBalance.Add(m.VaultBaseBalance.Sub(ceiling))
		m.VaultBaseBalance = ceiling
	}
}
