package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/model"
)

// InitializeMarket creates the market record for a trading pair and
// returns its address. Officer status and full-position support are
// granted only when the initializer is the team authority and the category
// is a recognized full-position pair.
func (e *Engine) InitializeMarket(
	ctx context.Context,
	initializer string,
	category string,
	spread decimal.Decimal,
	oracleRef string,
	fallbackOracleRef string,
) (string, error) {
	if len(category) == 0 || len(category) > model.CategoryMaxLen {
		return "", ErrCategoryTooLong
	}
	if oracleRef == "" {
		return "", ErrInvalidOracleAccount
	}
	address := ledger.MarketAddress(category)
	if _, err := e.ledger.GetMarket(ctx, address); err == nil {
		return "", ErrAlreadyInitialized
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return "", err
	}

	m := &model.Market{
		Category:              category,
		MaxLeverage:           model.MaxLeverage,
		ManagementRate:        model.DefaultManagementRate,
		TransactionRate:       model.DefaultTransactionRate,
		InsuranceRate:         model.DefaultInsuranceRate,
		MarginRate:            model.DefaultMarginRate,
		Status:                model.MarketNormal,
		Authority:             initializer,
		OracleAccount:         oracleRef,
		FallbackOracleAccount: fallbackOracleRef,
		Spread:                spread,
	}
	for i := range m.Operators {
		m.Operators[i] = initializer
	}
	if initializer == e.cfg.TeamAuthority {
		m.Officer = true
		if model.SupportsFullPosition(category) {
			m.IsSupportFullPosition = true
		}
	}

	tx := ledger.NewTx()
	tx.PutMarket(address, m)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		return "", err
	}

	slog.Info("market initialized",
		"category", category,
		"address", address,
		"spread", spread.String(),
		"officer", m.Officer,
		"full_position", m.IsSupportFullPosition,
	)
	return address, nil
}

// Investment moves the payer's tokens into the market's pooled vault.
// The issued unit count and the base balance move in lockstep.
func (e *Engine) Investment(ctx context.Context, payer, category string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m, err := e.loadMarket(ctx, category)
	if err != nil {
		return err
	}

	units := decimal.NewFromInt(int64(amount))
	if _, err := e.token.Transfer(ctx, payer, ledger.VaultAddress(), units); err != nil {
		return err
	}
	m.VaultFull += amount
	m.VaultBaseBalance = m.VaultBaseBalance.Add(units)

	tx := ledger.NewTx()
	tx.PutMarket(ledger.MarketAddress(category), m)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		e.refund(ctx, ledger.VaultAddress(), payer, units, "investment")
		return err
	}

	slog.Info("investment",
		"category", category,
		"payer", payer,
		"amount", amount,
		"vault_full", m.VaultFull,
	)
	return nil
}

// Divestment withdraws vault units back to the payer. The requested amount
// may not exceed the issued unit count, nor what the base vault actually
// holds: settled wins draw the base balance below the unit count, and
// divesting past it would strip tokens the pool no longer backs.
func (e *Engine) Divestment(ctx context.Context, payer, category string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	m, err := e.loadMarket(ctx, category)
	if err != nil {
		return err
	}
	units := decimal.NewFromInt(int64(amount))
	if amount > m.VaultFull || units.GreaterThan(m.VaultBaseBalance) {
		return ErrInsufficientVaultBalance
	}

	if _, err := e.token.Transfer(ctx, ledger.VaultAddress(), payer, units); err != nil {
		return err
	}
	m.VaultFull -= amount
	m.VaultBaseBalance = m.VaultBaseBalance.Sub(units)

	tx := ledger.NewTx()
	tx.PutMarket(ledger.MarketAddress(category), m)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		e.refund(ctx, payer, ledger.VaultAddress(), units, "divestment")
		return err
	}

	slog.Info("divestment",
		"category", category,
		"payer", payer,
		"amount", amount,
		"vault_full", m.VaultFull,
	)
	return nil
}
