package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/model"
)

// InitializeUserAccount creates the trader's account record. The position
// seed offset starts at 1 so the first opened position always has a
// non-zero order number.
func (e *Engine) InitializeUserAccount(ctx context.Context, owner string) (string, error) {
	if owner == "" {
		return "", ErrUserMismatch
	}
	address := ledger.UserAddress(owner)
	if _, err := e.ledger.GetUserAccount(ctx, address); err == nil {
		return "", ErrAlreadyInitialized
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return "", err
	}

	u := &model.UserAccount{
		Authority:          owner,
		PositionSeedOffset: 1,
	}
	tx := ledger.NewTx()
	tx.PutUser(address, u)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		return "", err
	}

	slog.Info("user account initialized", "owner", owner, "address", address)
	return address, nil
}

// Deposit transfers tokens from the owner's wallet into the pooled vault
// and credits the user account balance. The referenced market's category
// must match.
func (e *Engine) Deposit(ctx context.Context, owner, category string, amount uint64) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if _, err := e.loadMarket(ctx, category); err != nil {
		return err
	}
	u, err := e.loadUser(ctx, owner)
	if err != nil {
		return err
	}
	if u.Authority != owner {
		return ErrUserMismatch
	}

	units := decimal.NewFromInt(int64(amount))
	if _, err := e.token.Transfer(ctx, owner, ledger.VaultAddress(), units); err != nil {
		return err
	}
	u.Balance = u.Balance.Add(units)

	tx := ledger.NewTx()
	tx.PutUser(ledger.UserAddress(owner), u)
	if err := e.ledger.Commit(ctx, tx); err != nil {
		e.refund(ctx, ledger.VaultAddress(), owner, units, "deposit")
		return err
	}

	slog.Info("deposit",
		"owner", owner,
		"category", category,
		"amount", amount,
		"balance", u.Balance.String(),
	)
	return nil
}
