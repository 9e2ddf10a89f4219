// Package token is the boundary to the host's token-transfer subsystem.
// The core treats it as an opaque "move N units from A to B" capability;
// the in-memory keeper stands in for it on tests and local clusters.
package token

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when the source account cannot cover
// the transfer amount.
var ErrInsufficientFunds = errors.New("token: insufficient token account balance")

// ErrInvalidAmount is returned for zero or negative transfer amounts.
var ErrInvalidAmount = errors.New("token: transfer amount must be positive")

// Transferor moves token units between accounts. Transfers are atomic:
// either both balances change or neither does.
type Transferor interface {
	// Transfer moves amount from one account to another and returns a
	// receipt id.
	Transfer(ctx context.Context, from, to string, amount decimal.Decimal) (string, error)
	// Balance reports the current balance of an account.
	Balance(ctx context.Context, account string) (decimal.Decimal, error)
}

// Memory is an in-process token keeper. Accounts spring into existence at
// zero balance; Mint funds them for tests and local clusters.
type Memory struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

// NewMemory creates an empty in-memory token keeper.
func NewMemory() *Memory {
	return &Memory{balances: make(map[string]decimal.Decimal)}
}

// Mint credits an account out of thin air.
func (k *Memory) Mint(account string, amount decimal.Decimal) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.balances[account] = k.balances[account].Add(amount)
}

func (k *Memory) Transfer(_ context.Context, from, to string, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", ErrInvalidAmount
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.balances[from].LessThan(amount) {
		return "", ErrInsufficientFunds
	}
	k.balances[from] = k.balances[from].Sub(amount)
	k.balances[to] = k.balances[to].Add(amount)
	return uuid.New().String(), nil
}

func (k *Memory) Balance(_ context.Context, account string) (decimal.Decimal, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.balances[account], nil
}
