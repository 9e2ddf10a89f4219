// Package ledger models the host ledger: a key-value store of protocol
// records keyed by deterministic seed-derived addresses, with atomic
// per-transaction mutation. Implementations include an in-memory ledger
// (tests and local clusters) and a PostgreSQL-backed durable image.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"

	"github.com/scale-protocol/bond/internal/model"
)

// Seed strings for deterministic record addressing.
const (
	VaultTokenAccountSeed   = "scale_vault"
	VaultTokenAuthoritySeed = "scale_vault_authority"
	UserAccountSeed         = "scale_user_account"
	MarketAccountSeed       = "scale_market_account"
	PositionAccountSeed     = "scale_position_account"
)

// ErrNotFound is returned when no active record exists at an address.
var ErrNotFound = errors.New("ledger: account not found")

// DeriveAddress hashes the seed parts into a stable record address.
func DeriveAddress(seeds ...string) string {
	h := sha256.New()
	for _, s := range seeds {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// MarketAddress is the address of the market record for a category.
func MarketAddress(category string) string {
	return DeriveAddress(MarketAccountSeed, category)
}

// UserAddress is the address of the user account record for an owner.
func UserAddress(owner string) string {
	return DeriveAddress(UserAccountSeed, owner)
}

// PositionAddress is the address of the position record created under the
// given user offset. Each (owner, market, offset) tuple is unique because
// offsets are never reused.
func PositionAddress(owner, marketAddress string, offset uint32) string {
	return DeriveAddress(PositionAccountSeed, owner, marketAddress, strconv.FormatUint(uint64(offset), 10))
}

// VaultAddress is the pooled token vault account address.
func VaultAddress() string {
	return DeriveAddress(VaultTokenAccountSeed)
}

// VaultAuthority is the derived signing authority of the vault.
func VaultAuthority() string {
	return DeriveAddress(VaultTokenAuthoritySeed)
}

// Ledger is the record repository. Reads return copies of the stored
// state as of the call; writes happen only through Commit, which applies a
// whole transaction atomically.
type Ledger interface {
	GetMarket(ctx context.Context, address string) (*model.Market, error)
	GetUserAccount(ctx context.Context, address string) (*model.UserAccount, error)
	GetPosition(ctx context.Context, address string) (*model.Position, error)

	// ListMarkets returns all active markets.
	ListMarkets(ctx context.Context) ([]model.Market, error)
	// ListPositions returns the active positions owned by a wallet.
	ListPositions(ctx context.Context, owner string) ([]model.Position, error)
	// ListHistoryPositions returns archived positions owned by a wallet.
	ListHistoryPositions(ctx context.Context, owner string) ([]model.Position, error)

	// Commit atomically applies every staged mutation, or none of them.
	Commit(ctx context.Context, tx *Tx) error
}

// Tx stages the mutations of one instruction. Handlers build the whole
// transaction against local copies and commit once; a validation failure
// before Commit leaves the ledger untouched.
type Tx struct {
	markets   map[string]*model.Market
	users     map[string]*model.UserAccount
	positions map[string]*model.Position
	archived  map[string]*model.Position
}

// NewTx creates an empty transaction.
func NewTx() *Tx {
	return &Tx{
		markets:   make(map[string]*model.Market),
		users:     make(map[string]*model.UserAccount),
		positions: make(map[string]*model.Position),
		archived:  make(map[string]*model.Position),
	}
}

// PutMarket stages a market record write.
func (t *Tx) PutMarket(address string, m *model.Market) { t.markets[address] = m }

// PutUser stages a user account record write.
func (t *Tx) PutUser(address string, u *model.UserAccount) { t.users[address] = u }

// PutPosition stages a position record write.
func (t *Tx) PutPosition(address string, p *model.Position) { t.positions[address] = p }

// ArchivePosition stages the final state of a closed position: removed
// from the active namespace, preserved in history.
func (t *Tx) ArchivePosition(address string, p *model.Position) { t.archived[address] = p }

// Copy helpers shared by ledger implementations. Records hold slices, so a
// shallow struct copy is not enough to isolate callers from stored state.

func copyMarket(m *model.Market) *model.Market {
	c := *m
	return &c
}

func copyUser(u *model.UserAccount) *model.UserAccount {
	c := *u
	c.OpenPositionIndex = append([]uint32(nil), u.OpenPositionIndex...)
	c.ClosedPositionIndex = append([]uint32(nil), u.ClosedPositionIndex...)
	c.FullPositionHeaders = append([]model.PositionHeader(nil), u.FullPositionHeaders...)
	return &c
}

func copyPosition(p *model.Position) *model.Position {
	c := *p
	return &c
}
