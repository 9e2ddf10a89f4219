// Package engine implements the transactional instruction handlers of the
// protocol: market/user/vault initialization, deposits, opening and
// closing positions, and liquidity investment/divestment.
//
// Every instruction validates its inputs, computes the next state on local
// copies of the touched records, and commits the whole mutation through a
// single ledger transaction. A failure at any point before the commit
// leaves the ledger untouched.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/ledger"
	"github.com/scale-protocol/bond/internal/model"
	"github.com/scale-protocol/bond/internal/oracle"
	"github.com/scale-protocol/bond/internal/token"
)

// Config carries the privileged keys of a deployment.
type Config struct {
	// TeamAuthority may create officer markets with full-position support.
	TeamAuthority string
	// ClearingRobot may force-close any position.
	ClearingRobot string
}

// Engine executes instructions against the host ledger.
type Engine struct {
	ledger ledger.Ledger
	token  token.Transferor
	feed   oracle.Feed
	cfg    Config
	now    func() time.Time
}

// New creates an engine bound to a ledger, token keeper, and price feed.
func New(l ledger.Ledger, t token.Transferor, f oracle.Feed, cfg Config) *Engine {
	return &Engine{
		ledger: l,
		token:  t,
		feed:   f,
		cfg:    cfg,
		now:    time.Now,
	}
}

// InitializeVault sets up the pooled token vault and hands its authority
// to the ledger-derived signing address. Returns the authority address.
func (e *Engine) InitializeVault(ctx context.Context, initializer string) (string, error) {
	if initializer == "" {
		return "", ErrNoPermission
	}
	authority := ledger.VaultAuthority()
	slog.Info("vault initialized",
		"vault", ledger.VaultAddress(),
		"authority", authority,
		"initializer", initializer,
	)
	return authority, nil
}

// marketPrice derives the market's current quotation from its primary
// oracle reference. A fallback reference is stored on the market but not
// consulted yet; feed failure is fatal to the instruction.
func (e *Engine) marketPrice(ctx context.Context, m *model.Market) (model.Price, error) {
	return oracle.GetPrice(ctx, e.feed, m.OracleAccount, m.Spread)
}

// loadMarket fetches the market for a category.
func (e *Engine) loadMarket(ctx context.Context, category string) (*model.Market, error) {
	m, err := e.ledger.GetMarket(ctx, ledger.MarketAddress(category))
	if err != nil {
		return nil, ErrIllegalMarketAccount
	}
	return m, nil
}

// loadUser fetches the user account owned by a wallet.
func (e *Engine) loadUser(ctx context.Context, owner string) (*model.UserAccount, error) {
	return e.ledger.GetUserAccount(ctx, ledger.UserAddress(owner))
}

// refund reverses a wallet transfer after a failed ledger commit so token
// movement and account state stay consistent. A failed reversal is logged
// for manual settlement; the commit error still surfaces to the caller.
func (e *Engine) refund(ctx context.Context, from, to string, units decimal.Decimal, instruction string) {
	if _, err := e.token.Transfer(ctx, from, to, units); err != nil {
		slog.Error("refund after failed commit did not settle",
			"instruction", instruction,
			"from", from,
			"to", to,
			"units", units.String(),
			"err", err,
		)
	}
}

// userEquity aggregates net equity across every market touched by the
// user's open full-position headers: balance plus each header's floating
// P/L and funding payment at current prices. The markets/prices maps seed
// records already held by the caller (typically the provisionally updated
// market of the running instruction) so the computation sees the state of
// this transaction.
func (e *Engine) userEquity(
	ctx context.Context,
	u *model.UserAccount,
	markets map[string]*model.Market,
	prices map[string]model.Price,
) (decimal.Decimal, error) {
	equity := u.Balance
	for i := range u.FullPositionHeaders {
		h := &u.FullPositionHeaders[i]
		m, ok := markets[h.Market]
		if !ok {
			var err error
			m, err = e.loadMarket(ctx, h.Market)
			if err != nil {
				return decimal.Decimal{}, err
			}
			markets[h.Market] = m
		}
		price, ok := prices[h.Market]
		if !ok {
			var err error
			price, err = e.marketPrice(ctx, m)
			if err != nil {
				return decimal.Decimal{}, err
			}
			prices[h.Market] = price
		}
		equity = equity.
			Add(h.FloatingPL(price)).
			Add(m.PositionFund(h.Direction, h.FundSize()))
	}
	return equity, nil
}
