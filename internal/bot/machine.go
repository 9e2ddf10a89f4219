package bot

import (
	"context"
	"log/slog"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/scale-protocol/bond/internal/metrics"
	"github.com/scale-protocol/bond/internal/model"
	"github.com/scale-protocol/bond/internal/oracle"
)

// StateMap is the in-memory mirror of active ledger records, keyed by
// identity, backed by snapshot storage.
type StateMap struct {
	mu        sync.RWMutex
	markets   map[string]*model.Market
	users     map[string]*model.UserAccount
	positions map[string]*model.Position
	storage   *Storage
}

// NewStateMap creates an empty mirror. Storage may be nil for a purely
// in-memory mirror.
func NewStateMap(storage *Storage) *StateMap {
	return &StateMap{
		markets:   make(map[string]*model.Market),
		users:     make(map[string]*model.UserAccount),
		positions: make(map[string]*model.Position),
		storage:   storage,
	}
}

// LoadActive rehydrates the mirror from the active snapshot namespace.
func (s *StateMap) LoadActive(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	err := s.storage.ScanActive(ctx, func(up AccountUpdate) {
		rec := Classify(up)
		s.mu.Lock()
		defer s.mu.Unlock()
		switch rec.Kind {
		case KindMarket:
			s.markets[up.Address] = rec.Market
		case KindUser:
			s.users[up.Address] = rec.User
		case KindPosition:
			s.positions[up.Address] = rec.Position
		}
	})
	s.publishCounts()
	return err
}

// Keep routes one ledger entry into the mirror. Entries whose funding is
// drained, and positions that reached a closing status, are removed from
// the active state and archived; everything else is upserted. Storage
// failures are logged and skipped: the mirror is a best-effort cache.
func (s *StateMap) Keep(ctx context.Context, up AccountUpdate) {
	rec := Classify(up)
	if rec.Kind == KindUnknown {
		return
	}
	drained := up.Funding <= 0
	archive := drained
	if rec.Kind == KindPosition && rec.Position.PositionStatus.Closing() {
		archive = true
	}

	s.mu.Lock()
	switch rec.Kind {
	case KindMarket:
		if archive {
			delete(s.markets, up.Address)
		} else {
			s.markets[up.Address] = rec.Market
		}
	case KindUser:
		if archive {
			delete(s.users, up.Address)
		} else {
			s.users[up.Address] = rec.User
		}
	case KindPosition:
		if archive {
			delete(s.positions, up.Address)
		} else {
			s.positions[up.Address] = rec.Position
		}
	}
	s.mu.Unlock()
	s.publishCounts()

	if s.storage == nil {
		return
	}
	var err error
	if archive {
		err = s.storage.SaveAsHistory(ctx, up)
	} else {
		err = s.storage.SaveToActive(ctx, up)
	}
	if err != nil {
		slog.Error("save account snapshot error",
			"address", up.Address, "kind", string(rec.Kind), "archive", archive, "err", err)
	}
}

// Market returns the mirrored market at an address.
func (s *StateMap) Market(address string) (*model.Market, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.markets[address]
	return m, ok
}

// User returns the mirrored user account at an address.
func (s *StateMap) User(address string) (*model.UserAccount, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[address]
	return u, ok
}

// Position returns the mirrored position at an address.
func (s *StateMap) Position(address string) (*model.Position, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.positions[address]
	return p, ok
}

func (s *StateMap) publishCounts() {
	markets, users, positions := s.Counts()
	metrics.MirrorAccounts.WithLabelValues(string(KindMarket)).Set(float64(markets))
	metrics.MirrorAccounts.WithLabelValues(string(KindUser)).Set(float64(users))
	metrics.MirrorAccounts.WithLabelValues(string(KindPosition)).Set(float64(positions))
}

// Counts reports the mirrored record counts per kind.
func (s *StateMap) Counts() (markets, users, positions int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.markets), len(s.users), len(s.positions)
}

// PriceUpdate is one subscribed price-account tick.
type PriceUpdate struct {
	// OracleRef identifies the price account.
	OracleRef string
	// Category is the trading pair the feed quotes.
	Category string
	// Quote is the raw feed quotation.
	Quote decimal.Decimal
	// Spread is the market's spread fraction for quotation derivation.
	Spread decimal.Decimal
}

// PriceIndex holds the latest derived quotation per oracle account.
type PriceIndex struct {
	mu     sync.RWMutex
	prices map[string]model.Price
}

// NewPriceIndex creates an empty price index.
func NewPriceIndex() *PriceIndex {
	return &PriceIndex{prices: make(map[string]model.Price)}
}

// Get returns the latest quotation for an oracle account.
func (i *PriceIndex) Get(oracleRef string) (model.Price, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	p, ok := i.prices[oracleRef]
	return p, ok
}

func (i *PriceIndex) set(oracleRef string, p model.Price) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.prices[oracleRef] = p
}

// Watch runs the two mirror tasks: one consuming account updates into the
// StateMap, one consuming price ticks into the PriceIndex. Both shut down
// cooperatively when the context is cancelled.
type Watch struct {
	// Accounts receives (identity, ledger-entry) pairs.
	Accounts chan AccountUpdate
	// Prices receives subscribed price-account ticks.
	Prices chan PriceUpdate
	wg     sync.WaitGroup
}

// Broadcaster publishes derived quotations to interested clients.
type Broadcaster interface {
	BroadcastPrice(category string, price model.Price)
}

// NewWatch starts the account and price watch tasks. Broadcast may be nil.
func NewWatch(ctx context.Context, sm *StateMap, idx *PriceIndex, broadcast Broadcaster) *Watch {
	w := &Watch{
		Accounts: make(chan AccountUpdate, 256),
		Prices:   make(chan PriceUpdate, 256),
	}

	w.wg.Add(2)
	go func() {
		defer w.wg.Done()
		slog.Info("start program account watch")
		for {
			select {
			case <-ctx.Done():
				slog.Info("got shutdown signal, stop account watch")
				return
			case up := <-w.Accounts:
				sm.Keep(ctx, up)
			}
		}
	}()
	go func() {
		defer w.wg.Done()
		slog.Info("start price account watch")
		for {
			select {
			case <-ctx.Done():
				slog.Info("got shutdown signal, stop price watch")
				return
			case tick := <-w.Prices:
				price := oracle.Derive(tick.Quote, tick.Spread)
				idx.set(tick.OracleRef, price)
				if broadcast != nil {
					broadcast.BroadcastPrice(tick.Category, price)
				}
			}
		}
	}()
	return w
}

// Wait blocks until both watch tasks have exited.
func (w *Watch) Wait() { w.wg.Wait() }
