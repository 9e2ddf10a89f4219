package ledger

import (
	"context"
	"sync"

	"github.com/scale-protocol/bond/internal/model"
)

// Memory implements Ledger with in-memory maps. It is the host ledger for
// tests and local clusters: a single mutex gives Commit the same
// all-or-nothing serialization the real host provides per transaction.
type Memory struct {
	mu        sync.RWMutex
	markets   map[string]*model.Market
	users     map[string]*model.UserAccount
	positions map[string]*model.Position
	history   map[string]*model.Position
}

// NewMemory creates an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		markets:   make(map[string]*model.Market),
		users:     make(map[string]*model.UserAccount),
		positions: make(map[string]*model.Position),
		history:   make(map[string]*model.Position),
	}
}

func (l *Memory) GetMarket(_ context.Context, address string) (*model.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.markets[address]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMarket(m), nil
}

func (l *Memory) GetUserAccount(_ context.Context, address string) (*model.UserAccount, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	u, ok := l.users[address]
	if !ok {
		return nil, ErrNotFound
	}
	return copyUser(u), nil
}

func (l *Memory) GetPosition(_ context.Context, address string) (*model.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.positions[address]
	if !ok {
		return nil, ErrNotFound
	}
	return copyPosition(p), nil
}

func (l *Memory) ListMarkets(_ context.Context) ([]model.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	markets := make([]model.Market, 0, len(l.markets))
	for _, m := range l.markets {
		markets = append(markets, *copyMarket(m))
	}
	return markets, nil
}

func (l *Memory) ListPositions(_ context.Context, owner string) ([]model.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return collectByOwner(l.positions, owner), nil
}

func (l *Memory) ListHistoryPositions(_ context.Context, owner string) ([]model.Position, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return collectByOwner(l.history, owner), nil
}

func (l *Memory) Commit(_ context.Context, tx *Tx) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, m := range tx.markets {
		l.markets[addr] = copyMarket(m)
	}
	for addr, u := range tx.users {
		l.users[addr] = copyUser(u)
	}
	for addr, p := range tx.positions {
		l.positions[addr] = copyPosition(p)
	}
	for addr, p := range tx.archived {
		delete(l.positions, addr)
		l.history[addr] = copyPosition(p)
	}
	return nil
}

func collectByOwner(records map[string]*model.Position, owner string) []model.Position {
	var positions []model.Position
	for _, p := range records {
		if p.Authority == owner {
			positions = append(positions, *copyPosition(p))
		}
	}
	return positions
}
