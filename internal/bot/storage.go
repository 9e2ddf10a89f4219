package bot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Key prefixes of the two logical snapshot namespaces.
const (
	activePrefix  = "active_"
	historyPrefix = "history_"
)

// Storage persists raw ledger-entry snapshots as JSON under the active and
// history namespaces in Redis.
type Storage struct {
	rdb *redis.Client
}

// NewStorage creates a snapshot store on a Redis client.
func NewStorage(rdb *redis.Client) *Storage {
	return &Storage{rdb: rdb}
}

// SaveToActive upserts a snapshot into the active namespace.
func (s *Storage) SaveToActive(ctx context.Context, up AccountUpdate) error {
	data, err := json.Marshal(up)
	if err != nil {
		return fmt.Errorf("bot: encode snapshot: %w", err)
	}
	return s.rdb.Set(ctx, activePrefix+up.Address, data, 0).Err()
}

// SaveAsHistory archives a snapshot: an atomic remove-from-active plus
// insert-into-history pair.
func (s *Storage) SaveAsHistory(ctx context.Context, up AccountUpdate) error {
	data, err := json.Marshal(up)
	if err != nil {
		return fmt.Errorf("bot: encode snapshot: %w", err)
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, activePrefix+up.Address)
		pipe.Set(ctx, historyPrefix+up.Address, data, 0)
		return nil
	})
	return err
}

// ScanActive streams every active snapshot through fn. A snapshot that
// fails to decode is skipped; the scan itself failing is an error.
func (s *Storage) ScanActive(ctx context.Context, fn func(AccountUpdate)) error {
	iter := s.rdb.Scan(ctx, 0, activePrefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		data, err := s.rdb.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			continue
		}
		var up AccountUpdate
		if err := json.Unmarshal(data, &up); err != nil {
			continue
		}
		fn(up)
	}
	return iter.Err()
}
