package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scale-protocol/bond/internal/model"
)

// Postgres implements Ledger on PostgreSQL. Records are stored as JSONB
// snapshots keyed by address, matching the key-value shape of the host
// ledger; Commit maps onto a database transaction for atomicity.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed ledger.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the ledger tables if they do not exist.
func (l *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := l.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS bond_markets (
			address TEXT PRIMARY KEY,
			data    JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS bond_users (
			address TEXT PRIMARY KEY,
			data    JSONB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS bond_positions (
			address  TEXT PRIMARY KEY,
			owner    TEXT NOT NULL,
			archived BOOLEAN NOT NULL DEFAULT FALSE,
			data     JSONB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS bond_positions_owner_idx ON bond_positions (owner, archived);
	`)
	return err
}

func (l *Postgres) GetMarket(ctx context.Context, address string) (*model.Market, error) {
	var m model.Market
	if err := l.getRecord(ctx, "bond_markets", address, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (l *Postgres) GetUserAccount(ctx context.Context, address string) (*model.UserAccount, error) {
	var u model.UserAccount
	if err := l.getRecord(ctx, "bond_users", address, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (l *Postgres) GetPosition(ctx context.Context, address string) (*model.Position, error) {
	var p model.Position
	var data []byte
	err := l.pool.QueryRow(ctx,
		`SELECT data FROM bond_positions WHERE address = $1 AND NOT archived`, address).
		Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("ledger: query position: %w", err)
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("ledger: decode position: %w", err)
	}
	return &p, nil
}

func (l *Postgres) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := l.pool.Query(ctx, `SELECT data FROM bond_markets`)
	if err != nil {
		return nil, fmt.Errorf("ledger: list markets: %w", err)
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var m model.Market
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("ledger: decode market: %w", err)
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

func (l *Postgres) ListPositions(ctx context.Context, owner string) ([]model.Position, error) {
	return l.listPositions(ctx, owner, false)
}

func (l *Postgres) ListHistoryPositions(ctx context.Context, owner string) ([]model.Position, error) {
	return l.listPositions(ctx, owner, true)
}

func (l *Postgres) Commit(ctx context.Context, tx *Tx) error {
	dbtx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ledger: begin commit: %w", err)
	}
	defer dbtx.Rollback(ctx)

	for addr, m := range tx.markets {
		if err := upsert(ctx, dbtx, "bond_markets", addr, m); err != nil {
			return err
		}
	}
	for addr, u := range tx.users {
		if err := upsert(ctx, dbtx, "bond_users", addr, u); err != nil {
			return err
		}
	}
	for addr, p := range tx.positions {
		if err := upsertPosition(ctx, dbtx, addr, p, false); err != nil {
			return err
		}
	}
	for addr, p := range tx.archived {
		if err := upsertPosition(ctx, dbtx, addr, p, true); err != nil {
			return err
		}
	}
	return dbtx.Commit(ctx)
}

func (l *Postgres) getRecord(ctx context.Context, table, address string, out any) error {
	var data []byte
	err := l.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT data FROM %s WHERE address = $1`, table), address).
		Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("ledger: query %s: %w", table, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("ledger: decode %s: %w", table, err)
	}
	return nil
}

func (l *Postgres) listPositions(ctx context.Context, owner string, archived bool) ([]model.Position, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT data FROM bond_positions WHERE owner = $1 AND archived = $2`, owner, archived)
	if err != nil {
		return nil, fmt.Errorf("ledger: list positions: %w", err)
	}
	defer rows.Close()

	var positions []model.Position
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var p model.Position
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("ledger: decode position: %w", err)
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func upsert(ctx context.Context, dbtx pgx.Tx, table, address string, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("ledger: encode %s: %w", table, err)
	}
	_, err = dbtx.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (address, data) VALUES ($1, $2)
		 ON CONFLICT (address) DO UPDATE SET data = EXCLUDED.data`, table),
		address, data)
	return err
}

func upsertPosition(ctx context.Context, dbtx pgx.Tx, address string, p *model.Position, archived bool) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("ledger: encode position: %w", err)
	}
	_, err = dbtx.Exec(ctx,
		`INSERT INTO bond_positions (address, owner, archived, data) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (address) DO UPDATE SET owner = EXCLUDED.owner,
		     archived = EXCLUDED.archived, data = EXCLUDED.data`,
		address, p.Authority, archived, data)
	return err
}
