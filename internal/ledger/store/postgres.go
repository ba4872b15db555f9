package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/marketledger/internal/platform/db"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS ledger_state (
	name TEXT PRIMARY KEY,
	payload JSONB NOT NULL,
	saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Postgres keeps state documents in the ledger_state table.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres constructs the Postgres store.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// EnsureSchema creates the ledger_state table when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	return nil
}

// Save upserts payload under name.
func (p *Postgres) Save(ctx context.Context, name string, payload []byte) error {
	return db.WithTx(ctx, p.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO ledger_state (name, payload, saved_at) VALUES ($1, $2, NOW())
			ON CONFLICT (name) DO UPDATE SET payload = EXCLUDED.payload, saved_at = EXCLUDED.saved_at`, name, payload)
		if err != nil {
			return fmt.Errorf("store: save %s: %w", name, err)
		}
		return nil
	})
}

// Load returns the payload saved under name.
func (p *Postgres) Load(ctx context.Context, name string) ([]byte, error) {
	var payload []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM ledger_state WHERE name = $1`, name).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNoState
	}
	if err != nil {
		return nil, fmt.Errorf("store: load %s: %w", name, err)
	}
	return payload, nil
}
