package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fusionbridge/swapd/coordinator"
	"github.com/fusionbridge/swapd/events"
	"github.com/jackc/pgx/v4/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS swap_records (
	swap_key   TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_checkpoints (
	chain      TEXT PRIMARY KEY,
	payload    JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// PostgresBackend is an alternate Backend implementation for operators who
// run a real RDBMS instead of the embedded default.
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresBackend, error) {
	pool, err := pgxpool.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: connect postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}

	return &PostgresBackend{pool: pool}, nil
}

var _ Backend = (*PostgresBackend)(nil)

// PutRecord implements Backend.
func (p *PostgresBackend) PutRecord(ctx context.Context, r coordinator.Record) error {
	buf, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("storage: encode record: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO swap_records (swap_key, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (swap_key) DO UPDATE SET payload = $2, updated_at = now()
	`, r.SwapKey, buf)

	return err
}

// GetRecord implements Backend.
func (p *PostgresBackend) GetRecord(ctx context.Context, swapKey string) (coordinator.Record, bool, error) {
	var buf []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM swap_records WHERE swap_key = $1`, swapKey).Scan(&buf)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return coordinator.Record{}, false, nil
		}
		return coordinator.Record{}, false, err
	}

	var r coordinator.Record
	if err := json.Unmarshal(buf, &r); err != nil {
		return coordinator.Record{}, false, err
	}

	return r, true, nil
}

// ListRecords implements Backend.
func (p *PostgresBackend) ListRecords(ctx context.Context) ([]coordinator.Record, error) {
	rows, err := p.pool.Query(ctx, `SELECT payload FROM swap_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []coordinator.Record
	for rows.Next() {
		var buf []byte
		if err := rows.Scan(&buf); err != nil {
			return nil, err
		}

		var r coordinator.Record
		if err := json.Unmarshal(buf, &r); err != nil {
			return nil, err
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// PutCheckpoint implements Backend.
func (p *PostgresBackend) PutCheckpoint(ctx context.Context, chain events.Chain, cp events.Checkpoint) error {
	buf, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("storage: encode checkpoint: %w", err)
	}

	_, err = p.pool.Exec(ctx, `
		INSERT INTO event_checkpoints (chain, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (chain) DO UPDATE SET payload = $2, updated_at = now()
	`, chain.String(), buf)

	return err
}

// GetCheckpoint implements Backend.
func (p *PostgresBackend) GetCheckpoint(ctx context.Context, chain events.Chain) (events.Checkpoint, error) {
	var buf []byte
	err := p.pool.QueryRow(ctx, `SELECT payload FROM event_checkpoints WHERE chain = $1`, chain.String()).Scan(&buf)
	if err != nil {
		if err.Error() == "no rows in result set" {
			return events.Checkpoint{}, nil
		}
		return events.Checkpoint{}, err
	}

	var cp events.Checkpoint
	if err := json.Unmarshal(buf, &cp); err != nil {
		return events.Checkpoint{}, err
	}

	return cp, nil
}

// Close implements Backend.
func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
