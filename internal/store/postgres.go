package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres is the production storage backend. Snapshots live in the
// kv_snapshots table; per-session agent state lives in agent_states.
//
// Postgres is safe for concurrent use (pgxpool handles connection sharing).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres backend over an existing connection pool.
// The pool's lifetime is owned by the caller.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ReadSnapshots implements Storage.
func (p *Postgres) ReadSnapshots(ctx context.Context, names []string) (map[string][]byte, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT name, data FROM kv_snapshots WHERE name = ANY($1)`, names)
	if err != nil {
		return nil, fmt.Errorf("querying snapshots: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string][]byte, len(names))
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		snapshots[name] = data
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading snapshot rows: %w", err)
	}
	return snapshots, nil
}

// WriteSnapshots implements Storage. All rows are upserted inside one
// transaction so a partial write can never be observed.
func (p *Postgres) WriteSnapshots(ctx context.Context, snapshots map[string][]byte) error {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for name, data := range snapshots {
		_, err := tx.Exec(ctx,
			`INSERT INTO kv_snapshots (name, data, updated_at)
			 VALUES ($1, $2, now())
			 ON CONFLICT (name) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
			name, data)
		if err != nil {
			return fmt.Errorf("upserting snapshot %q: %w", name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing snapshots: %w", err)
	}
	return nil
}

// ReadState returns the serialized agent state for a session, or nil if the
// session has no persisted state yet.
func (p *Postgres) ReadState(ctx context.Context, sessionID string) ([]byte, error) {
	var data []byte
	err := p.pool.QueryRow(ctx,
		`SELECT data FROM agent_states WHERE session_id = $1`, sessionID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying agent state %q: %w", sessionID, err)
	}
	return data, nil
}

// WriteState upserts the serialized agent state for a session.
func (p *Postgres) WriteState(ctx context.Context, sessionID string, data []byte) error {
	_, err := p.pool.Exec(ctx,
		`INSERT INTO agent_states (session_id, data, updated_at)
		 VALUES ($1, $2, now())
		 ON CONFLICT (session_id) DO UPDATE SET data = EXCLUDED.data, updated_at = now()`,
		sessionID, data)
	if err != nil {
		return fmt.Errorf("upserting agent state %q: %w", sessionID, err)
	}
	return nil
}

// DeleteState removes the persisted agent state for a session. Deleting a
// session that has no state is not an error.
func (p *Postgres) DeleteState(ctx context.Context, sessionID string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM agent_states WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("deleting agent state %q: %w", sessionID, err)
	}
	return nil
}
