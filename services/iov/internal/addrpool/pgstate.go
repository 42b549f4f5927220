package addrpool

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGState persists pool state as a single JSONB row, keyed so several pools
// (for example per environment) can share one table.
type PGState struct {
	Pool *pgxpool.Pool
	Key  string
}

const pgStateDDL = `
CREATE TABLE IF NOT EXISTS address_pool_state (
  pool_key   TEXT PRIMARY KEY,
  state      JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// EnsureSchema creates the backing table if it does not exist.
func (p *PGState) EnsureSchema(ctx context.Context) error {
	_, err := p.Pool.Exec(ctx, pgStateDDL)
	return err
}

func (p *PGState) Load(ctx context.Context) (State, error) {
	var st State
	err := p.Pool.QueryRow(ctx,
		`SELECT state FROM address_pool_state WHERE pool_key = $1`, p.Key).Scan(&st)
	if errors.Is(err, pgx.ErrNoRows) {
		return State{Used: map[string]Account{}}, nil
	}
	if err != nil {
		return st, err
	}
	if st.Used == nil {
		st.Used = map[string]Account{}
	}
	return st, nil
}

func (p *PGState) Save(ctx context.Context, st State) error {
	_, err := p.Pool.Exec(ctx, `
		INSERT INTO address_pool_state (pool_key, state, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (pool_key)
		DO UPDATE SET state = EXCLUDED.state, updated_at = now()`,
		p.Key, st)
	return err
}
