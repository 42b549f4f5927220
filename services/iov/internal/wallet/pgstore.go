package wallet

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists each wallet as one JSONB row. Mutate serializes
// read-modify-write cycles per DID with a transaction-scoped advisory lock,
// so two concurrent mutations of the same wallet apply in sequence.
type PGStore struct {
	DB *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore { return &PGStore{DB: db} }

const pgWalletDDL = `
CREATE TABLE IF NOT EXISTS wallets (
  did        TEXT PRIMARY KEY,
  state      JSONB NOT NULL,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

func (s *PGStore) EnsureSchema(ctx context.Context) error {
	_, err := s.DB.Exec(ctx, pgWalletDDL)
	return err
}

func (s *PGStore) Get(ctx context.Context, did string) (Wallet, error) {
	var raw []byte
	err := s.DB.QueryRow(ctx, `SELECT state FROM wallets WHERE did=$1`, did).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return s.Mutate(ctx, did, func(*Wallet) error { return nil })
	}
	if err != nil {
		return Wallet{}, err
	}
	var w Wallet
	if err := json.Unmarshal(raw, &w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

func (s *PGStore) Mutate(ctx context.Context, did string, fn func(*Wallet) error) (Wallet, error) {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return Wallet{}, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, did); err != nil {
		return Wallet{}, err
	}

	var w Wallet
	var raw []byte
	err = tx.QueryRow(ctx, `SELECT state FROM wallets WHERE did=$1`, did).Scan(&raw)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		w = New(did)
	case err != nil:
		return Wallet{}, err
	default:
		if err := json.Unmarshal(raw, &w); err != nil {
			return Wallet{}, err
		}
	}

	if err := fn(&w); err != nil {
		return Wallet{}, err
	}

	b, err := json.Marshal(w)
	if err != nil {
		return Wallet{}, err
	}
	if _, err := tx.Exec(ctx, `
INSERT INTO wallets(did,state) VALUES($1,$2::jsonb)
ON CONFLICT (did) DO UPDATE SET state=EXCLUDED.state, updated_at=now()
`, did, string(b)); err != nil {
		return Wallet{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

var _ Store = (*PGStore)(nil)
