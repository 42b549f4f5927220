package wallet

import (
	"context"
	"encoding/json"
	"sync"
)

// Store persists wallets keyed by DID. Get creates a fresh default wallet on
// first access. Mutate applies fn to the wallet under the store's write
// serialization, so concurrent mutations never lose updates.
type Store interface {
	Get(ctx context.Context, did string) (Wallet, error)
	Mutate(ctx context.Context, did string, fn func(*Wallet) error) (Wallet, error)
}

// MemStore keeps wallets in memory. It round-trips wallets through JSON on
// read so callers never alias internal state.
type MemStore struct {
	mu      sync.Mutex
	wallets map[string]Wallet
}

func NewMemStore() *MemStore {
	return &MemStore{wallets: make(map[string]Wallet)}
}

func (s *MemStore) Get(_ context.Context, did string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.getLocked(did))
}

func (s *MemStore) Mutate(_ context.Context, did string, fn func(*Wallet) error) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, err := clone(s.getLocked(did))
	if err != nil {
		return Wallet{}, err
	}
	if err := fn(&w); err != nil {
		return Wallet{}, err
	}
	s.wallets[did] = w
	return clone(w)
}

func (s *MemStore) getLocked(did string) Wallet {
	w, ok := s.wallets[did]
	if !ok {
		w = New(did)
		s.wallets[did] = w
	}
	return w
}

func clone(w Wallet) (Wallet, error) {
	b, err := json.Marshal(w)
	if err != nil {
		return Wallet{}, err
	}
	var out Wallet
	if err := json.Unmarshal(b, &out); err != nil {
		return Wallet{}, err
	}
	return out, nil
}

var _ Store = (*MemStore)(nil)
