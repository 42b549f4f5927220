// Package addrpool manages the finite inventory of funded ledger signing
// accounts and binds them 1:1 to logical identities.
package addrpool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"iovid/services/iov/internal/ledger"
)

// ErrResourceExhausted means no signing account is available even after a
// reload from the candidate set.
var ErrResourceExhausted = errors.New("addrpool: no signing accounts available")

// Account is one funded ledger account usable as a signer.
type Account struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// State is the full persisted pool state. Every mutation writes it back so a
// restart recovers all bindings.
type State struct {
	Available []Account          `json:"available"`
	Used      map[string]Account `json:"used"` // logical identity -> account
}

// StateStore persists pool state between restarts.
type StateStore interface {
	Load(ctx context.Context) (State, error)
	Save(ctx context.Context, st State) error
}

// Manager hands out accounts from a fixed candidate set. The single mutex
// covers the whole read-modify-write cycle of every operation, so two
// concurrent acquisitions can never claim the same address.
type Manager struct {
	mu         sync.Mutex
	ledger     ledger.Ledger
	store      StateStore
	candidates []Account
	state      State
	log        *slog.Logger
}

func NewManager(ctx context.Context, lg ledger.Ledger, store StateStore, candidates []Account, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("addrpool: load state: %w", err)
	}
	if st.Used == nil {
		st.Used = make(map[string]Account)
	}
	m := &Manager{ledger: lg, store: store, candidates: candidates, state: st, log: logger}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadLocked(ctx)
	if err := m.store.Save(ctx, m.state); err != nil {
		return nil, fmt.Errorf("addrpool: save state: %w", err)
	}
	return m, nil
}

// Acquire returns the account bound to id, binding a fresh one from the
// available pool if needed. Repeated calls for the same id return the same
// binding.
func (m *Manager) Acquire(ctx context.Context, id string) (Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if acct, ok := m.state.Used[id]; ok {
		return acct, nil
	}
	if len(m.state.Available) == 0 {
		m.reloadLocked(ctx)
	}
	if len(m.state.Available) == 0 {
		return Account{}, ErrResourceExhausted
	}
	acct := m.state.Available[0]
	m.state.Available = m.state.Available[1:]
	m.state.Used[id] = acct
	if err := m.store.Save(ctx, m.state); err != nil {
		return Account{}, fmt.Errorf("addrpool: save state: %w", err)
	}
	return acct, nil
}

// Release returns id's account to the available pool, unless the account has
// already been registered on the ledger. A registered address must never be
// reused, so the binding is kept as-is in that case. Unknown ids are a no-op.
func (m *Manager) Release(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.state.Used[id]
	if !ok {
		return nil
	}
	registered, err := m.ledger.IsAddressRegistered(ctx, acct.Address)
	if err != nil {
		m.log.Warn("addrpool: registration check failed, keeping binding",
			"identity", id, "address", acct.Address, "err", err)
		return nil
	}
	if registered {
		m.log.Info("addrpool: not releasing registered address",
			"identity", id, "address", acct.Address)
		return nil
	}
	delete(m.state.Used, id)
	m.state.Available = append(m.state.Available, acct)
	if err := m.store.Save(ctx, m.state); err != nil {
		return fmt.Errorf("addrpool: save state: %w", err)
	}
	return nil
}

// Reload re-scans the candidate set for accounts that are neither bound nor
// registered on the ledger. Ledger unavailability is logged and leaves the
// existing state untouched.
func (m *Manager) Reload(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadLocked(ctx)
	if err := m.store.Save(ctx, m.state); err != nil {
		m.log.Error("addrpool: save state after reload", "err", err)
	}
}

func (m *Manager) reloadLocked(ctx context.Context) {
	inUse := make(map[string]bool, len(m.state.Used)+len(m.state.Available))
	for _, acct := range m.state.Used {
		inUse[acct.Address] = true
	}
	for _, acct := range m.state.Available {
		inUse[acct.Address] = true
	}

	for _, cand := range m.candidates {
		if inUse[cand.Address] {
			continue
		}
		registered, err := m.ledger.IsAddressRegistered(ctx, cand.Address)
		if err != nil {
			m.log.Warn("addrpool: reload aborted, ledger unreachable", "address", cand.Address, "err", err)
			return
		}
		if registered {
			continue
		}
		m.state.Available = append(m.state.Available, cand)
		inUse[cand.Address] = true
	}
}

// Binding reports the account currently bound to id, if any.
func (m *Manager) Binding(id string) (Account, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acct, ok := m.state.Used[id]
	return acct, ok
}
