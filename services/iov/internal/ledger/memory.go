package ledger

import (
	"context"
	"fmt"
	"sync"

	"iovid/pkg/canonhash"
	"iovid/pkg/entity"
)

// Memory is the single-process ledger: a mutex-guarded, hash-chained,
// append-only store. Each transaction hash commits to the previous one, so
// record order is tamper-evident. Timestamps come from a logical clock to
// keep ordering strict even for writes within the same wall-clock instant.
type Memory struct {
	mu           sync.Mutex
	clock        int64
	prevHash     string
	users        map[string]User          // address -> user
	didToAddress map[string]string        // entity/wallet DID -> address
	documents    map[string][]byte        // did -> document JSON
	credentials  map[string][]byte        // credential id -> credential JSON
	vehicles     []VehicleRecord
	interactions []Interaction

	unavailable  bool
	rejectWrites bool
}

func NewMemory() *Memory {
	return &Memory{
		users:        make(map[string]User),
		didToAddress: make(map[string]string),
		documents:    make(map[string][]byte),
		credentials:  make(map[string][]byte),
	}
}

// SetUnavailable simulates the chain endpoint being unreachable.
func (m *Memory) SetUnavailable(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.unavailable = v
}

// SetRejectWrites simulates the contract reverting every write.
func (m *Memory) SetRejectWrites(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectWrites = v
}

func (m *Memory) RegisterUser(ctx context.Context, address, name string, typ entity.Type, entityDID, walletDID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gateWrite(); err != nil {
		return "", err
	}
	if _, ok := m.users[address]; ok {
		return "", fmt.Errorf("%w: address already registered", ErrTransactionRejected)
	}
	m.users[address] = User{Name: name, Type: typ, EntityDID: entityDID, WalletDID: walletDID, Address: address}
	m.didToAddress[entityDID] = address
	m.didToAddress[walletDID] = address
	return m.commit([]byte("register_user|" + address + "|" + entityDID + "|" + walletDID)), nil
}

func (m *Memory) User(ctx context.Context, address string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return User{}, ErrUnavailable
	}
	u, ok := m.users[address]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (m *Memory) RegisteredAddresses(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	out := make([]string, 0, len(m.users))
	for addr := range m.users {
		out = append(out, addr)
	}
	return out, nil
}

func (m *Memory) IsAddressRegistered(ctx context.Context, address string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}
	_, ok := m.users[address]
	return ok, nil
}

func (m *Memory) IsValidDID(ctx context.Context, did string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return false, ErrUnavailable
	}
	_, ok := m.didToAddress[did]
	return ok, nil
}

func (m *Memory) AddressByDID(ctx context.Context, did string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return "", ErrUnavailable
	}
	addr, ok := m.didToAddress[did]
	if !ok {
		return "", ErrNotFound
	}
	return addr, nil
}

func (m *Memory) StoreDIDDocument(ctx context.Context, did string, doc []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gateWrite(); err != nil {
		return err
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	m.documents[did] = cp
	m.commit(append([]byte("store_document|"+did+"|"), doc...))
	return nil
}

func (m *Memory) Document(ctx context.Context, did string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	doc, ok := m.documents[did]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(doc))
	copy(cp, doc)
	return cp, nil
}

func (m *Memory) StoreCredential(ctx context.Context, id, issuerDID, subjectDID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gateWrite(); err != nil {
		return err
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.credentials[id] = cp
	m.commit([]byte("store_credential|" + id + "|" + issuerDID + "|" + subjectDID))
	return nil
}

func (m *Memory) Credential(ctx context.Context, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	data, ok := m.credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) RegisterVehicle(ctx context.Context, v VehicleRecord) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gateWrite(); err != nil {
		return "", err
	}
	m.vehicles = append(m.vehicles, v)
	return m.commit([]byte("register_vehicle|" + v.VehicleDID + "|" + v.OwnerDID)), nil
}

func (m *Memory) UserVehicles(ctx context.Context, ownerDID string) ([]VehicleRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	var out []VehicleRecord
	for _, v := range m.vehicles {
		if v.OwnerDID == ownerDID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (m *Memory) RecordInteraction(ctx context.Context, rec Interaction) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.gateWrite(); err != nil {
		return "", err
	}
	m.clock++
	rec.Timestamp = m.clock
	rec.TxHash = m.commitNoTick(append([]byte("interaction|"+rec.SourceDID+"|"+rec.DestinationDID+"|"+string(rec.Type)+"|"), rec.Payload...))
	cp := make([]byte, len(rec.Payload))
	copy(cp, rec.Payload)
	rec.Payload = cp
	m.interactions = append(m.interactions, rec)
	return rec.TxHash, nil
}

func (m *Memory) EntityInteractions(ctx context.Context, id string) ([]Interaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.unavailable {
		return nil, ErrUnavailable
	}
	var out []Interaction
	for _, rec := range m.interactions {
		if rec.SourceDID == id || rec.DestinationDID == id {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) gateWrite() error {
	if m.unavailable {
		return ErrUnavailable
	}
	if m.rejectWrites {
		return ErrTransactionRejected
	}
	return nil
}

// commit chains payload onto the previous transaction hash and advances the
// logical clock.
func (m *Memory) commit(payload []byte) string {
	m.clock++
	return m.commitNoTick(payload)
}

func (m *Memory) commitNoTick(payload []byte) string {
	h := canonhash.SumBytes(append([]byte(m.prevHash+"|"+fmt.Sprint(m.clock)+"|"), payload...))
	m.prevHash = h
	return "0x" + h
}

var _ Ledger = (*Memory)(nil)
