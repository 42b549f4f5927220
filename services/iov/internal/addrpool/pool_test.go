package addrpool

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"iovid/pkg/entity"
	"iovid/services/iov/internal/ledger"
)

func testCandidates(n int) []Account {
	out := make([]Account, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, Account{
			Address:    "0xaddr" + string(rune('a'+i)),
			PrivateKey: "key" + string(rune('a'+i)),
		})
	}
	return out
}

func newTestManager(t *testing.T, lg ledger.Ledger, n int) *Manager {
	t.Helper()
	store := &FileState{Path: filepath.Join(t.TempDir(), "pool.json")}
	m, err := NewManager(context.Background(), lg, store, testCandidates(n), nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m
}

func TestAcquireIdempotent(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ledger.NewMemory(), 3)

	first, err := m.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	second, err := m.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire again: %v", err)
	}
	if first.Address != second.Address {
		t.Fatalf("same identity got two addresses: %s vs %s", first.Address, second.Address)
	}
}

func TestAcquireConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	const n = 8
	m := newTestManager(t, ledger.NewMemory(), n)

	var mu sync.Mutex
	seen := make(map[string]string)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "user-" + string(rune('0'+i))
			acct, err := m.Acquire(ctx, id)
			if err != nil {
				t.Errorf("Acquire %s: %v", id, err)
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if prev, dup := seen[acct.Address]; dup {
				t.Errorf("address %s handed to both %s and %s", acct.Address, prev, id)
			}
			seen[acct.Address] = id
		}(i)
	}
	wg.Wait()
}

func TestAcquireExhausted(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ledger.NewMemory(), 1)

	if _, err := m.Acquire(ctx, "user-1"); err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if _, err := m.Acquire(ctx, "user-2"); err != ErrResourceExhausted {
		t.Fatalf("want ErrResourceExhausted, got %v", err)
	}
}

func TestReleaseRegisteredKeepsBinding(t *testing.T) {
	ctx := context.Background()
	lg := ledger.NewMemory()
	m := newTestManager(t, lg, 2)

	acct, err := m.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	_, err = lg.RegisterUser(ctx, acct.Address, "alice", entity.Person,
		"did:ssi:entity:00000000-0000-0000-0000-000000000001",
		"did:ssi:wallet:00000000-0000-0000-0000-000000000002")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	if err := m.Release(ctx, "user-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	got, ok := m.Binding("user-1")
	if !ok || got.Address != acct.Address {
		t.Fatalf("registered binding dropped: ok=%v addr=%s", ok, got.Address)
	}
}

func TestReleaseUnregisteredReturnsToPool(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t, ledger.NewMemory(), 1)

	acct, err := m.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := m.Release(ctx, "user-1"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if _, ok := m.Binding("user-1"); ok {
		t.Fatal("binding survived release of unregistered address")
	}
	again, err := m.Acquire(ctx, "user-2")
	if err != nil {
		t.Fatalf("Acquire after release: %v", err)
	}
	if again.Address != acct.Address {
		t.Fatalf("released address not reissued: %s vs %s", again.Address, acct.Address)
	}
}

func TestStateSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	lg := ledger.NewMemory()
	store := &FileState{Path: filepath.Join(t.TempDir(), "pool.json")}
	cands := testCandidates(3)

	m1, err := NewManager(ctx, lg, store, cands, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	acct, err := m1.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	m2, err := NewManager(ctx, lg, store, cands, nil)
	if err != nil {
		t.Fatalf("NewManager restart: %v", err)
	}
	got, err := m2.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire after restart: %v", err)
	}
	if got.Address != acct.Address {
		t.Fatalf("binding lost across restart: %s vs %s", got.Address, acct.Address)
	}
}

func TestReloadSkipsRegisteredCandidates(t *testing.T) {
	ctx := context.Background()
	lg := ledger.NewMemory()
	cands := testCandidates(2)
	_, err := lg.RegisterUser(ctx, cands[0].Address, "bob", entity.Person,
		"did:ssi:entity:00000000-0000-0000-0000-000000000003",
		"did:ssi:wallet:00000000-0000-0000-0000-000000000004")
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	store := &FileState{Path: filepath.Join(t.TempDir(), "pool.json")}
	m, err := NewManager(ctx, lg, store, cands, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	got, err := m.Acquire(ctx, "user-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if got.Address == cands[0].Address {
		t.Fatal("registered candidate entered the pool")
	}
	if _, err := m.Acquire(ctx, "user-2"); err != ErrResourceExhausted {
		t.Fatalf("want ErrResourceExhausted, got %v", err)
	}
}
