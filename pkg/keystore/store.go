package keystore

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// MemStore keeps key pairs in memory; used in tests and as a cache.
type MemStore struct {
	mu   sync.RWMutex
	keys map[string]KeyPair
}

func NewMemStore() *MemStore {
	return &MemStore{keys: make(map[string]KeyPair)}
}

func (s *MemStore) Put(id string, kp KeyPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[id] = kp
	return nil
}

func (s *MemStore) Get(id string) (KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kp, ok := s.keys[id]
	if !ok {
		return KeyPair{}, ErrNotFound
	}
	return kp, nil
}

// DirStore persists each identity's pair as private.pem/public.pem under a
// per-identity directory. Key material is stored unencrypted, which matches
// the deployment assumption of a single trusted host.
type DirStore struct {
	root string
}

func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, err
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) Put(id string, kp KeyPair) error {
	dir := s.dir(id)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "private.pem"), kp.PrivateKeyPEM, 0o600); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "public.pem"), kp.PublicKeyPEM, 0o644)
}

func (s *DirStore) Get(id string) (KeyPair, error) {
	dir := s.dir(id)
	priv, err := os.ReadFile(filepath.Join(dir, "private.pem"))
	if err != nil {
		if os.IsNotExist(err) {
			return KeyPair{}, ErrNotFound
		}
		return KeyPair{}, err
	}
	pub, err := os.ReadFile(filepath.Join(dir, "public.pem"))
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{PrivateKeyPEM: priv, PublicKeyPEM: pub}, nil
}

func (s *DirStore) dir(id string) string {
	return filepath.Join(s.root, strings.ReplaceAll(id, ":", "_"))
}
