package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"iovid/pkg/did"
	"iovid/pkg/entity"
	"iovid/pkg/keystore"
	"iovid/services/iov/internal/addrpool"
	"iovid/services/iov/internal/ledger"
)

var (
	// ErrIdentityNotFound means the DID is not registered on the ledger.
	ErrIdentityNotFound = errors.New("identity: not found")
	// ErrDocumentNotFound means the DID has no stored document.
	ErrDocumentNotFound = errors.New("identity: document not found")
	// ErrSigningUnavailable means the signing key for the DID is missing or
	// unusable.
	ErrSigningUnavailable = errors.New("identity: signing unavailable")
	// ErrLedgerWriteFailed means a ledger write did not commit.
	ErrLedgerWriteFailed = errors.New("identity: ledger write failed")
)

// Manager runs identity lifecycle operations against the ledger, the address
// pool, and the key store.
type Manager struct {
	ledger ledger.Ledger
	pool   *addrpool.Manager
	keys   keystore.Store
	log    *slog.Logger

	mu       sync.Mutex
	docLocks map[string]*sync.Mutex
}

func NewManager(lg ledger.Ledger, pool *addrpool.Manager, keys keystore.Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{ledger: lg, pool: pool, keys: keys, log: logger, docLocks: make(map[string]*sync.Mutex)}
}

// CreatedIdentity is the result of CreateIdentity.
type CreatedIdentity struct {
	EntityDID      string   `json:"entity_did"`
	WalletDID      string   `json:"wallet_did"`
	Address        string   `json:"address"`
	EntityDocument Document `json:"entity_did_document"`
	WalletDocument Document `json:"wallet_did_document"`
}

// CreateIdentity mints an entity/wallet DID pair, binds a signing account,
// registers the pair on the ledger, and publishes both documents. Failures
// before registration release the bound account; failures after registration
// leave the binding in place and surface as ErrLedgerWriteFailed.
func (m *Manager) CreateIdentity(ctx context.Context, name string, typ entity.Type) (CreatedIdentity, error) {
	entityDID := did.NewEntity()
	walletDID := did.NewWallet()

	acct, err := m.pool.Acquire(ctx, entityDID)
	if err != nil {
		return CreatedIdentity{}, fmt.Errorf("identity: bind signing account: %w", err)
	}

	entityKeys, err := keystore.Generate()
	if err != nil {
		m.releaseQuietly(ctx, entityDID)
		return CreatedIdentity{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	walletKeys, err := keystore.Generate()
	if err != nil {
		m.releaseQuietly(ctx, entityDID)
		return CreatedIdentity{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}

	if _, err := m.ledger.RegisterUser(ctx, acct.Address, name, typ, entityDID, walletDID); err != nil {
		m.releaseQuietly(ctx, entityDID)
		return CreatedIdentity{}, fmt.Errorf("%w: register user: %v", ErrLedgerWriteFailed, err)
	}

	if err := m.keys.Put(entityDID, entityKeys); err != nil {
		m.abandonRegistered(ctx, entityDID, "entity key")
		return CreatedIdentity{}, fmt.Errorf("%w: store entity key: %v", ErrLedgerWriteFailed, err)
	}
	if err := m.keys.Put(walletDID, walletKeys); err != nil {
		m.abandonRegistered(ctx, entityDID, "wallet key")
		return CreatedIdentity{}, fmt.Errorf("%w: store wallet key: %v", ErrLedgerWriteFailed, err)
	}

	entityDoc := NewDocument(entityDID, entityKeys.PublicKeyPEM)
	entityDoc.Types = append(entityDoc.Types, typ.DocumentTag(), "VerifiableCredential")
	entityDoc.Service = append(entityDoc.Service, ServiceEndpoint{
		ID:         walletDID + "#wallet",
		Type:       []string{"ServiceEndpoint"},
		Controller: entityDID,
		Endpoint:   "https://api.example.org/wallet/" + walletDID,
	})
	if err := m.storeDocument(ctx, entityDID, entityDoc); err != nil {
		m.abandonRegistered(ctx, entityDID, "entity document")
		return CreatedIdentity{}, err
	}

	walletDoc := NewDocument(walletDID, walletKeys.PublicKeyPEM)
	walletDoc.Types = append(walletDoc.Types, "VerifiableCredential", "Wallet")
	walletDoc.Service = append(walletDoc.Service, ServiceEndpoint{
		ID:         entityDID + "#entity",
		Type:       []string{"WalletService"},
		Controller: entityDID,
		Endpoint:   "https://api.example.org/wallet/" + entityDID,
	})
	if err := m.storeDocument(ctx, walletDID, walletDoc); err != nil {
		m.abandonRegistered(ctx, entityDID, "wallet document")
		return CreatedIdentity{}, err
	}

	return CreatedIdentity{
		EntityDID:      entityDID,
		WalletDID:      walletDID,
		Address:        acct.Address,
		EntityDocument: entityDoc,
		WalletDocument: walletDoc,
	}, nil
}

// VehicleSpec describes a vehicle being registered.
type VehicleSpec struct {
	VIN   string `json:"vin"`
	Make  string `json:"make"`
	Model string `json:"model"`
	Year  int    `json:"year"`
	Color string `json:"color"`
}

// RegisteredVehicle is the result of RegisterVehicle.
type RegisteredVehicle struct {
	VehicleDID      string   `json:"vehicle_did"`
	WalletDID       string   `json:"wallet_did"`
	VehicleDocument Document `json:"vehicle_doc"`
	WalletDocument  Document `json:"wallet_doc"`
}

// RegisterVehicle mints a vehicle identity owned by ownerDID, publishes its
// documents, and links the vehicle into the owner's document.
func (m *Manager) RegisterVehicle(ctx context.Context, ownerDID string, spec VehicleSpec) (RegisteredVehicle, error) {
	valid, err := m.ledger.IsValidDID(ctx, ownerDID)
	if err != nil {
		return RegisteredVehicle{}, fmt.Errorf("identity: check owner: %w", err)
	}
	if !valid {
		return RegisteredVehicle{}, fmt.Errorf("%w: owner %s", ErrIdentityNotFound, ownerDID)
	}

	vehicleDID := did.NewEntity()
	walletDID := did.NewWallet()

	acct, err := m.pool.Acquire(ctx, vehicleDID)
	if err != nil {
		return RegisteredVehicle{}, fmt.Errorf("identity: bind signing account: %w", err)
	}
	vehicleKeys, err := keystore.Generate()
	if err != nil {
		m.releaseQuietly(ctx, vehicleDID)
		return RegisteredVehicle{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	walletKeys, err := keystore.Generate()
	if err != nil {
		m.releaseQuietly(ctx, vehicleDID)
		return RegisteredVehicle{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}

	name := spec.Make + " " + spec.Model
	if _, err := m.ledger.RegisterUser(ctx, acct.Address, name, entity.Vehicle, vehicleDID, walletDID); err != nil {
		m.releaseQuietly(ctx, vehicleDID)
		return RegisteredVehicle{}, fmt.Errorf("%w: register vehicle identity: %v", ErrLedgerWriteFailed, err)
	}
	if _, err := m.ledger.RegisterVehicle(ctx, ledger.VehicleRecord{
		VehicleDID: vehicleDID,
		WalletDID:  walletDID,
		OwnerDID:   ownerDID,
		VIN:        spec.VIN,
		Make:       spec.Make,
		Model:      spec.Model,
		Year:       spec.Year,
	}); err != nil {
		m.abandonRegistered(ctx, vehicleDID, "vehicle record")
		return RegisteredVehicle{}, fmt.Errorf("%w: register vehicle record: %v", ErrLedgerWriteFailed, err)
	}

	if err := m.keys.Put(vehicleDID, vehicleKeys); err != nil {
		m.abandonRegistered(ctx, vehicleDID, "vehicle key")
		return RegisteredVehicle{}, fmt.Errorf("%w: store vehicle key: %v", ErrLedgerWriteFailed, err)
	}
	if err := m.keys.Put(walletDID, walletKeys); err != nil {
		m.abandonRegistered(ctx, vehicleDID, "vehicle wallet key")
		return RegisteredVehicle{}, fmt.Errorf("%w: store wallet key: %v", ErrLedgerWriteFailed, err)
	}

	vehicleDoc := NewDocument(vehicleDID, vehicleKeys.PublicKeyPEM)
	vehicleDoc.Types = append(vehicleDoc.Types, "VerifiableCredential", entity.Vehicle.DocumentTag())
	vehicleDoc.Info = append(vehicleDoc.Info,
		map[string]any{
			"id":        vehicleDID + "#vehicle_" + spec.VIN,
			"owner_did": ownerDID,
			"vin":       spec.VIN,
			"make":      spec.Make,
			"model":     spec.Model,
			"year":      spec.Year,
			"color":     spec.Color,
		},
		map[string]any{
			"id":              walletDID + "#wallet",
			"type":            "WalletLink",
			"serviceEndpoint": walletDID,
		},
	)
	if err := m.storeDocument(ctx, vehicleDID, vehicleDoc); err != nil {
		m.abandonRegistered(ctx, vehicleDID, "vehicle document")
		return RegisteredVehicle{}, err
	}

	walletDoc := NewDocument(walletDID, walletKeys.PublicKeyPEM)
	walletDoc.Types = append(walletDoc.Types, "VerifiableCredential", "VehicleWallet")
	walletDoc.Service = append(walletDoc.Service, ServiceEndpoint{
		ID:       walletDID + "#entity",
		Type:     []string{"EntityLink"},
		Endpoint: vehicleDID,
	})
	if err := m.storeDocument(ctx, walletDID, walletDoc); err != nil {
		m.abandonRegistered(ctx, vehicleDID, "vehicle wallet document")
		return RegisteredVehicle{}, err
	}

	ownedEntry := map[string]any{
		"id":            vehicleDID + "#vehicle_" + spec.VIN,
		"type":          "OwnedVehicle",
		"vehicle_did":   vehicleDID,
		"wallet_did":    walletDID,
		"acquired_date": time.Now().UTC().Format(time.RFC3339),
	}
	if err := m.AppendOwnerInfo(ctx, ownerDID, ownedEntry); err != nil {
		m.log.Error("identity: vehicle registered but owner document not updated",
			"vehicle", vehicleDID, "owner", ownerDID, "err", err)
		return RegisteredVehicle{}, err
	}

	return RegisteredVehicle{
		VehicleDID:      vehicleDID,
		WalletDID:       walletDID,
		VehicleDocument: vehicleDoc,
		WalletDocument:  walletDoc,
	}, nil
}

// Document resolves the stored document for a DID.
func (m *Manager) Document(ctx context.Context, id string) (Document, error) {
	raw, err := m.ledger.Document(ctx, id)
	if errors.Is(err, ledger.ErrNotFound) {
		return Document{}, fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	if err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("identity: decode document %s: %w", id, err)
	}
	return doc, nil
}

// AppendOwnerInfo appends one info record to the DID's document.
func (m *Manager) AppendOwnerInfo(ctx context.Context, id string, info map[string]any) error {
	return m.mutateDocument(ctx, id, func(doc *Document) error {
		doc.Info = append(doc.Info, info)
		return nil
	})
}

// AppendCredential appends a credential to the DID's document.
func (m *Manager) AppendCredential(ctx context.Context, id string, cred Credential) error {
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return m.mutateDocument(ctx, id, func(doc *Document) error {
		doc.Credentials = append(doc.Credentials, raw)
		return nil
	})
}

// TransferOwnership moves the vehicle to a new owner. The outgoing owner is
// pushed onto previous_owners before owner_did is overwritten, so the chain
// of custody stays reconstructable.
func (m *Manager) TransferOwnership(ctx context.Context, vehicleDID, newOwnerDID string) error {
	valid, err := m.ledger.IsValidDID(ctx, newOwnerDID)
	if err != nil {
		return fmt.Errorf("identity: check new owner: %w", err)
	}
	if !valid {
		return fmt.Errorf("%w: new owner %s", ErrIdentityNotFound, newOwnerDID)
	}
	return m.mutateDocument(ctx, vehicleDID, func(doc *Document) error {
		if len(doc.Info) == 0 {
			doc.Info = append(doc.Info, map[string]any{})
		}
		ownerInfo := doc.Info[0]
		prev, _ := ownerInfo["previous_owners"].([]any)
		if current, ok := ownerInfo["owner_did"]; ok {
			prev = append(prev, current)
		}
		ownerInfo["previous_owners"] = prev
		ownerInfo["owner_did"] = newOwnerDID
		return nil
	})
}

// IssueCredential creates, signs, and stores a credential from issuer to
// subject. A claims entry named "type" (string) is promoted into the
// credential type list.
func (m *Manager) IssueCredential(ctx context.Context, issuerDID, subjectDID string, claims map[string]any) (Credential, error) {
	keys, err := m.keys.Get(issuerDID)
	if errors.Is(err, keystore.ErrNotFound) {
		return Credential{}, fmt.Errorf("%w: no key for issuer %s", ErrSigningUnavailable, issuerDID)
	}
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}

	types := []string{"VerifiableCredential"}
	if t, ok := claims["type"].(string); ok {
		types = append(types, t)
	}
	subject := map[string]any{"id": subjectDID}
	for k, v := range claims {
		subject[k] = v
	}
	cred := Credential{
		Context:           credentialContext,
		ID:                did.NewCredential(),
		Types:             types,
		Issuer:            issuerDID,
		IssuanceDate:      time.Now().UTC(),
		CredentialSubject: subject,
	}
	if err := cred.sign(keys.PrivateKeyPEM); err != nil {
		return Credential{}, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}

	raw, err := json.Marshal(cred)
	if err != nil {
		return Credential{}, err
	}
	if err := m.ledger.StoreCredential(ctx, cred.ID, issuerDID, subjectDID, raw); err != nil {
		return Credential{}, fmt.Errorf("%w: store credential: %v", ErrLedgerWriteFailed, err)
	}
	return cred, nil
}

// VerifyCredential fetches a credential and checks its proof against the
// issuer's published key.
func (m *Manager) VerifyCredential(ctx context.Context, credentialID string) (Credential, bool, error) {
	raw, err := m.ledger.Credential(ctx, credentialID)
	if errors.Is(err, ledger.ErrNotFound) {
		return Credential{}, false, fmt.Errorf("%w: credential %s", ErrIdentityNotFound, credentialID)
	}
	if err != nil {
		return Credential{}, false, err
	}
	var cred Credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return Credential{}, false, fmt.Errorf("identity: decode credential: %w", err)
	}
	pub, err := m.publicKeyFor(ctx, cred.Issuer)
	if err != nil {
		return cred, false, nil
	}
	return cred, cred.VerifyProof(pub), nil
}

// Sign signs a message with the DID's private key.
func (m *Manager) Sign(did string, message []byte) ([]byte, error) {
	keys, err := m.keys.Get(did)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	sig, err := keystore.Sign(keys.PrivateKeyPEM, message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSigningUnavailable, err)
	}
	return sig, nil
}

// VerifySignature checks a signature against the DID's public key. It
// reports false for unknown DIDs and malformed signatures.
func (m *Manager) VerifySignature(ctx context.Context, did string, message, sig []byte) bool {
	pub, err := m.publicKeyFor(ctx, did)
	if err != nil {
		return false
	}
	return keystore.Verify(pub, message, sig)
}

// VerifyDID reports whether the DID is registered on the ledger.
func (m *Manager) VerifyDID(ctx context.Context, id string) (bool, error) {
	return m.ledger.IsValidDID(ctx, id)
}

// UserVehicles lists the vehicles registered to an owner.
func (m *Manager) UserVehicles(ctx context.Context, ownerDID string) ([]ledger.VehicleRecord, error) {
	return m.ledger.UserVehicles(ctx, ownerDID)
}

// publicKeyFor prefers the local key store and falls back to the published
// document.
func (m *Manager) publicKeyFor(ctx context.Context, id string) ([]byte, error) {
	if keys, err := m.keys.Get(id); err == nil {
		return keys.PublicKeyPEM, nil
	}
	doc, err := m.Document(ctx, id)
	if err != nil {
		return nil, err
	}
	pub := doc.PublicKeyPEM()
	if pub == nil {
		return nil, fmt.Errorf("%w: no verification method for %s", ErrIdentityNotFound, id)
	}
	return pub, nil
}

// mutateDocument serializes read-modify-write cycles per DID.
func (m *Manager) mutateDocument(ctx context.Context, id string, fn func(*Document) error) error {
	l := m.docLock(id)
	l.Lock()
	defer l.Unlock()

	doc, err := m.Document(ctx, id)
	if err != nil {
		return err
	}
	if err := fn(&doc); err != nil {
		return err
	}
	return m.storeDocument(ctx, id, doc)
}

func (m *Manager) storeDocument(ctx context.Context, id string, doc Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := m.ledger.StoreDIDDocument(ctx, id, raw); err != nil {
		return fmt.Errorf("%w: store document %s: %v", ErrLedgerWriteFailed, id, err)
	}
	return nil
}

func (m *Manager) docLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.docLocks[id]
	if !ok {
		l = &sync.Mutex{}
		m.docLocks[id] = l
	}
	return l
}

func (m *Manager) releaseQuietly(ctx context.Context, id string) {
	if err := m.pool.Release(ctx, id); err != nil {
		m.log.Warn("identity: release signing account", "identity", id, "err", err)
	}
}

// abandonRegistered handles the gap where the identity is registered but a
// later write failed. The signing account stays bound because the address is
// already on the ledger.
func (m *Manager) abandonRegistered(ctx context.Context, id, stage string) {
	m.log.Error("identity: registered identity left with incomplete state",
		"identity", id, "failed_stage", stage)
	m.releaseQuietly(ctx, id)
}
