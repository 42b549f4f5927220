package identity

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"iovid/pkg/entity"
	"iovid/pkg/keystore"
	"iovid/services/iov/internal/addrpool"
	"iovid/services/iov/internal/ledger"
)

func newTestManager(t *testing.T) (*Manager, *ledger.Memory, *addrpool.Manager) {
	t.Helper()
	lg := ledger.NewMemory()
	cands := make([]addrpool.Account, 0, 6)
	for _, s := range []string{"a", "b", "c", "d", "e", "f"} {
		cands = append(cands, addrpool.Account{Address: "0x" + s, PrivateKey: "k" + s})
	}
	pool, err := addrpool.NewManager(context.Background(), lg,
		&addrpool.FileState{Path: filepath.Join(t.TempDir(), "pool.json")}, cands, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return NewManager(lg, pool, keystore.NewMemStore(), nil), lg, pool
}

func TestCreateIdentity(t *testing.T) {
	ctx := context.Background()
	m, lg, _ := newTestManager(t)

	created, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	if created.EntityDID == "" || created.WalletDID == "" || created.EntityDID == created.WalletDID {
		t.Fatalf("bad DIDs: %+v", created)
	}

	u, err := lg.User(ctx, created.Address)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if u.Name != "alice" || u.Type != entity.Person || u.EntityDID != created.EntityDID {
		t.Fatalf("registered user = %+v", u)
	}

	for _, id := range []string{created.EntityDID, created.WalletDID} {
		doc, err := m.Document(ctx, id)
		if err != nil {
			t.Fatalf("Document %s: %v", id, err)
		}
		if doc.ID != id {
			t.Fatalf("document id = %s want %s", doc.ID, id)
		}
		if len(doc.VerificationMethod) != 1 || doc.VerificationMethod[0].PublicKeyPEM == "" {
			t.Fatalf("document %s missing verification method", id)
		}
	}

	entityDoc, _ := m.Document(ctx, created.EntityDID)
	if entityDoc.Types[0] != entity.Person.DocumentTag() {
		t.Fatalf("entity doc types = %v", entityDoc.Types)
	}
	if len(entityDoc.Service) != 1 || entityDoc.Service[0].ID != created.WalletDID+"#wallet" {
		t.Fatalf("entity doc service = %+v", entityDoc.Service)
	}
}

func TestCreateIdentityReleasesOnRegisterFailure(t *testing.T) {
	ctx := context.Background()
	m, lg, pool := newTestManager(t)
	lg.SetRejectWrites(true)

	_, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if !errors.Is(err, ErrLedgerWriteFailed) {
		t.Fatalf("want ErrLedgerWriteFailed, got %v", err)
	}
	lg.SetRejectWrites(false)

	// All six candidate accounts must be acquirable again.
	for i := 0; i < 6; i++ {
		if _, err := pool.Acquire(ctx, "probe-"+string(rune('0'+i))); err != nil {
			t.Fatalf("account %d not released: %v", i, err)
		}
	}
}

type failingKeyStore struct {
	inner keystore.Store
}

func (s failingKeyStore) Put(string, keystore.KeyPair) error {
	return errors.New("keystore write failed")
}

func (s failingKeyStore) Get(id string) (keystore.KeyPair, error) {
	return s.inner.Get(id)
}

func TestCreateIdentityKeystoreFailureAfterRegistration(t *testing.T) {
	ctx := context.Background()
	lg := ledger.NewMemory()
	cands := []addrpool.Account{
		{Address: "0xa", PrivateKey: "ka"},
		{Address: "0xb", PrivateKey: "kb"},
	}
	pool, err := addrpool.NewManager(ctx, lg,
		&addrpool.FileState{Path: filepath.Join(t.TempDir(), "pool.json")}, cands, nil)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	m := NewManager(lg, pool, failingKeyStore{inner: keystore.NewMemStore()}, nil)

	_, err = m.CreateIdentity(ctx, "alice", entity.Person)
	if !errors.Is(err, ErrLedgerWriteFailed) {
		t.Fatalf("want ErrLedgerWriteFailed, got %v", err)
	}

	// The registration committed, so its address must stay bound: of two
	// candidate accounts only one remains acquirable.
	regs, err := lg.RegisteredAddresses(ctx)
	if err != nil {
		t.Fatalf("RegisteredAddresses: %v", err)
	}
	if len(regs) != 1 {
		t.Fatalf("registered addresses = %v", regs)
	}
	acct, err := pool.Acquire(ctx, "probe-1")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if acct.Address == regs[0] {
		t.Fatalf("registered address %s handed out again", regs[0])
	}
	if _, err := pool.Acquire(ctx, "probe-2"); !errors.Is(err, addrpool.ErrResourceExhausted) {
		t.Fatalf("want ErrResourceExhausted, got %v", err)
	}
}

func TestRegisterVehicle(t *testing.T) {
	ctx := context.Background()
	m, lg, _ := newTestManager(t)

	owner, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	spec := VehicleSpec{VIN: "1HGCM82633A004352", Make: "Honda", Model: "Accord", Year: 2019, Color: "blue"}
	v, err := m.RegisterVehicle(ctx, owner.EntityDID, spec)
	if err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}

	vehicles, err := lg.UserVehicles(ctx, owner.EntityDID)
	if err != nil {
		t.Fatalf("UserVehicles: %v", err)
	}
	if len(vehicles) != 1 || vehicles[0].VIN != spec.VIN || vehicles[0].VehicleDID != v.VehicleDID {
		t.Fatalf("vehicles = %+v", vehicles)
	}

	vehicleDoc, err := m.Document(ctx, v.VehicleDID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if vehicleDoc.Info[0]["owner_did"] != owner.EntityDID {
		t.Fatalf("vehicle info = %+v", vehicleDoc.Info)
	}

	ownerDoc, err := m.Document(ctx, owner.EntityDID)
	if err != nil {
		t.Fatalf("Document owner: %v", err)
	}
	var linked bool
	for _, info := range ownerDoc.Info {
		if info["type"] == "OwnedVehicle" && info["vehicle_did"] == v.VehicleDID {
			linked = true
		}
	}
	if !linked {
		t.Fatalf("owner document not linked to vehicle: %+v", ownerDoc.Info)
	}
}

func TestRegisterVehicleUnknownOwner(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.RegisterVehicle(ctx, "did:ssi:entity:00000000-0000-0000-0000-0000000000ff", VehicleSpec{Make: "x", Model: "y"})
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("want ErrIdentityNotFound, got %v", err)
	}
}

func TestTransferOwnershipChain(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	first, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	second, err := m.CreateIdentity(ctx, "bob", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	v, err := m.RegisterVehicle(ctx, first.EntityDID, VehicleSpec{VIN: "VIN1", Make: "Honda", Model: "Civic"})
	if err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}

	if err := m.TransferOwnership(ctx, v.VehicleDID, second.EntityDID); err != nil {
		t.Fatalf("TransferOwnership: %v", err)
	}
	if err := m.TransferOwnership(ctx, v.VehicleDID, first.EntityDID); err != nil {
		t.Fatalf("TransferOwnership back: %v", err)
	}

	doc, err := m.Document(ctx, v.VehicleDID)
	if err != nil {
		t.Fatalf("Document: %v", err)
	}
	if doc.Info[0]["owner_did"] != first.EntityDID {
		t.Fatalf("owner_did = %v", doc.Info[0]["owner_did"])
	}
	prev, _ := doc.Info[0]["previous_owners"].([]any)
	if len(prev) != 2 || prev[0] != first.EntityDID || prev[1] != second.EntityDID {
		t.Fatalf("previous_owners = %v", prev)
	}
}

func TestTransferOwnershipUnknownNewOwner(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	owner, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	v, err := m.RegisterVehicle(ctx, owner.EntityDID, VehicleSpec{VIN: "VIN1", Make: "Honda", Model: "Civic"})
	if err != nil {
		t.Fatalf("RegisterVehicle: %v", err)
	}
	err = m.TransferOwnership(ctx, v.VehicleDID, "did:ssi:entity:00000000-0000-0000-0000-0000000000ee")
	if !errors.Is(err, ErrIdentityNotFound) {
		t.Fatalf("want ErrIdentityNotFound, got %v", err)
	}
}

func TestIssueAndVerifyCredential(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)

	issuer, err := m.CreateIdentity(ctx, "dmv", entity.Manufacturer)
	if err != nil {
		t.Fatalf("CreateIdentity issuer: %v", err)
	}
	subject, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity subject: %v", err)
	}

	cred, err := m.IssueCredential(ctx, issuer.EntityDID, subject.EntityDID, map[string]any{
		"type":    "DriverLicense",
		"license": "C",
	})
	if err != nil {
		t.Fatalf("IssueCredential: %v", err)
	}
	if cred.Proof == nil || cred.Proof.SignatureValue == "" {
		t.Fatal("credential not signed")
	}
	if cred.Types[1] != "DriverLicense" {
		t.Fatalf("types = %v", cred.Types)
	}
	if cred.CredentialSubject["id"] != subject.EntityDID {
		t.Fatalf("subject = %v", cred.CredentialSubject)
	}

	got, ok, err := m.VerifyCredential(ctx, cred.ID)
	if err != nil {
		t.Fatalf("VerifyCredential: %v", err)
	}
	if !ok {
		t.Fatal("genuine credential rejected")
	}
	if got.Issuer != issuer.EntityDID {
		t.Fatalf("issuer = %s", got.Issuer)
	}

	// Tampering with the subject must break the proof.
	got.CredentialSubject["license"] = "A"
	if got.VerifyProof([]byte(issuer.EntityDocument.VerificationMethod[0].PublicKeyPEM)) {
		t.Fatal("tampered credential verified")
	}
}

func TestIssueCredentialWithoutKey(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.IssueCredential(ctx, "did:ssi:entity:00000000-0000-0000-0000-0000000000aa", "did:ssi:entity:00000000-0000-0000-0000-0000000000bb", nil)
	if !errors.Is(err, ErrSigningUnavailable) {
		t.Fatalf("want ErrSigningUnavailable, got %v", err)
	}
}

func TestSignAndVerifySignature(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	created, err := m.CreateIdentity(ctx, "alice", entity.Person)
	if err != nil {
		t.Fatalf("CreateIdentity: %v", err)
	}
	msg := []byte("prove control of this identity")
	sig, err := m.Sign(created.EntityDID, msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !m.VerifySignature(ctx, created.EntityDID, msg, sig) {
		t.Fatal("genuine signature rejected")
	}
	if m.VerifySignature(ctx, created.EntityDID, []byte("different message"), sig) {
		t.Fatal("signature verified against wrong message")
	}
	if m.VerifySignature(ctx, "did:ssi:entity:00000000-0000-0000-0000-0000000000cc", msg, sig) {
		t.Fatal("signature verified for unknown DID")
	}
}

func TestDocumentNotFound(t *testing.T) {
	ctx := context.Background()
	m, _, _ := newTestManager(t)
	_, err := m.Document(ctx, "did:ssi:entity:00000000-0000-0000-0000-0000000000dd")
	if !errors.Is(err, ErrDocumentNotFound) {
		t.Fatalf("want ErrDocumentNotFound, got %v", err)
	}
}
