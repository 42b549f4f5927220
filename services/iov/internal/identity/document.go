// Package identity manages the lifecycle of self-sovereign identities: DID
// documents, signing keys, verifiable credentials, and vehicle registration.
package identity

import (
	"encoding/json"
	"time"
)

var documentContext = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://www.w3.org/ns/did/v1",
	"https://w3id.org/security/v1",
}

type VerificationMethod struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Controller   string `json:"controller"`
	PublicKeyPEM string `json:"publicKeyPem"`
}

type ServiceEndpoint struct {
	ID         string   `json:"id"`
	Type       []string `json:"type,omitempty"`
	Controller string   `json:"controller,omitempty"`
	Endpoint   string   `json:"serviceEndpoint,omitempty"`
}

// Document is a DID document. Info carries free-form records: vehicle
// descriptors on vehicle documents, owned-vehicle links on owner documents.
type Document struct {
	Context            []string             `json:"@context"`
	ID                 string               `json:"id"`
	Types              []string             `json:"type"`
	Info               []map[string]any     `json:"info"`
	Created            time.Time            `json:"created"`
	VerificationMethod []VerificationMethod `json:"verificationMethod"`
	Authentication     []string             `json:"authentication"`
	AssertionMethod    []string             `json:"assertionMethod"`
	Credentials        []json.RawMessage    `json:"credentials"`
	Service            []ServiceEndpoint    `json:"service"`
	Controller         string               `json:"controller,omitempty"`
}

// NewDocument builds the base document for a DID with one RSA verification
// method.
func NewDocument(id string, publicKeyPEM []byte) Document {
	keyID := id + "#keys-1"
	return Document{
		Context: documentContext,
		ID:      id,
		Types:   []string{},
		Info:    []map[string]any{},
		Created: time.Now().UTC(),
		VerificationMethod: []VerificationMethod{{
			ID:           keyID,
			Type:         "RsaVerificationKey2018",
			Controller:   id,
			PublicKeyPEM: string(publicKeyPEM),
		}},
		Authentication:  []string{keyID},
		AssertionMethod: []string{keyID},
		Credentials:     []json.RawMessage{},
		Service:         []ServiceEndpoint{},
	}
}

// PublicKeyPEM returns the document's first verification key, or nil.
func (d Document) PublicKeyPEM() []byte {
	if len(d.VerificationMethod) == 0 {
		return nil
	}
	return []byte(d.VerificationMethod[0].PublicKeyPEM)
}
