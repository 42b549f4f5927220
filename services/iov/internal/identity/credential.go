package identity

import (
	"encoding/base64"
	"time"

	"iovid/pkg/canonhash"
	"iovid/pkg/keystore"
)

var credentialContext = []string{
	"https://www.w3.org/2018/credentials/v1",
	"https://www.w3.org/2018/credentials/examples/v1",
}

type Proof struct {
	Type               string    `json:"type"`
	Created            time.Time `json:"created"`
	VerificationMethod string    `json:"verificationMethod"`
	SignatureValue     string    `json:"signatureValue"`
}

// Credential is a verifiable credential. The proof signature covers the
// canonical JSON of the credential with the proof field absent.
type Credential struct {
	Context           []string       `json:"@context"`
	ID                string         `json:"id"`
	Types             []string       `json:"type"`
	Issuer            string         `json:"issuer"`
	IssuanceDate      time.Time      `json:"issuanceDate"`
	CredentialSubject map[string]any `json:"credentialSubject"`
	Proof             *Proof         `json:"proof,omitempty"`
}

// signingBytes is the canonical hash of the credential without its proof.
func (c Credential) signingBytes() ([]byte, error) {
	unsigned := c
	unsigned.Proof = nil
	_, sum, err := canonhash.SumObject(unsigned)
	return sum, err
}

func (c *Credential) sign(issuerPrivateKeyPEM []byte) error {
	msg, err := c.signingBytes()
	if err != nil {
		return err
	}
	sig, err := keystore.Sign(issuerPrivateKeyPEM, msg)
	if err != nil {
		return err
	}
	c.Proof = &Proof{
		Type:               "RsaSignature2018",
		Created:            time.Now().UTC(),
		VerificationMethod: c.Issuer + "#keys-1",
		SignatureValue:     base64.StdEncoding.EncodeToString(sig),
	}
	return nil
}

// VerifyProof checks the credential's signature against the issuer's public
// key. It never panics on malformed input.
func (c Credential) VerifyProof(issuerPublicKeyPEM []byte) bool {
	if c.Proof == nil {
		return false
	}
	sig, err := base64.StdEncoding.DecodeString(c.Proof.SignatureValue)
	if err != nil {
		return false
	}
	msg, err := c.signingBytes()
	if err != nil {
		return false
	}
	return keystore.Verify(issuerPublicKeyPEM, msg, sig)
}
