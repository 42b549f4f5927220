// Package keystore holds PEM-encoded RSA key pairs keyed by identity and
// signs/verifies with RSA-PSS over SHA-256.
package keystore

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("keystore: key not found")
	ErrInvalidPEM = errors.New("keystore: invalid pem material")
)

type KeyPair struct {
	PrivateKeyPEM []byte `json:"private_key_pem"`
	PublicKeyPEM  []byte `json:"public_key_pem"`
}

type Store interface {
	Put(id string, kp KeyPair) error
	Get(id string) (KeyPair, error)
}

// Generate produces a fresh 2048-bit RSA pair, PKCS#8 private and PKIX
// public, both PEM-encoded.
func Generate() (KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keystore: generate: %w", err)
	}
	privDER, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keystore: marshal private: %w", err)
	}
	pubDER, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keystore: marshal public: %w", err)
	}
	return KeyPair{
		PrivateKeyPEM: pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}),
		PublicKeyPEM:  pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}),
	}, nil
}

// Sign signs message with RSA-PSS (SHA-256, max salt length).
func Sign(privateKeyPEM, message []byte) ([]byte, error) {
	priv, err := parsePrivate(privateKeyPEM)
	if err != nil {
		return nil, err
	}
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPSS(rand.Reader, priv, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	})
	if err != nil {
		return nil, fmt.Errorf("keystore: sign: %w", err)
	}
	return sig, nil
}

// Verify reports whether sig is a valid RSA-PSS signature of message.
// Malformed key material or signatures count as verification failure.
func Verify(publicKeyPEM, message, sig []byte) bool {
	pub, err := parsePublic(publicKeyPEM)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(message)
	return rsa.VerifyPSS(pub, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthAuto,
	}) == nil
}

func parsePrivate(privateKeyPEM []byte) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode(privateKeyPEM)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidPEM
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrInvalidPEM
	}
	return priv, nil
}

func parsePublic(publicKeyPEM []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(publicKeyPEM)
	if block == nil {
		return nil, ErrInvalidPEM
	}
	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, ErrInvalidPEM
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, ErrInvalidPEM
	}
	return pub, nil
}
