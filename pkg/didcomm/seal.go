package didcomm

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

var (
	ErrDecryptionFailed = errors.New("didcomm: decryption failed")
	ErrMalformedSealed  = errors.New("didcomm: malformed sealed envelope")
)

const sealAlgorithm = "XC20P"

// SealedEnvelope is the encrypted transport form of an Envelope. Only the
// key identifiers travel in the clear; everything else is ciphertext. The
// header doubles as AAD so swapping sender/recipient ids breaks the tag.
type SealedEnvelope struct {
	Algorithm    string `json:"alg"`
	SenderKID    string `json:"skid"`
	RecipientKID string `json:"kid"`
	Nonce        string `json:"nonce"`
	Ciphertext   string `json:"ciphertext"`
}

// Seal encrypts env with XChaCha20-Poly1305 under a key derived from the
// shared secret the two parties agreed on out of band.
func Seal(env Envelope, sharedSecret []byte, senderKID, recipientKID string) (SealedEnvelope, error) {
	plaintext, err := json.Marshal(env)
	if err != nil {
		return SealedEnvelope{}, fmt.Errorf("didcomm: marshal envelope: %w", err)
	}
	aead, err := newAEAD(sharedSecret)
	if err != nil {
		return SealedEnvelope{}, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return SealedEnvelope{}, fmt.Errorf("didcomm: nonce: %w", err)
	}
	se := SealedEnvelope{
		Algorithm:    sealAlgorithm,
		SenderKID:    senderKID,
		RecipientKID: recipientKID,
		Nonce:        base64.RawURLEncoding.EncodeToString(nonce),
	}
	ct := aead.Seal(nil, nonce, plaintext, se.aad())
	se.Ciphertext = base64.RawURLEncoding.EncodeToString(ct)
	return se, nil
}

// Open decrypts a sealed envelope with the same shared secret used to seal
// it. Any tampering with header or ciphertext yields ErrDecryptionFailed.
func Open(se SealedEnvelope, sharedSecret []byte) (Envelope, error) {
	if se.Algorithm != sealAlgorithm {
		return Envelope{}, ErrMalformedSealed
	}
	nonce, err := base64.RawURLEncoding.DecodeString(se.Nonce)
	if err != nil || len(nonce) != chacha20poly1305.NonceSizeX {
		return Envelope{}, ErrMalformedSealed
	}
	ct, err := base64.RawURLEncoding.DecodeString(se.Ciphertext)
	if err != nil {
		return Envelope{}, ErrMalformedSealed
	}
	aead, err := newAEAD(sharedSecret)
	if err != nil {
		return Envelope{}, err
	}
	plaintext, err := aead.Open(nil, nonce, ct, se.aad())
	if err != nil {
		return Envelope{}, ErrDecryptionFailed
	}
	var env Envelope
	if err := json.Unmarshal(plaintext, &env); err != nil {
		return Envelope{}, ErrMalformedSealed
	}
	return env, nil
}

func (se SealedEnvelope) aad() []byte {
	return []byte(se.Algorithm + "|" + se.SenderKID + "|" + se.RecipientKID)
}

func newAEAD(sharedSecret []byte) (cipher.AEAD, error) {
	if len(sharedSecret) == 0 {
		return nil, errors.New("didcomm: empty shared secret")
	}
	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, sharedSecret, nil, []byte("didcomm-iov-v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("didcomm: derive key: %w", err)
	}
	return chacha20poly1305.NewX(key)
}
