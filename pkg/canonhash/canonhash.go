package canonhash

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// SumObject hashes the canonical JSON form of v. Credential issuance and
// verification must both go through this function so the digest is computed
// over identical bytes on both sides.
func SumObject(v any) (string, []byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(b)
	return "sha256:" + hex.EncodeToString(sum[:]), b, nil
}

// SumBytes hashes raw payload bytes; used for ledger transaction hashes.
func SumBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
