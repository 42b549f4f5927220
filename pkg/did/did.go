// Package did generates and validates identifiers of the did:ssi method.
//
// Identifiers carry a kind segment so that a DID alone reveals whether it
// names an entity, a wallet, or a credential:
//
//	did:ssi:entity:<uuid>
//	did:ssi:wallet:<uuid>
//	did:ssi:credential:<uuid>
package did

import (
	"strings"

	"github.com/google/uuid"
)

const Method = "ssi"

type Kind string

const (
	KindEntity     Kind = "entity"
	KindWallet     Kind = "wallet"
	KindCredential Kind = "credential"
)

func NewEntity() string     { return newDID(KindEntity) }
func NewWallet() string     { return newDID(KindWallet) }
func NewCredential() string { return newDID(KindCredential) }

func newDID(kind Kind) string {
	return "did:" + Method + ":" + string(kind) + ":" + uuid.NewString()
}

// IsValid reports whether s is a structurally well-formed did:ssi identifier.
func IsValid(s string) bool {
	_, err := ParseKind(s)
	return err == nil
}

// ParseKind extracts the kind segment of a did:ssi identifier.
func ParseKind(s string) (Kind, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 4 || parts[0] != "did" || parts[1] != Method {
		return "", ErrMalformed
	}
	switch Kind(parts[2]) {
	case KindEntity, KindWallet, KindCredential:
	default:
		return "", ErrMalformed
	}
	if _, err := uuid.Parse(parts[3]); err != nil {
		return "", ErrMalformed
	}
	return Kind(parts[2]), nil
}
