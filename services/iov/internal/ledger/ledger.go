// Package ledger defines the function surface of the identity registry
// contract and an in-process implementation of it. Everything above this
// package talks to the chain only through the Ledger interface.
package ledger

import (
	"context"
	"errors"

	"iovid/pkg/entity"
)

var (
	// ErrUnavailable means the ledger could not be reached; callers may retry.
	ErrUnavailable = errors.New("ledger: unavailable")
	// ErrTransactionRejected means the ledger refused the write; terminal.
	ErrTransactionRejected = errors.New("ledger: transaction rejected")
	ErrNotFound            = errors.New("ledger: not found")
)

type InteractionType string

const (
	InteractionRequest          InteractionType = "request"
	InteractionResponse         InteractionType = "response"
	InteractionMechanicRequest  InteractionType = "mechanic_request"
	InteractionMechanicResponse InteractionType = "mechanic_response"
)

// Interaction is one append-only ledger record. A request and its response
// are correlated only through the request_id inside Payload.
type Interaction struct {
	SourceAddress      string          `json:"source_address"`
	DestinationAddress string          `json:"destination_address"`
	SourceDID          string          `json:"source_did"`
	DestinationDID     string          `json:"destination_did"`
	Type               InteractionType `json:"interaction_type"`
	Payload            []byte          `json:"payload"`
	Timestamp          int64           `json:"timestamp"`
	TxHash             string          `json:"tx_hash"`
}

type User struct {
	Name      string      `json:"name"`
	Type      entity.Type `json:"type"`
	EntityDID string      `json:"entity_did"`
	WalletDID string      `json:"wallet_did"`
	Address   string      `json:"address"`
}

type VehicleRecord struct {
	VehicleDID string `json:"vehicle_did"`
	WalletDID  string `json:"wallet_did"`
	OwnerDID   string `json:"owner_did"`
	VIN        string `json:"vin"`
	Make       string `json:"make"`
	Model      string `json:"model"`
	Year       int    `json:"year"`
}

// Ledger mirrors the registry contract's functions.
type Ledger interface {
	// Identity registry.
	RegisterUser(ctx context.Context, address, name string, typ entity.Type, entityDID, walletDID string) (txHash string, err error)
	User(ctx context.Context, address string) (User, error)
	RegisteredAddresses(ctx context.Context) ([]string, error)
	IsAddressRegistered(ctx context.Context, address string) (bool, error)
	IsValidDID(ctx context.Context, did string) (bool, error)
	AddressByDID(ctx context.Context, did string) (string, error)

	// DID documents and credentials.
	StoreDIDDocument(ctx context.Context, did string, doc []byte) error
	Document(ctx context.Context, did string) ([]byte, error)
	StoreCredential(ctx context.Context, id, issuerDID, subjectDID string, data []byte) error
	Credential(ctx context.Context, id string) ([]byte, error)

	// Vehicles.
	RegisterVehicle(ctx context.Context, v VehicleRecord) (txHash string, err error)
	UserVehicles(ctx context.Context, ownerDID string) ([]VehicleRecord, error)

	// Interaction log. Records are returned in ledger order.
	RecordInteraction(ctx context.Context, rec Interaction) (txHash string, err error)
	EntityInteractions(ctx context.Context, id string) ([]Interaction, error)
}
