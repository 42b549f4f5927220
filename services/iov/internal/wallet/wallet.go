// Package wallet holds per-identity consent state: sharing policies, pending
// consent requests, notifications, the sender block list, and received
// credentials.
package wallet

import (
	"time"
)

// Policy governs one data type. ShareWith lists the requester types allowed
// to ask at all; RequiresConsent forces owner approval; AutoShareEmergency
// lets emergency requesters bypass the approval queue.
type Policy struct {
	ShareWith          []string `json:"share_with"`
	RequiresConsent    bool     `json:"requires_consent"`
	AutoShareEmergency bool     `json:"auto_share_emergency"`
}

// Request is a consent decision awaiting the owner.
type Request struct {
	ID            string    `json:"id"`
	RequesterDID  string    `json:"requester_did"`
	RequesterType string    `json:"requester_type"`
	DataType      string    `json:"data_type"`
	Reason        string    `json:"reason"`
	Justification string    `json:"justification,omitempty"`
	ReplyURL      string    `json:"reply_url,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}

// Notification is a message for the wallet owner.
type Notification struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedUser records a sender the wallet refuses to evaluate.
type BlockedUser struct {
	DID       string    `json:"did"`
	Reason    string    `json:"reason"`
	BlockedAt time.Time `json:"blocked_at"`
}

// SharedRecord remembers data already released to a requester.
type SharedRecord struct {
	RequesterDID string    `json:"requester_did"`
	DataType     string    `json:"data_type"`
	SharedAt     time.Time `json:"shared_at"`
}

// Credential is a verifiable credential held by the wallet, stored opaque.
type Credential struct {
	ID       string         `json:"id"`
	IssuedBy string         `json:"issued_by"`
	Payload  map[string]any `json:"payload"`
}

// Wallet is the full consent state for one identity.
type Wallet struct {
	DID             string            `json:"did"`
	Policies        map[string]Policy `json:"policies"`
	PendingRequests []Request         `json:"pending_requests"`
	Notifications   []Notification    `json:"notifications"`
	BlockedUsers    []BlockedUser     `json:"blocked_users"`
	SharedData      []SharedRecord    `json:"shared_data"`
	Credentials     []Credential      `json:"credentials"`
}

// DefaultPolicies is the policy matrix a wallet starts with. Emergency
// responders get the widest automatic access; behavior and maintenance
// history never auto-share.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"location": {
			ShareWith:          []string{"emergency"},
			RequiresConsent:    true,
			AutoShareEmergency: true,
		},
		"vehicle_info": {
			ShareWith:          []string{"emergency", "service", "insurance"},
			RequiresConsent:    true,
			AutoShareEmergency: true,
		},
		"sensor_data": {
			ShareWith:          []string{"emergency", "roadside_unit"},
			RequiresConsent:    true,
			AutoShareEmergency: true,
		},
		"driving_behavior": {
			ShareWith:          []string{"emergency", "insurance"},
			RequiresConsent:    true,
			AutoShareEmergency: false,
		},
		"maintenance_history": {
			ShareWith:          []string{"service", "insurance"},
			RequiresConsent:    true,
			AutoShareEmergency: false,
		},
	}
}

// New returns a wallet for did with the default policy matrix.
func New(did string) Wallet {
	return Wallet{
		DID:      did,
		Policies: DefaultPolicies(),
	}
}

// IsBlocked reports whether senderDID is on the wallet's block list.
func (w *Wallet) IsBlocked(senderDID string) bool {
	for _, b := range w.BlockedUsers {
		if b.DID == senderDID {
			return true
		}
	}
	return false
}

// Block adds senderDID to the block list. Re-blocking an already blocked
// sender updates nothing.
func (w *Wallet) Block(senderDID, reason string, at time.Time) {
	if w.IsBlocked(senderDID) {
		return
	}
	w.BlockedUsers = append(w.BlockedUsers, BlockedUser{DID: senderDID, Reason: reason, BlockedAt: at})
}

// Unblock removes senderDID from the block list and reports whether it was
// present.
func (w *Wallet) Unblock(senderDID string) bool {
	for i, b := range w.BlockedUsers {
		if b.DID == senderDID {
			w.BlockedUsers = append(w.BlockedUsers[:i], w.BlockedUsers[i+1:]...)
			return true
		}
	}
	return false
}

// TakeRequest removes and returns the pending request with the given id.
func (w *Wallet) TakeRequest(requestID string) (Request, bool) {
	for i, r := range w.PendingRequests {
		if r.ID == requestID {
			w.PendingRequests = append(w.PendingRequests[:i], w.PendingRequests[i+1:]...)
			return r, true
		}
	}
	return Request{}, false
}
