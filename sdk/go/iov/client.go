// Package iov is a small Go client for the identity service HTTP API.
package iov

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"iovid/pkg/httpx"
)

// Error is a structured API error.
type Error struct {
	StatusCode int
	ErrorCode  string
	Message    string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("iov sdk error: status=%d code=%s message=%s", e.StatusCode, e.ErrorCode, e.Message)
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

type Identity struct {
	EntityDID string `json:"entity_did"`
	WalletDID string `json:"wallet_did"`
	Address   string `json:"address"`
}

type Vehicle struct {
	VehicleDID string `json:"vehicle_did"`
	WalletDID  string `json:"wallet_did"`
}

type Outcome struct {
	Status        string         `json:"status"`
	Justification string         `json:"justification,omitempty"`
	Data          map[string]any `json:"data,omitempty"`
	TxHash        string         `json:"tx_hash,omitempty"`
	SenderBlocked bool           `json:"sender_blocked,omitempty"`
}

type Wallet struct {
	DID             string           `json:"did"`
	Policies        map[string]any   `json:"policies"`
	PendingRequests []map[string]any `json:"pending_requests"`
	Notifications   []map[string]any `json:"notifications"`
	BlockedUsers    []map[string]any `json:"blocked_users"`
}

// CreateIdentity registers a new entity/wallet DID pair.
func (c *Client) CreateIdentity(ctx context.Context, name, entityType string) (*Identity, error) {
	var out struct {
		Identity Identity `json:"identity"`
	}
	err := c.do(ctx, http.MethodPost, "/iov/identities",
		map[string]any{"name": name, "type": entityType}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Identity, nil
}

// VerifyDID reports whether the service knows the DID.
func (c *Client) VerifyDID(ctx context.Context, did string) (bool, error) {
	var out struct {
		Valid bool `json:"valid"`
	}
	if err := c.do(ctx, http.MethodGet, "/iov/identities/"+did+"/verify", nil, &out); err != nil {
		return false, err
	}
	return out.Valid, nil
}

// Document fetches the raw DID document.
func (c *Client) Document(ctx context.Context, did string) (map[string]any, error) {
	var out struct {
		Document map[string]any `json:"document"`
	}
	if err := c.do(ctx, http.MethodGet, "/iov/identities/"+did+"/document", nil, &out); err != nil {
		return nil, err
	}
	return out.Document, nil
}

// RegisterVehicle mints a vehicle identity owned by ownerDID.
func (c *Client) RegisterVehicle(ctx context.Context, ownerDID, vin, make_, model string, year int) (*Vehicle, error) {
	var out struct {
		Vehicle Vehicle `json:"vehicle"`
	}
	err := c.do(ctx, http.MethodPost, "/iov/identities/"+ownerDID+"/vehicles",
		map[string]any{"vin": vin, "make": make_, "model": model, "year": year}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Vehicle, nil
}

// DataRequest submits a data sharing request and returns both the assigned
// request id and the evaluation outcome.
type DataRequest struct {
	RequesterDID  string `json:"requester_did"`
	RequesterType string `json:"requester_type"`
	OwnerDID      string `json:"owner_did"`
	DataType      string `json:"data_type"`
	Reason        string `json:"reason"`
	IsEmergency   bool   `json:"is_emergency"`
}

func (c *Client) RequestData(ctx context.Context, req DataRequest) (string, *Outcome, error) {
	var out struct {
		RequestID string  `json:"request_id"`
		Outcome   Outcome `json:"outcome"`
	}
	if err := c.do(ctx, http.MethodPost, "/iov/requests", req, &out); err != nil {
		return "", nil, err
	}
	return out.RequestID, &out.Outcome, nil
}

// Respond answers a pending request in the owner's wallet.
func (c *Client) Respond(ctx context.Context, ownerDID, requestID string, approve bool) (*Outcome, error) {
	var out struct {
		Outcome Outcome `json:"outcome"`
	}
	err := c.do(ctx, http.MethodPost, "/iov/wallet/"+ownerDID+"/requests/"+requestID+"/respond",
		map[string]any{"approve": approve}, &out)
	if err != nil {
		return nil, err
	}
	return &out.Outcome, nil
}

// Wallet fetches the full consent state for a DID.
func (c *Client) Wallet(ctx context.Context, did string) (*Wallet, error) {
	var out struct {
		Wallet Wallet `json:"wallet"`
	}
	if err := c.do(ctx, http.MethodGet, "/iov/wallet/"+did, nil, &out); err != nil {
		return nil, err
	}
	return &out.Wallet, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, dst any) error {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		var apiErr httpx.ErrorEnvelope
		_ = json.Unmarshal(raw, &apiErr)
		return &Error{StatusCode: resp.StatusCode, ErrorCode: apiErr.Error.Code, Message: apiErr.Error.Message}
	}
	if dst == nil {
		return nil
	}
	return json.Unmarshal(raw, dst)
}
