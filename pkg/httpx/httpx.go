// Package httpx carries the JSON plumbing shared by the iov HTTP surface:
// request ids, response encoding, and the error envelope the handlers and
// the SDK agree on.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
)

// Error codes shared between the service handlers and the SDK.
const (
	CodeBadJSON           = "BAD_JSON"
	CodeBadType           = "BAD_TYPE"
	CodeNotFound          = "NOT_FOUND"
	CodeNotBlocked        = "NOT_BLOCKED"
	CodePoolExhausted     = "POOL_EXHAUSTED"
	CodeLedgerUnavailable = "LEDGER_UNAVAILABLE"
	CodeLedgerWriteFailed = "LEDGER_WRITE_FAILED"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeInternal          = "INTERNAL"
)

// ErrorBody is the error payload inside an error envelope.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ErrorEnvelope is the JSON shape of every non-2xx response.
type ErrorEnvelope struct {
	RequestID string    `json:"request_id"`
	Error     ErrorBody `json:"error"`
}

func NewRequestID() string { return "req_" + uuid.NewString() }

func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func ReadJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func WriteError(w http.ResponseWriter, status int, code, message string, details any) {
	WriteJSON(w, status, ErrorEnvelope{
		RequestID: NewRequestID(),
		Error:     ErrorBody{Code: code, Message: message, Details: details},
	})
}
