// Package didcomm wraps request/response bodies in the message shape used
// for ledger payloads and wallet inboxes, and seals envelopes with
// authenticated encryption for transport between wallets.
package didcomm

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const typePrefix = "https://didcomm.org/iov/1.0/"

type Envelope struct {
	Type        string          `json:"type"`
	ID          string          `json:"id"`
	From        string          `json:"from"`
	To          []string        `json:"to"`
	CreatedTime string          `json:"created_time"`
	Body        json.RawMessage `json:"body"`
	ThreadID    string          `json:"thid,omitempty"`
	ReplyURL    string          `json:"reply_url,omitempty"`
}

// Option mutates an envelope under construction.
type Option func(*Envelope)

// ReplyTo threads the envelope onto an earlier message id.
func ReplyTo(messageID string) Option {
	return func(e *Envelope) { e.ThreadID = messageID }
}

// ReplyURL sets the endpoint replies should be delivered to.
func WithReplyURL(url string) Option {
	return func(e *Envelope) { e.ReplyURL = url }
}

// New builds an envelope of the given message type (request, response,
// mechanic_request, mechanic_response) around body.
func New(from, to, messageType string, body any, opts ...Option) (Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return Envelope{}, fmt.Errorf("didcomm: marshal body: %w", err)
	}
	env := Envelope{
		Type:        typePrefix + messageType,
		ID:          uuid.NewString(),
		From:        from,
		To:          []string{to},
		CreatedTime: time.Now().UTC().Format(time.RFC3339),
		Body:        raw,
	}
	for _, opt := range opts {
		opt(&env)
	}
	return env, nil
}
