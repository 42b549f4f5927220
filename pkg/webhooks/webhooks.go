// Package webhooks signs and verifies outbound notification deliveries
// with HMAC-SHA256 over the raw request body.
package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

const (
	SignatureHeader = "X-Signature"
	EventIDHeader   = "X-Event-Id"
	EventTypeHeader = "X-Event-Type"
	scheme          = "hmac-sha256/v1"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignRequest stamps req with the signature and event headers for body.
func SignRequest(req *http.Request, secret, eventID, eventType string, body []byte) error {
	if strings.TrimSpace(secret) == "" {
		return fmt.Errorf("webhook secret is empty")
	}
	req.Header.Set(SignatureHeader, Sign(secret, body))
	req.Header.Set(EventIDHeader, eventID)
	req.Header.Set(EventTypeHeader, eventType)
	return nil
}

type VerificationResult struct {
	Valid     bool   `json:"valid"`
	Scheme    string `json:"scheme"`
	EventID   string `json:"event_id,omitempty"`
	EventType string `json:"event_type,omitempty"`
}

// Verify checks the signature header on an inbound delivery against the
// raw body. A missing or malformed header yields Valid=false, not an error.
func Verify(headers http.Header, rawBody []byte, secret string) (VerificationResult, error) {
	if strings.TrimSpace(secret) == "" {
		return VerificationResult{}, fmt.Errorf("webhook secret is empty")
	}

	res := VerificationResult{
		Scheme:    scheme,
		EventID:   strings.TrimSpace(headers.Get(EventIDHeader)),
		EventType: strings.TrimSpace(headers.Get(EventTypeHeader)),
	}
	if res.EventType == "" {
		res.EventType = "unknown"
	}

	sigHex := strings.TrimSpace(headers.Get(SignatureHeader))
	if sigHex == "" {
		return res, nil
	}
	provided, err := hex.DecodeString(sigHex)
	if err != nil {
		return res, nil
	}

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(rawBody)
	res.Valid = hmac.Equal(mac.Sum(nil), provided)
	return res, nil
}
