// Package notify delivers consent outcomes to requester reply endpoints
// as signed didcomm envelopes.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"iovid/pkg/didcomm"
	"iovid/pkg/webhooks"
)

type Notifier struct {
	secret     string
	sealSecret []byte
	http       *http.Client
	log        *slog.Logger
}

// New builds a notifier. secret signs deliveries; sealSecret, when non-empty,
// is the shared transport secret the envelopes are sealed under.
func New(secret string, sealSecret []byte, timeout time.Duration, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{
		secret:     secret,
		sealSecret: sealSecret,
		http:       &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Deliver posts an outcome envelope to replyURL. The envelope threads onto
// requestID so the requester can correlate it with the original message.
// With a seal secret configured the envelope travels encrypted; only the key
// identifiers stay in the clear.
func (n *Notifier) Deliver(ctx context.Context, replyURL, fromDID, toDID, requestID string, outcome any) error {
	env, err := didcomm.New(fromDID, toDID, "response", outcome, didcomm.ReplyTo(requestID))
	if err != nil {
		return err
	}
	var payload any = env
	if len(n.sealSecret) > 0 {
		sealed, err := didcomm.Seal(env, n.sealSecret, fromDID+"#keys-1", toDID+"#keys-1")
		if err != nil {
			return fmt.Errorf("notify: seal envelope: %w", err)
		}
		payload = sealed
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: marshal envelope: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, replyURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.secret != "" {
		if err := webhooks.SignRequest(req, n.secret, env.ID, "consent.outcome", body); err != nil {
			return err
		}
	}

	resp, err := n.http.Do(req)
	if err != nil {
		return fmt.Errorf("notify: deliver to %s: %w", replyURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: endpoint returned %d", resp.StatusCode)
	}
	n.log.Info("delivered outcome", "reply_url", replyURL, "request_id", requestID, "status", resp.StatusCode)
	return nil
}
