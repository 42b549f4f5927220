// Package authn authenticates HTTP requests with DID key signatures. The
// caller signs "<method>\n<path>\n<timestamp>" with its registered key and
// sends the DID, signature, and timestamp in headers.
package authn

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"

	"iovid/pkg/httpx"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	DIDHeader       = "X-DID"
	SignatureHeader = "X-Signature"
	TimestampHeader = "X-Timestamp"
)

// SignatureVerifier checks a signature against the key registered for a DID.
type SignatureVerifier interface {
	VerifySignature(ctx context.Context, did string, message, signature []byte) bool
}

// SigningMessage is the exact byte string a caller must sign for a request.
func SigningMessage(method, path, timestamp string) []byte {
	return []byte(method + "\n" + path + "\n" + timestamp)
}

// SignRequest stamps req with the auth headers for a caller owning did.
// sign produces the signature over the message bytes.
func SignRequest(req *http.Request, did string, sign func([]byte) ([]byte, error)) error {
	ts := time.Now().UTC().Format(time.RFC3339)
	sig, err := sign(SigningMessage(req.Method, req.URL.Path, ts))
	if err != nil {
		return err
	}
	req.Header.Set(DIDHeader, did)
	req.Header.Set(SignatureHeader, base64.StdEncoding.EncodeToString(sig))
	req.Header.Set(TimestampHeader, ts)
	return nil
}

// Authenticate validates the auth headers on r and returns the caller DID.
func Authenticate(r *http.Request, v SignatureVerifier, maxSkew time.Duration) (string, error) {
	did := strings.TrimSpace(r.Header.Get(DIDHeader))
	sigB64 := strings.TrimSpace(r.Header.Get(SignatureHeader))
	ts := strings.TrimSpace(r.Header.Get(TimestampHeader))
	if did == "" || sigB64 == "" || ts == "" {
		return "", ErrUnauthorized
	}
	at, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return "", ErrUnauthorized
	}
	if skew := time.Since(at); skew > maxSkew || skew < -maxSkew {
		return "", ErrUnauthorized
	}
	sig, err := base64.StdEncoding.DecodeString(sigB64)
	if err != nil {
		return "", ErrUnauthorized
	}
	if !v.VerifySignature(r.Context(), did, SigningMessage(r.Method, r.URL.Path, ts), sig) {
		return "", ErrUnauthorized
	}
	return did, nil
}

// Middleware rejects requests that fail Authenticate with a 401. The
// verified DID is exposed to handlers via FromContext.
func Middleware(v SignatureVerifier, maxSkew time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			did, err := Authenticate(r, v, maxSkew)
			if err != nil {
				httpx.WriteError(w, http.StatusUnauthorized, httpx.CodeUnauthorized, "request signature required", nil)
				return
			}
			next.ServeHTTP(w, r.WithContext(withCaller(r.Context(), did)))
		})
	}
}

type callerKey struct{}

func withCaller(ctx context.Context, did string) context.Context {
	return context.WithValue(ctx, callerKey{}, did)
}

// FromContext returns the authenticated caller DID, if any.
func FromContext(ctx context.Context) (string, bool) {
	did, ok := ctx.Value(callerKey{}).(string)
	return did, ok
}
