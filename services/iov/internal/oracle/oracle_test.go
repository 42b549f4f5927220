package oracle

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var in struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if in.Model != "test-model" {
			t.Errorf("model = %q", in.Model)
		}
		json.NewEncoder(w).Encode(map[string]string{"response": "**Decision:** approve"})
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 5*time.Second)
	got, err := c.Generate(context.Background(), "review this request")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if got != "**Decision:** approve" {
		t.Fatalf("response = %q", got)
	}
}

func TestGenerateServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 5*time.Second)
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatal("want error on 503")
	}
}

func TestGenerateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server can detect the client disconnect
		// and cancel the request context; otherwise Close hangs.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := New(srv.URL, "test-model", 50*time.Millisecond)
	if _, err := c.Generate(context.Background(), "x"); err == nil {
		t.Fatal("want timeout error")
	}
}
