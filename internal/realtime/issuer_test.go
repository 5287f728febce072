package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// TestMintEphemeral_Disabled verifies the sentinel is returned without any
// HTTP call when realtime is off or keyless.
func TestMintEphemeral_Disabled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected HTTP call while disabled")
	}))
	defer srv.Close()

	for _, cfg := range []config.RealtimeConfig{
		{Enabled: false, APIKey: "key", BaseURL: srv.URL},
		{Enabled: true, APIKey: "", BaseURL: srv.URL},
	} {
		i := NewIssuer(cfg)
		if _, err := i.MintEphemeral(context.Background(), "s1", "u1", "a@b.c"); !errors.Is(err, ErrDisabled) {
			t.Errorf("cfg %+v: got %v, want ErrDisabled", cfg, err)
		}
	}
}

// TestMintEphemeral_Success verifies the provider exchange, the session
// metadata tagging and the returned secret.
func TestMintEphemeral_Success(t *testing.T) {
	var gotAuth string
	var gotReq struct {
		Model    string            `json:"model"`
		Voice    string            `json:"voice"`
		Metadata map[string]string `json:"metadata"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/realtime/sessions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]any{
			"client_secret": map[string]any{"value": "eph_abc", "expires_at": 1714000000},
			"model":         "gpt-4o-realtime-preview",
			"voice":         "alloy",
		})
	}))
	defer srv.Close()

	i := NewIssuer(config.RealtimeConfig{
		Enabled: true,
		APIKey:  "rt-key",
		BaseURL: srv.URL,
		Model:   "gpt-4o-realtime-preview",
		Voice:   "alloy",
	})

	resp, err := i.MintEphemeral(context.Background(), "sess-1", "user-1", "a@b.c")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if gotAuth != "Bearer rt-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-realtime-preview" || gotReq.Voice != "alloy" {
		t.Errorf("request = %+v", gotReq)
	}
	if gotReq.Metadata["sessionId"] != "sess-1" || gotReq.Metadata["userId"] != "user-1" || gotReq.Metadata["userEmail"] != "a@b.c" {
		t.Errorf("metadata = %v", gotReq.Metadata)
	}
	if resp.ClientSecret.Value != "eph_abc" || resp.ClientSecret.ExpiresAt != 1714000000 {
		t.Errorf("secret = %+v", resp.ClientSecret)
	}
}

// TestMintEphemeral_UpstreamError verifies provider failures surface with
// status.
func TestMintEphemeral_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	i := NewIssuer(config.RealtimeConfig{Enabled: true, APIKey: "bad", BaseURL: srv.URL})
	if _, err := i.MintEphemeral(context.Background(), "s", "u", "e"); err == nil {
		t.Fatal("expected error for 401")
	}
}

// TestMintEphemeral_MissingSecret verifies an empty secret in a 200 body is
// an error rather than a blank credential handed to the client.
func TestMintEphemeral_MissingSecret(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"model": "m"})
	}))
	defer srv.Close()

	i := NewIssuer(config.RealtimeConfig{Enabled: true, APIKey: "k", BaseURL: srv.URL})
	if _, err := i.MintEphemeral(context.Background(), "s", "u", "e"); err == nil {
		t.Fatal("expected error for missing client secret")
	}
}
