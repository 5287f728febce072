// Package realtime mints ephemeral client credentials for the speech
// provider's realtime API, so browsers open their own media channel without
// ever seeing the server's key.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// ErrDisabled means realtime sessions are not configured; callers degrade
// to server-side TTS instead of failing the connection.
var ErrDisabled = errors.New("realtime: not configured")

// Issuer requests short-lived client secrets.
type Issuer struct {
	enabled bool
	apiKey  string
	apiBase string
	model   string
	voice   string
	client  *http.Client
}

func NewIssuer(cfg config.RealtimeConfig) *Issuer {
	apiBase := cfg.BaseURL
	if apiBase == "" {
		apiBase = "https://api.openai.com"
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o-realtime-preview"
	}
	voice := cfg.Voice
	if voice == "" {
		voice = "alloy"
	}

	return &Issuer{
		enabled: cfg.Enabled,
		apiKey:  cfg.APIKey,
		apiBase: strings.TrimRight(apiBase, "/"),
		model:   model,
		voice:   voice,
		client:  &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether credentials can be minted at all.
func (i *Issuer) Enabled() bool {
	return i.enabled && i.apiKey != ""
}

// MintEphemeral creates one client secret scoped to the given session and
// user. The secret is returned to the requesting client verbatim and never
// stored.
func (i *Issuer) MintEphemeral(ctx context.Context, sessionID, userID, email string) (*protocol.RealtimeSessionResponse, error) {
	if !i.Enabled() {
		return nil, ErrDisabled
	}

	req := map[string]any{
		"model": i.model,
		"voice": i.voice,
	}
	// Metadata lets the upstream provider attribute usage per session.
	meta := map[string]string{}
	if sessionID != "" {
		meta["sessionId"] = sessionID
	}
	if userID != "" {
		meta["userId"] = userID
	}
	if email != "" {
		meta["userEmail"] = email
	}
	if len(meta) > 0 {
		req["metadata"] = meta
	}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("realtime: marshal request: %w", err)
	}

	url := i.apiBase + "/v1/realtime/sessions"
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("realtime: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+i.apiKey)

	resp, err := i.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("realtime: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("realtime: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		ClientSecret struct {
			Value     string `json:"value"`
			ExpiresAt int64  `json:"expires_at"`
		} `json:"client_secret"`
		Model string `json:"model"`
		Voice string `json:"voice"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("realtime: decode response: %w", err)
	}
	if out.ClientSecret.Value == "" {
		return nil, fmt.Errorf("realtime: response missing client secret")
	}

	model := out.Model
	if model == "" {
		model = i.model
	}
	voice := out.Voice
	if voice == "" {
		voice = i.voice
	}

	return &protocol.RealtimeSessionResponse{
		ClientSecret: protocol.ClientSecret{
			Value:     out.ClientSecret.Value,
			ExpiresAt: out.ClientSecret.ExpiresAt,
		},
		Model: model,
		Voice: voice,
	}, nil
}
