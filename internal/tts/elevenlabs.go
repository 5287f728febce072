package tts

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// ElevenLabsTTS synthesizes speech through the ElevenLabs API. The API
// returns raw audio bytes, which are base64-encoded for the wire.
type ElevenLabsTTS struct {
	apiKey  string
	apiBase string
	voiceID string
	modelID string
	client  *http.Client
}

func NewElevenLabs(cfg config.TtsConfig) *ElevenLabsTTS {
	apiBase := cfg.ElevenLabs.BaseURL
	if apiBase == "" {
		apiBase = "https://api.elevenlabs.io"
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	voiceID := cfg.ElevenLabs.VoiceID
	if voiceID == "" {
		voiceID = "pMsXgVXv3BLzUgSXRplE"
	}
	modelID := cfg.ElevenLabs.ModelID
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}

	return &ElevenLabsTTS{
		apiKey:  cfg.ElevenLabs.APIKey,
		apiBase: strings.TrimRight(apiBase, "/"),
		voiceID: voiceID,
		modelID: modelID,
		client:  &http.Client{Timeout: timeout},
	}
}

func (e *ElevenLabsTTS) Name() string { return "elevenlabs" }

func (e *ElevenLabsTTS) Synthesize(ctx context.Context, text string) (*Result, error) {
	plain := StripSSML(text)
	if plain == "" {
		return &Result{}, nil
	}

	reqBody, err := json.Marshal(map[string]any{
		"text":     plain,
		"model_id": e.modelID,
	})
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs: marshal request: %w", err)
	}

	url := e.apiBase + "/v1/text-to-speech/" + e.voiceID
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	httpReq.Header.Set("xi-api-key", e.apiKey)

	resp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("tts: elevenlabs: status %d: %s", resp.StatusCode, body)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("tts: elevenlabs: read audio: %w", err)
	}

	return &Result{
		Text:     plain,
		Audio:    base64.StdEncoding.EncodeToString(audio),
		Duration: EstimateDuration(plain),
	}, nil
}
