package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// GoogleTTS synthesizes speech through the Google Cloud Text-to-Speech REST
// API. The API already returns base64 audio, so the content passes through.
type GoogleTTS struct {
	apiKey       string
	apiBase      string
	voiceName    string
	languageCode string
	speakingRate float64
	client       *http.Client
}

func NewGoogle(cfg config.TtsConfig) *GoogleTTS {
	apiBase := cfg.Google.BaseURL
	if apiBase == "" {
		apiBase = "https://texttospeech.googleapis.com"
	}
	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	voiceName := cfg.Google.VoiceName
	if voiceName == "" {
		voiceName = "en-US-Neural2-F"
	}
	languageCode := cfg.Google.LanguageCode
	if languageCode == "" {
		languageCode = "en-US"
	}
	speakingRate := cfg.Google.SpeakingRate
	if speakingRate <= 0 {
		speakingRate = 1.0
	}

	return &GoogleTTS{
		apiKey:       cfg.Google.APIKey,
		apiBase:      strings.TrimRight(apiBase, "/"),
		voiceName:    voiceName,
		languageCode: languageCode,
		speakingRate: speakingRate,
		client:       &http.Client{Timeout: timeout},
	}
}

func (g *GoogleTTS) Name() string { return "google" }

func (g *GoogleTTS) Synthesize(ctx context.Context, text string) (*Result, error) {
	plain := StripSSML(text)
	if plain == "" {
		return &Result{}, nil
	}

	reqBody, err := json.Marshal(map[string]any{
		"input": map[string]string{"text": plain},
		"voice": map[string]string{
			"languageCode": g.languageCode,
			"name":         g.voiceName,
		},
		"audioConfig": map[string]any{
			"audioEncoding": "MP3",
			"speakingRate":  g.speakingRate,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("tts: google: marshal request: %w", err)
	}

	url := g.apiBase + "/v1/text:synthesize?key=" + g.apiKey
	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("tts: google: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("tts: google: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("tts: google: status %d: %s", resp.StatusCode, body)
	}

	var out struct {
		AudioContent string `json:"audioContent"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("tts: google: decode response: %w", err)
	}

	return &Result{
		Text:     plain,
		Audio:    out.AudioContent,
		Duration: EstimateDuration(plain),
	}, nil
}
