package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// TestStripSSML verifies tags are removed, words stay separated and plain
// text passes through untouched apart from whitespace.
func TestStripSSML(t *testing.T) {
	cases := []struct{ in, want string }{
		{"plain words", "plain words"},
		{"<speak>Hello <break time=\"300ms\"/>there</speak>", "Hello there"},
		{"one<break/>two", "one two"},
		{"<speak><p>Log   your\nmeal</p></speak>", "Log your meal"},
		{"", ""},
		{"   spaced   out   ", "spaced out"},
	}
	for _, c := range cases {
		if got := StripSSML(c.in); got != c.want {
			t.Errorf("StripSSML(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

// TestStripSSML_Idempotent verifies stripping twice equals stripping once.
func TestStripSSML_Idempotent(t *testing.T) {
	in := "<speak>Hi <emphasis level=\"strong\">there</emphasis>, friend</speak>"
	once := StripSSML(in)
	if twice := StripSSML(once); twice != once {
		t.Errorf("second strip changed output: %q then %q", once, twice)
	}
}

// TestEstimateDuration verifies the speaking-rate estimate and its floor.
func TestEstimateDuration(t *testing.T) {
	if d := EstimateDuration(""); d != 0 {
		t.Errorf("empty text duration = %d, want 0", d)
	}
	if d := EstimateDuration("hi"); d != 1000 {
		t.Errorf("single word duration = %d, want floor of 1000", d)
	}
	// 300 words at 150 wpm is two minutes.
	long := strings.Repeat("word ", 300)
	if d := EstimateDuration(long); d != 120_000 {
		t.Errorf("300-word duration = %d, want 120000", d)
	}
}

// TestNew_ProviderSelection verifies provider names map to implementations
// and unknown names fail.
func TestNew_ProviderSelection(t *testing.T) {
	if s, err := New(config.TtsConfig{Provider: "google"}); err != nil || s.Name() != "google" {
		t.Errorf("google: %v / %v", s, err)
	}
	if s, err := New(config.TtsConfig{Provider: "ElevenLabs"}); err != nil || s.Name() != "elevenlabs" {
		t.Errorf("elevenlabs: %v / %v", s, err)
	}
	if s, err := New(config.TtsConfig{}); err != nil || s.Name() != "google" {
		t.Errorf("default: %v / %v", s, err)
	}
	if _, err := New(config.TtsConfig{Provider: "polly"}); err == nil {
		t.Error("expected error for unknown provider")
	}
}

// TestGoogleSynthesize verifies the request shape, the stripped text, and
// the passthrough of Google's base64 audio.
func TestGoogleSynthesize(t *testing.T) {
	var gotReq map[string]any
	var gotKey string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text:synthesize" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotKey = r.URL.Query().Get("key")
		json.NewDecoder(r.Body).Decode(&gotReq)
		json.NewEncoder(w).Encode(map[string]string{"audioContent": "YXVkaW8="})
	}))
	defer srv.Close()

	g := NewGoogle(config.TtsConfig{
		TimeoutMs: 2000,
		Google: config.TtsGoogleConfig{
			APIKey:  "g-key",
			BaseURL: srv.URL,
		},
	})

	res, err := g.Synthesize(context.Background(), "<speak>Hello there</speak>")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if gotKey != "g-key" {
		t.Errorf("key = %q", gotKey)
	}
	input, _ := gotReq["input"].(map[string]any)
	if input["text"] != "Hello there" {
		t.Errorf("provider received %q, want stripped text", input["text"])
	}
	if res.Audio != "YXVkaW8=" {
		t.Errorf("audio = %q", res.Audio)
	}
	if res.Text != "Hello there" {
		t.Errorf("text = %q", res.Text)
	}
	if res.Duration != 1000 {
		t.Errorf("duration = %d, want floor of 1000", res.Duration)
	}
}

// TestGoogleSynthesize_EmptyText verifies whitespace-only input skips the
// provider entirely.
func TestGoogleSynthesize_EmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("unexpected provider call for empty text")
	}))
	defer srv.Close()

	g := NewGoogle(config.TtsConfig{Google: config.TtsGoogleConfig{BaseURL: srv.URL}})
	res, err := g.Synthesize(context.Background(), "  <speak> </speak> ")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if res.Audio != "" || res.Duration != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

// TestGoogleSynthesize_UpstreamError verifies non-200 responses surface as
// errors mentioning the status.
func TestGoogleSynthesize_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	g := NewGoogle(config.TtsConfig{Google: config.TtsGoogleConfig{BaseURL: srv.URL}})
	_, err := g.Synthesize(context.Background(), "hello")
	if err == nil {
		t.Fatal("expected error for 403")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("error should mention status: %v", err)
	}
}

// TestElevenLabsSynthesize verifies the auth header, the voice path and
// that raw audio bytes come back base64-encoded.
func TestElevenLabsSynthesize(t *testing.T) {
	rawAudio := []byte{0xff, 0xf3, 0x01, 0x02}
	var gotPath, gotKey string
	var gotReq map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		json.NewDecoder(r.Body).Decode(&gotReq)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(rawAudio)
	}))
	defer srv.Close()

	e := NewElevenLabs(config.TtsConfig{
		TimeoutMs: 2000,
		ElevenLabs: config.TtsElevenLabsConfig{
			APIKey:  "el-key",
			BaseURL: srv.URL,
			VoiceID: "voice-123",
			ModelID: "model-x",
		},
	})

	res, err := e.Synthesize(context.Background(), "Good morning, what did you eat?")
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if gotPath != "/v1/text-to-speech/voice-123" {
		t.Errorf("path = %q", gotPath)
	}
	if gotKey != "el-key" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if gotReq["model_id"] != "model-x" {
		t.Errorf("model_id = %v", gotReq["model_id"])
	}
	if want := base64.StdEncoding.EncodeToString(rawAudio); res.Audio != want {
		t.Errorf("audio = %q, want %q", res.Audio, want)
	}
	if res.Duration < 1000 {
		t.Errorf("duration = %d, want at least the floor", res.Duration)
	}
}
