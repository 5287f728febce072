// Package tts turns reply text into speech audio. Providers receive plain
// text: SSML markup is stripped first, and the playback duration estimate
// is computed from the same stripped text the listener will hear.
package tts

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/telemetry"
)

// Result is one synthesized utterance.
type Result struct {
	Text     string // stripped text actually synthesized
	Audio    string // base64-encoded audio, provider-native encoding
	Duration int    // estimated playback time in milliseconds
}

// Synthesizer converts text to speech.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, text string) (*Result, error)
}

// New builds the synthesizer named by cfg.Provider.
func New(cfg config.TtsConfig) (Synthesizer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "google":
		return traced{NewGoogle(cfg)}, nil
	case "elevenlabs":
		return traced{NewElevenLabs(cfg)}, nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", cfg.Provider)
	}
}

// Hot is a Synthesizer whose backing provider can be swapped while the
// gateway runs, so a config reload can change the TTS provider without a
// restart. In-flight calls finish on the provider they started with.
type Hot struct {
	cur atomic.Pointer[Synthesizer]
}

// NewHot wraps s in a swappable synthesizer.
func NewHot(s Synthesizer) *Hot {
	h := &Hot{}
	h.cur.Store(&s)
	return h
}

// Swap replaces the backing provider.
func (h *Hot) Swap(s Synthesizer) { h.cur.Store(&s) }

func (h *Hot) Name() string { return (*h.cur.Load()).Name() }

func (h *Hot) Synthesize(ctx context.Context, text string) (*Result, error) {
	return (*h.cur.Load()).Synthesize(ctx, text)
}

// traced records a span per synthesis call around any provider.
type traced struct {
	inner Synthesizer
}

func (t traced) Name() string { return t.inner.Name() }

func (t traced) Synthesize(ctx context.Context, text string) (*Result, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "tts.synthesize",
		trace.WithAttributes(attribute.String("tts.provider", t.inner.Name())))
	defer span.End()

	res, err := t.inner.Synthesize(ctx, text)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

// wordsPerMinute matches a comfortable speaking rate; the estimate errs
// long rather than cutting playback short.
const wordsPerMinute = 150

// minDuration keeps very short utterances from racing the client UI.
const minDurationMs = 1000

// EstimateDuration returns the estimated playback time in milliseconds for
// plain text at a natural speaking rate. Non-empty text never estimates
// under one second.
func EstimateDuration(text string) int {
	words := len(strings.Fields(text))
	if words == 0 {
		return 0
	}
	ms := words * 60_000 / wordsPerMinute
	if ms < minDurationMs {
		return minDurationMs
	}
	return ms
}
