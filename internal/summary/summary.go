// Package summary produces conversation digests for client-side context
// compaction. Digests are ephemeral: they go back over the wire and are
// never persisted.
package summary

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// Completer is the completion surface the summarizer needs. The serve
// command passes a dedicated low-temperature completion client.
type Completer interface {
	CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

type Summarizer struct {
	llm Completer
}

func New(llm Completer) *Summarizer {
	return &Summarizer{llm: llm}
}

const systemPrompt = `You summarize a voice conversation between an agent and a user.
Write a chronological digest as plain bullet points, one per line, each
starting with "- " and attributing the speaker ("Agent introduced...",
"User shared..."). Keep only facts stated in the conversation. Output the
bullets only, with no preamble and no closing remarks.`

// Summarize flattens the provided turns to "speaker: text" lines and asks
// the model for a bullet digest. An empty history returns an empty summary
// without a model call.
func (s *Summarizer) Summarize(ctx context.Context, history []protocol.SummaryTurn) (string, error) {
	transcript := Flatten(history)
	if transcript == "" {
		return "", nil
	}
	out, err := s.llm.CompleteText(ctx, systemPrompt, transcript)
	if err != nil {
		return "", fmt.Errorf("summary: %w", err)
	}
	return strings.TrimSpace(out), nil
}

// Flatten renders turns as "speaker: text" lines in order. Blank turns are
// dropped; a missing speaker defaults to the user.
func Flatten(history []protocol.SummaryTurn) string {
	var b strings.Builder
	for _, t := range history {
		text := strings.TrimSpace(t.Text)
		if text == "" {
			continue
		}
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = "user"
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(speaker)
		b.WriteString(": ")
		b.WriteString(text)
	}
	return b.String()
}
