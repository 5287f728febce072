package summary

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

type stubCompleter struct {
	gotSystem string
	gotUser   string
	reply     string
	err       error
	calls     int
}

func (s *stubCompleter) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.calls++
	s.gotSystem = systemPrompt
	s.gotUser = userPrompt
	return s.reply, s.err
}

// TestFlatten verifies turn ordering, blank-turn dropping and the speaker
// default.
func TestFlatten(t *testing.T) {
	got := Flatten([]protocol.SummaryTurn{
		{Speaker: "agent", Text: "Hi, I help you log meals."},
		{Speaker: "user", Text: "I had eggs for breakfast"},
		{Speaker: "agent", Text: "   "},
		{Text: "two of them"},
	})
	want := "agent: Hi, I help you log meals.\n" +
		"user: I had eggs for breakfast\n" +
		"user: two of them"
	if got != want {
		t.Fatalf("Flatten = %q, want %q", got, want)
	}
}

// TestSummarize verifies the transcript reaches the model and the bullet
// block comes back trimmed.
func TestSummarize(t *testing.T) {
	llm := &stubCompleter{reply: "\n- Agent introduced itself\n- User shared breakfast\n"}
	s := New(llm)

	got, err := s.Summarize(context.Background(), []protocol.SummaryTurn{
		{Speaker: "agent", Text: "Hello"},
		{Speaker: "user", Text: "I had eggs"},
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "- Agent introduced itself\n- User shared breakfast" {
		t.Fatalf("summary = %q", got)
	}
	if llm.gotUser != "agent: Hello\nuser: I had eggs" {
		t.Fatalf("transcript = %q", llm.gotUser)
	}
	if !strings.Contains(llm.gotSystem, "bullet") {
		t.Fatalf("system prompt = %q", llm.gotSystem)
	}
}

// TestSummarize_EmptyHistory verifies that nothing is sent to the model when
// there is nothing to digest.
func TestSummarize_EmptyHistory(t *testing.T) {
	llm := &stubCompleter{reply: "should not be used"}
	s := New(llm)

	got, err := s.Summarize(context.Background(), nil)
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if got != "" {
		t.Fatalf("summary = %q, want empty", got)
	}
	if llm.calls != 0 {
		t.Fatalf("expected no model calls, got %d", llm.calls)
	}
}

// TestSummarize_CompleterError verifies that model failures propagate.
func TestSummarize_CompleterError(t *testing.T) {
	boom := errors.New("rate limited")
	s := New(&stubCompleter{err: boom})

	_, err := s.Summarize(context.Background(), []protocol.SummaryTurn{{Speaker: "user", Text: "hi"}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected completer error, got %v", err)
	}
}
