package gateway

import (
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/store"
)

// defaultSystemPrompt drives intent turns when config carries no override.
// The JSON contract is load-bearing; the tone instructions are not.
const defaultSystemPrompt = `You are a warm, concise voice assistant guiding a user through a structured conversation one intent at a time.

The user message contains the current intent, its prompt and the fields to extract. Reply with ONLY a JSON object, no markdown fences and no prose around it, shaped exactly like:
{"id": "<the intent id>", "isCompleted": <true when every requested field was extracted>, "fields": {"<name>": "<value>"}, "nextPrompt": "<what to say next>"}

Rules:
- Extract field values only from what the user actually said, never invent them.
- When isCompleted is false, nextPrompt must be one short follow-up question for the missing fields.
- When isCompleted is true, nextPrompt must warmly acknowledge the answer and hand over to the next topic.
- Keep nextPrompt under two sentences; it will be spoken aloud.`

// FallbackPrompt derives the spoken reply when the model returned none: the
// intent's own prompt posed as a question, else a generic clarifier.
func FallbackPrompt(intentPrompt string) string {
	p := strings.TrimSpace(intentPrompt)
	if p == "" {
		return "Could you please clarify or provide more details?"
	}
	if strings.HasSuffix(p, "?") {
		return p
	}
	return p + "?"
}

// greetingText builds the personalized greeting for !request_greeting.
func greetingText(u *store.User, now time.Time) string {
	part := "Hello"
	switch h := now.Hour(); {
	case h < 12:
		part = "Good morning"
	case h < 18:
		part = "Good afternoon"
	default:
		part = "Good evening"
	}

	name := u.FirstName
	if name == "" {
		name = "there"
	}

	if u.Stats.TotalSessions > 1 || u.Stats.TotalMeals > 0 {
		return fmt.Sprintf("%s, %s! Welcome back. What did you eat today?", part, name)
	}
	return fmt.Sprintf("%s, %s! I'm here to help you log your meals. What did you eat today?", part, name)
}
