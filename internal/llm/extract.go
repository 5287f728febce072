package llm

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// intentEnvelope matches the JSON the model is asked to produce. Loose types
// absorb the usual drift: numeric ids, string booleans, non-string fields.
type intentEnvelope struct {
	ID          protocol.FlexString `json:"id"`
	IsCompleted any                 `json:"isCompleted"`
	Fields      map[string]any      `json:"fields"`
	NextPrompt  string              `json:"nextPrompt"`
}

// DefaultIntentResponse is what a turn degrades to when model output cannot
// be parsed at all: incomplete, no fields, no prompt.
func DefaultIntentResponse() *protocol.IntentResponse {
	return &protocol.IntentResponse{Fields: map[string]string{}}
}

// ExtractIntentResponse turns raw model text into an intent envelope. It
// tolerates code fences, prose around the JSON and mild syntax damage;
// anything worse falls back to the default envelope.
func ExtractIntentResponse(raw string) *protocol.IntentResponse {
	headerID, rest := ParseIntentIDHeader(raw)

	for _, candidate := range jsonCandidates(rest) {
		var env intentEnvelope
		if err := json.Unmarshal([]byte(candidate), &env); err != nil {
			continue
		}
		resp := envelopeToResponse(&env)
		if resp.ID == "" {
			resp.ID = headerID
		}
		return resp
	}

	resp := DefaultIntentResponse()
	resp.ID = headerID
	return resp
}

// ParseIntentIDHeader pulls an "Intent ID:" header off the front of model
// output. The id may sit on the same line or on the next one; everything
// after it is returned for JSON extraction.
func ParseIntentIDHeader(s string) (id, rest string) {
	const marker = "Intent ID:"
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, marker) {
		return "", s
	}

	remainder := trimmed[len(marker):]
	line := remainder
	rest = ""
	if i := strings.Index(remainder, "\n"); i >= 0 {
		line = remainder[:i]
		rest = remainder[i+1:]
	}
	line = strings.TrimSpace(line)

	// "Intent ID:" alone on its line: the id is the next line.
	if line == "" && rest != "" {
		if i := strings.Index(rest, "\n"); i >= 0 {
			line = strings.TrimSpace(rest[:i])
			rest = rest[i+1:]
		} else {
			line = strings.TrimSpace(rest)
			rest = ""
		}
	}

	// A brace means we swallowed the payload, not an id.
	if strings.ContainsAny(line, "{}") {
		return "", s
	}
	return line, rest
}

// FindIntentIDHeader extracts an id from an "Intent ID:" header sitting
// anywhere in the text. Client prompts embed the header among other
// instructions; the id follows on the same line or the next non-blank one.
func FindIntentIDHeader(s string) string {
	const marker = "Intent ID:"
	i := strings.Index(s, marker)
	if i < 0 {
		return ""
	}
	for _, line := range strings.Split(s[i+len(marker):], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.ContainsAny(line, "{}") {
			return ""
		}
		token := line
		if j := strings.IndexFunc(token, unicode.IsSpace); j >= 0 {
			token = token[:j]
		}
		return strings.TrimFunc(token, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
	}
	return ""
}

// jsonCandidates yields parse attempts in order of least surgery: fenced
// content as-is, the brace-delimited slice, then repaired variants of both.
func jsonCandidates(s string) []string {
	base := stripFences(s)
	sliced := braceSlice(base)

	out := []string{base}
	if sliced != "" && sliced != base {
		out = append(out, sliced)
	}
	for _, c := range []string{base, sliced} {
		if c == "" {
			continue
		}
		if r := repairJSON(c); r != c {
			out = append(out, r)
		}
	}
	return out
}

// stripFences removes a surrounding markdown code fence, with or without an
// info string.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = s[3:]
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:]
	}
	if i := strings.LastIndex(s, "```"); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

// braceSlice returns the substring from the first '{' to the last '}', or
// "" when there is no such span.
func braceSlice(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

var smartQuotes = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'",
)

// repairJSON applies the two fixes that cover most malformed model output:
// smart quotes and trailing commas.
func repairJSON(s string) string {
	s = smartQuotes.Replace(s)
	return trailingComma.ReplaceAllString(s, "$1")
}

func envelopeToResponse(env *intentEnvelope) *protocol.IntentResponse {
	fields := make(map[string]string, len(env.Fields))
	for k, v := range env.Fields {
		fields[k] = coerceString(v)
	}
	return &protocol.IntentResponse{
		ID:          strings.TrimSpace(string(env.ID)),
		IsCompleted: coerceBool(env.IsCompleted),
		Fields:      fields,
		NextPrompt:  strings.TrimSpace(env.NextPrompt),
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return strings.EqualFold(strings.TrimSpace(t), "true")
	case float64:
		return t != 0
	}
	return false
}
