package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/llm"
)

// verifyError holds the result of the LLM key probe.
type verifyError struct {
	fatal   bool   // true = bad credentials, block startup
	message string // human-readable description
}

func (e *verifyError) Error() string { return e.message }

// verifyLLMKey checks whether the configured LLM key is valid by sending a
// minimal one-token completion through the real client, so auth headers,
// base URL and timeouts match production calls.
//
//   - 401/403 HTTPError -> invalid API key (fatal)
//   - any other error   -> non-fatal warning (transient or config issue)
//   - success           -> key is valid
func verifyLLMKey(cfg *config.Config) *verifyError {
	if cfg.LLM.APIKey == "" {
		return &verifyError{fatal: true, message: "no API key configured"}
	}

	probeCfg := cfg.LLM
	probeCfg.MaxTokens = 1
	probeCfg.MaxRetries = 0
	probeCfg.TimeoutMs = 15000
	client := llm.New(probeCfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	_, err := client.CompleteText(ctx, "You are a connectivity probe.", "hi")
	if err != nil {
		var httpErr *llm.HTTPError
		if errors.As(err, &httpErr) && (httpErr.Status == 401 || httpErr.Status == 403) {
			return &verifyError{
				fatal:   true,
				message: fmt.Sprintf("endpoint returned %d, invalid API key", httpErr.Status),
			}
		}
		// Non-auth errors: transient network issue, bad model, rate limit.
		return &verifyError{fatal: false, message: friendlyLLMError(err)}
	}

	return nil
}

// friendlyLLMError extracts a human-readable message from upstream errors.
func friendlyLLMError(err error) string {
	msg := err.Error()

	// Try to extract the "message" field from embedded JSON error blobs.
	if idx := strings.Index(msg, `"message"`); idx >= 0 {
		rest := msg[idx:]
		if start := strings.Index(rest, `:`); start >= 0 {
			rest = strings.TrimLeft(rest[start+1:], " ")
			if len(rest) > 0 && rest[0] == '"' {
				rest = rest[1:]
				if end := strings.Index(rest, `"`); end >= 0 && rest[:end] != "" {
					return rest[:end]
				}
			}
		}
	}

	// Strip "llm: ..." wrapping down to the last cause.
	if idx := strings.LastIndex(msg, ": "); idx >= 0 && idx < len(msg)-2 {
		suffix := msg[idx+2:]
		if strings.HasPrefix(suffix, "{") {
			return "request rejected by endpoint"
		}
		return suffix
	}

	return msg
}
