// Package llm adapts OpenAI-compatible chat completion APIs to the one call
// the dialogue loop needs: a system prompt and a user prompt in, a parsed
// intent envelope out.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/telemetry"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	apiKey      string
	apiBase     string
	chatPath    string
	model       string
	maxTokens   int
	temperature float64
	timeout     time.Duration
	client      *http.Client
	retry       RetryConfig
}

func New(cfg config.LLMConfig) *Client {
	apiBase := cfg.BaseURL
	if apiBase == "" {
		apiBase = "https://api.openai.com/v1"
	}
	apiBase = strings.TrimRight(apiBase, "/")

	timeout := time.Duration(cfg.TimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 8 * time.Second
	}

	retry := DefaultRetryConfig()
	if cfg.MaxRetries >= 0 {
		retry.MaxRetries = cfg.MaxRetries
	}
	if cfg.BackoffBaseMs > 0 {
		retry.BaseDelay = time.Duration(cfg.BackoffBaseMs) * time.Millisecond
	}
	if cfg.BackoffCapMs > 0 {
		retry.MaxDelay = time.Duration(cfg.BackoffCapMs) * time.Millisecond
	}

	return &Client{
		apiKey:      cfg.APIKey,
		apiBase:     apiBase,
		chatPath:    "/chat/completions",
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		timeout:     timeout,
		client:      &http.Client{},
		retry:       retry,
	}
}

// Complete runs one intent-extraction exchange. Transport failures surface
// as errors after the retry budget; unparsable model output degrades to the
// default envelope instead.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (*protocol.IntentResponse, error) {
	content, err := c.CompleteText(ctx, systemPrompt, userPrompt)
	if err != nil {
		return nil, err
	}
	return ExtractIntentResponse(content), nil
}

// CompleteText runs one exchange and returns the raw assistant text.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, span := telemetry.Tracer().Start(ctx, "llm.complete",
		trace.WithAttributes(attribute.String("llm.model", c.model)))
	defer span.End()

	body := map[string]any{
		"model": c.model,
		"messages": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
	}
	if c.maxTokens > 0 {
		body["max_tokens"] = c.maxTokens
	}
	if c.temperature > 0 {
		body["temperature"] = c.temperature
	}

	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("llm: marshal request: %w", err)
	}

	content, err := RetryDo(ctx, c.retry, func() (string, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		respBody, err := c.doRequest(attemptCtx, data)
		if err != nil {
			return "", err
		}
		defer respBody.Close()

		var cr chatResponse
		if err := json.NewDecoder(respBody).Decode(&cr); err != nil {
			return "", fmt.Errorf("llm: decode response: %w", err)
		}
		if len(cr.Choices) == 0 {
			return "", fmt.Errorf("llm: response has no choices")
		}
		return cr.Choices[0].Message.Content, nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return content, err
}

func (c *Client) doRequest(ctx context.Context, data []byte) (io.ReadCloser, error) {
	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.apiBase+c.chatPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("llm: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &HTTPError{
			Status:     resp.StatusCode,
			Body:       string(respBody),
			RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
	return resp.Body, nil
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}
