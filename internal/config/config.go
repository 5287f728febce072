package config

import (
	"sync"
	"time"
)

// Config is the root configuration for the govoice gateway.
type Config struct {
	Gateway     GatewayConfig     `json:"gateway"`
	Database    DatabaseConfig    `json:"database,omitempty"`
	LLM         LLMConfig         `json:"llm"`
	Tts         TtsConfig         `json:"tts,omitempty"`
	Realtime    RealtimeConfig    `json:"realtime,omitempty"`
	Sessions    SessionsConfig    `json:"sessions,omitempty"`
	Summary     SummaryConfig     `json:"summary,omitempty"`
	Maintenance MaintenanceConfig `json:"maintenance,omitempty"`
	Telemetry   TelemetryConfig   `json:"telemetry,omitempty"`
	Tailscale   TailscaleConfig   `json:"tailscale,omitempty"`
	Log         LogConfig         `json:"log,omitempty"`
	mu          sync.RWMutex
}

// GatewayConfig configures the HTTP/WebSocket listener.
type GatewayConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	AllowedOrigins  []string `json:"allowed_origins,omitempty"`  // empty = same-host only
	MaxMessageChars int      `json:"max_message_chars,omitempty"` // inbound frame size cap
	PerformanceMode bool     `json:"performance_mode,omitempty"`  // skip automatic per-turn TTS
}

// DatabaseConfig selects the storage backend.
// DSN is NEVER read from config.json, only from env GOVOICE_DB_DSN.
type DatabaseConfig struct {
	DSN  string `json:"-"`              // postgres DSN, from env GOVOICE_DB_DSN only
	Mode string `json:"mode,omitempty"` // "standalone" (default, sqlite) or "managed" (postgres)
	Path string `json:"path,omitempty"` // sqlite file for standalone mode
}

// IsManagedMode reports whether the gateway runs against managed Postgres.
func (c *Config) IsManagedMode() bool {
	return c.Database.Mode == "managed" && c.Database.DSN != ""
}

// LLMConfig configures the chat-completions upstream used for intent turns
// and conversation summaries.
type LLMConfig struct {
	APIKey        string  `json:"api_key,omitempty"`
	BaseURL       string  `json:"base_url,omitempty"` // OpenAI-compatible endpoint
	Model         string  `json:"model,omitempty"`
	MaxTokens     int     `json:"max_tokens,omitempty"`
	Temperature   float64 `json:"temperature,omitempty"`
	TimeoutMs     int     `json:"timeout_ms,omitempty"`      // per-attempt (default 8000)
	MaxRetries    int     `json:"max_retries,omitempty"`     // default 3
	BackoffBaseMs int     `json:"backoff_base_ms,omitempty"` // default 1000
	BackoffCapMs  int     `json:"backoff_cap_ms,omitempty"`  // default 3000
	SystemPrompt  string  `json:"system_prompt,omitempty"`   // intent style guide override
}

// TtsConfig configures speech synthesis.
type TtsConfig struct {
	Provider   string              `json:"provider,omitempty"` // "google" (default) or "elevenlabs"
	TimeoutMs  int                 `json:"timeout_ms,omitempty"`
	Google     TtsGoogleConfig     `json:"google,omitempty"`
	ElevenLabs TtsElevenLabsConfig `json:"elevenlabs,omitempty"`
}

// TtsGoogleConfig configures Google Cloud Text-to-Speech.
type TtsGoogleConfig struct {
	APIKey       string  `json:"api_key,omitempty"`
	BaseURL      string  `json:"base_url,omitempty"`
	VoiceName    string  `json:"voice_name,omitempty"`    // e.g. "en-US-Neural2-F"
	LanguageCode string  `json:"language_code,omitempty"` // e.g. "en-US"
	SpeakingRate float64 `json:"speaking_rate,omitempty"`
}

// TtsElevenLabsConfig configures ElevenLabs TTS.
type TtsElevenLabsConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	VoiceID string `json:"voice_id,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

// RealtimeConfig configures ephemeral credential minting for the upstream
// realtime voice API. The server never proxies realtime audio.
type RealtimeConfig struct {
	Enabled   bool   `json:"enabled,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	BaseURL   string `json:"base_url,omitempty"`
	Model     string `json:"model,omitempty"`
	Voice     string `json:"voice,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// SessionsConfig tunes the live session registry. Durations are Go duration
// strings ("5m", "60s").
type SessionsConfig struct {
	IdleTimeout      string `json:"idle_timeout,omitempty"`      // default "5m"
	SweepInterval    string `json:"sweep_interval,omitempty"`    // default "60s"
	GreetingInterval string `json:"greeting_interval,omitempty"` // default "5s"
}

// IdleTimeoutDur returns the parsed idle timeout with its default.
func (sc SessionsConfig) IdleTimeoutDur() time.Duration {
	return parseDuration(sc.IdleTimeout, 5*time.Minute)
}

// SweepIntervalDur returns the parsed sweep interval with its default.
func (sc SessionsConfig) SweepIntervalDur() time.Duration {
	return parseDuration(sc.SweepInterval, 60*time.Second)
}

// GreetingIntervalDur returns the parsed greeting rate-limit interval.
func (sc SessionsConfig) GreetingIntervalDur() time.Duration {
	return parseDuration(sc.GreetingInterval, 5*time.Second)
}

// SummaryConfig tunes conversation summarization.
type SummaryConfig struct {
	MaxTokens   int     `json:"max_tokens,omitempty"`  // default 512
	Temperature float64 `json:"temperature,omitempty"` // default 0.2
	TimeoutMs   int     `json:"timeout_ms,omitempty"`  // default 15000
}

// MaintenanceConfig schedules the storage janitor: sessions left "active" by
// a crashed process get abandoned after StaleAfter.
type MaintenanceConfig struct {
	Schedule  string `json:"schedule,omitempty"`   // cron expression, default "*/5 * * * *"
	StaleAfter string `json:"stale_after,omitempty"` // default "30m"
}

// StaleAfterDur returns the parsed stale threshold with its default.
func (mc MaintenanceConfig) StaleAfterDur() time.Duration {
	return parseDuration(mc.StaleAfter, 30*time.Minute)
}

// TelemetryConfig configures OpenTelemetry export for traces and spans.
// When enabled, spans are exported to an OTLP-compatible backend
// (Jaeger, Tempo, Datadog, etc.).
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string            `json:"service_name,omitempty"` // default "govoice-gateway"
	Headers     map[string]string `json:"headers,omitempty"`      // auth tokens for cloud backends
}

// TailscaleConfig configures the optional Tailscale tsnet listener.
// Requires building with -tags tsnet. Auth key from env only (never persisted).
type TailscaleConfig struct {
	Hostname  string `json:"hostname"`
	StateDir  string `json:"state_dir,omitempty"`
	AuthKey   string `json:"-"` // from env GOVOICE_TSNET_AUTH_KEY only
	Ephemeral bool   `json:"ephemeral,omitempty"`
	EnableTLS bool   `json:"enable_tls,omitempty"`
}

// LogConfig tunes logging output.
type LogConfig struct {
	Level  string `json:"level,omitempty"`  // "debug", "info" (default), "warn", "error"
	Format string `json:"format,omitempty"` // "text" (default), "json", "pretty"
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the config watcher on hot reload.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gateway = src.Gateway
	c.Database = src.Database
	c.LLM = src.LLM
	c.Tts = src.Tts
	c.Realtime = src.Realtime
	c.Sessions = src.Sessions
	c.Summary = src.Summary
	c.Maintenance = src.Maintenance
	c.Telemetry = src.Telemetry
	c.Tailscale = src.Tailscale
	c.Log = src.Log
}

// PerformanceModeEnabled reads the hot-reloadable performance toggle.
func (c *Config) PerformanceModeEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Gateway.PerformanceMode
}

// LogLevel reads the hot-reloadable log level.
func (c *Config) LogLevel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Log.Level
}

// LLMSystemPrompt reads the hot-reloadable system prompt override. Empty
// means the built-in prompt applies.
func (c *Config) LLMSystemPrompt() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.LLM.SystemPrompt
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
