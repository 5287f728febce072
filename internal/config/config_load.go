package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			Host:            "0.0.0.0",
			Port:            18890,
			MaxMessageChars: 32000,
		},
		Database: DatabaseConfig{
			Mode: "standalone",
			Path: "~/.govoice/govoice.db",
		},
		LLM: LLMConfig{
			BaseURL:       "https://api.openai.com/v1",
			Model:         "gpt-4o-mini",
			MaxTokens:     1024,
			Temperature:   0.7,
			TimeoutMs:     8000,
			MaxRetries:    3,
			BackoffBaseMs: 1000,
			BackoffCapMs:  3000,
		},
		Tts: TtsConfig{
			Provider:  "google",
			TimeoutMs: 15000,
			Google: TtsGoogleConfig{
				BaseURL:      "https://texttospeech.googleapis.com",
				VoiceName:    "en-US-Neural2-F",
				LanguageCode: "en-US",
				SpeakingRate: 1.0,
			},
			ElevenLabs: TtsElevenLabsConfig{
				BaseURL: "https://api.elevenlabs.io",
				VoiceID: "pMsXgVXv3BLzUgSXRplE",
				ModelID: "eleven_multilingual_v2",
			},
		},
		Realtime: RealtimeConfig{
			BaseURL:   "https://api.openai.com",
			Model:     "gpt-4o-realtime-preview",
			Voice:     "alloy",
			TimeoutMs: 10000,
		},
		Sessions: SessionsConfig{
			IdleTimeout:      "5m",
			SweepInterval:    "60s",
			GreetingInterval: "5s",
		},
		Summary: SummaryConfig{
			MaxTokens:   512,
			Temperature: 0.2,
			TimeoutMs:   15000,
		},
		Maintenance: MaintenanceConfig{
			Schedule:   "*/5 * * * *",
			StaleAfter: "30m",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error: defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Gateway. GOVOICE_ADDR sets both host and port; GOVOICE_HOST/GOVOICE_PORT
	// override individually.
	if v := os.Getenv("GOVOICE_ADDR"); v != "" {
		if host, portStr, err := net.SplitHostPort(v); err == nil {
			if port, perr := strconv.Atoi(portStr); perr == nil && port > 0 {
				if host != "" {
					c.Gateway.Host = host
				}
				c.Gateway.Port = port
			}
		}
	}
	envStr("GOVOICE_HOST", &c.Gateway.Host)
	if v := os.Getenv("GOVOICE_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}
	if v := os.Getenv("GOVOICE_PERFORMANCE_MODE"); v != "" {
		c.Gateway.PerformanceMode = v == "true" || v == "1"
	}

	// Database
	envStr("GOVOICE_DB_DSN", &c.Database.DSN)
	envStr("GOVOICE_DB_MODE", &c.Database.Mode)
	envStr("GOVOICE_DB_PATH", &c.Database.Path)

	// LLM
	envStr("GOVOICE_LLM_API_KEY", &c.LLM.APIKey)
	envStr("GOVOICE_LLM_BASE_URL", &c.LLM.BaseURL)
	envStr("GOVOICE_LLM_MODEL", &c.LLM.Model)

	// TTS
	envStr("GOVOICE_TTS_PROVIDER", &c.Tts.Provider)
	envStr("GOVOICE_TTS_GOOGLE_API_KEY", &c.Tts.Google.APIKey)
	envStr("GOVOICE_TTS_ELEVENLABS_API_KEY", &c.Tts.ElevenLabs.APIKey)

	// Realtime
	envStr("GOVOICE_REALTIME_API_KEY", &c.Realtime.APIKey)
	envStr("GOVOICE_REALTIME_MODEL", &c.Realtime.Model)
	envStr("GOVOICE_REALTIME_VOICE", &c.Realtime.Voice)
	if v := os.Getenv("GOVOICE_REALTIME_ENABLED"); v != "" {
		c.Realtime.Enabled = v == "true" || v == "1"
	}
	// Auto-enable realtime if a key is provided via env
	if c.Realtime.APIKey != "" && os.Getenv("GOVOICE_REALTIME_ENABLED") == "" {
		c.Realtime.Enabled = true
	}

	// Telemetry
	envStr("GOVOICE_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("GOVOICE_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("GOVOICE_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("GOVOICE_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("GOVOICE_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}

	// Tailscale (tsnet)
	envStr("GOVOICE_TSNET_HOSTNAME", &c.Tailscale.Hostname)
	envStr("GOVOICE_TSNET_AUTH_KEY", &c.Tailscale.AuthKey)
	envStr("GOVOICE_TSNET_DIR", &c.Tailscale.StateDir)

	// Logging
	envStr("GOVOICE_LOG_LEVEL", &c.Log.Level)
	envStr("GOVOICE_LOG_FORMAT", &c.Log.Format)
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call after mutating the config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file. Write-then-rename keeps a
// concurrent reader (or the fsnotify watcher) from seeing a torn file;
// CreateTemp gives mode 0600, which the config keeps.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".config-*.json")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}

// Hash returns a short SHA-256 hash of the config for change detection.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Used by doctor output so secrets never reach a terminal or log.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.LLM.APIKey)
	maskNonEmpty(&cp.Tts.Google.APIKey)
	maskNonEmpty(&cp.Tts.ElevenLabs.APIKey)
	maskNonEmpty(&cp.Realtime.APIKey)
	maskNonEmpty(&cp.Database.DSN)
	maskNonEmpty(&cp.Tailscale.AuthKey)

	return cp
}

// StripMaskedSecrets clears fields that still hold the mask value "***" so a
// masked copy can be saved without clobbering real secrets. User-entered
// values are preserved.
func (c *Config) StripMaskedSecrets() {
	stripIfMasked := func(s *string) {
		if *s == secretMask {
			*s = ""
		}
	}
	stripIfMasked(&c.LLM.APIKey)
	stripIfMasked(&c.Tts.Google.APIKey)
	stripIfMasked(&c.Tts.ElevenLabs.APIKey)
	stripIfMasked(&c.Realtime.APIKey)
	stripIfMasked(&c.Database.DSN)
	stripIfMasked(&c.Tailscale.AuthKey)
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
