package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.Gateway.Port != 18890 {
		t.Errorf("port = %d, want default 18890", cfg.Gateway.Port)
	}
	if cfg.Database.Mode != "standalone" {
		t.Errorf("mode = %q, want standalone", cfg.Database.Mode)
	}
	if cfg.Tts.Provider != "google" {
		t.Errorf("tts provider = %q, want google", cfg.Tts.Provider)
	}
}

// TestLoad_JSON5Tolerant verifies hand-edited configs with comments and
// trailing commas parse, and that untouched sections keep their defaults.
func TestLoad_JSON5Tolerant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
	// local development overrides
	"gateway": {
		"host": "127.0.0.1",
		"port": 19001,
	},
	"llm": {"model": "local-test",},
}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 19001 {
		t.Errorf("gateway = %s:%d, want 127.0.0.1:19001", cfg.Gateway.Host, cfg.Gateway.Port)
	}
	if cfg.LLM.Model != "local-test" {
		t.Errorf("model = %q, want local-test", cfg.LLM.Model)
	}
	if cfg.LLM.BaseURL == "" || cfg.Tts.Provider != "google" {
		t.Errorf("defaults lost: base url %q, provider %q", cfg.LLM.BaseURL, cfg.Tts.Provider)
	}
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"gateway": `), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected parse error for truncated config")
	}
}

// TestLoad_EnvOverrides verifies env vars beat file values and that
// GOVOICE_PORT refines a GOVOICE_ADDR host:port pair.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GOVOICE_ADDR", "10.1.2.3:9999")
	t.Setenv("GOVOICE_PORT", "7777")
	t.Setenv("GOVOICE_LLM_API_KEY", "sk-from-env")
	t.Setenv("GOVOICE_DB_DSN", "postgres://env/db")
	t.Setenv("GOVOICE_DB_MODE", "managed")

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"gateway": {"host": "0.0.0.0", "port": 18890}}`), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Gateway.Host != "10.1.2.3" {
		t.Errorf("host = %q, want 10.1.2.3 from GOVOICE_ADDR", cfg.Gateway.Host)
	}
	if cfg.Gateway.Port != 7777 {
		t.Errorf("port = %d, want 7777 (GOVOICE_PORT beats GOVOICE_ADDR)", cfg.Gateway.Port)
	}
	if cfg.LLM.APIKey != "sk-from-env" {
		t.Errorf("llm key = %q, want env value", cfg.LLM.APIKey)
	}
	if !cfg.IsManagedMode() {
		t.Error("DSN plus managed mode from env should enable managed mode")
	}
}

// TestLoad_RealtimeAutoEnable verifies a realtime key in the environment
// turns minting on unless it is explicitly disabled.
func TestLoad_RealtimeAutoEnable(t *testing.T) {
	t.Setenv("GOVOICE_REALTIME_API_KEY", "rt-key")
	t.Setenv("GOVOICE_REALTIME_ENABLED", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !cfg.Realtime.Enabled {
		t.Error("realtime key in env should auto-enable minting")
	}

	t.Setenv("GOVOICE_REALTIME_ENABLED", "false")
	cfg, err = Load(filepath.Join(t.TempDir(), "missing.json"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Realtime.Enabled {
		t.Error("explicit disable must win over the provided key")
	}
}

// TestLoad_DSNNeverFromFile verifies a dsn key in config.json is ignored:
// the connection string is environment-only.
func TestLoad_DSNNeverFromFile(t *testing.T) {
	t.Setenv("GOVOICE_DB_DSN", "")

	path := filepath.Join(t.TempDir(), "config.json")
	content := `{"database": {"mode": "managed", "dsn": "postgres://from-file/db"}}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.DSN != "" {
		t.Errorf("dsn = %q, must never load from the file", cfg.Database.DSN)
	}
	if cfg.IsManagedMode() {
		t.Error("managed mode without an env DSN should not report managed")
	}
}

// TestSave_PrivateAndReloadable verifies the saved file is owner-only, never
// contains env-only secrets, and loads back intact.
func TestSave_PrivateAndReloadable(t *testing.T) {
	t.Setenv("GOVOICE_DB_DSN", "")
	t.Setenv("GOVOICE_TSNET_AUTH_KEY", "")
	t.Setenv("GOVOICE_LLM_API_KEY", "")

	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := Default()
	cfg.LLM.APIKey = "sk-typed-in-wizard"
	cfg.Database.DSN = "postgres://runtime-secret/db"
	cfg.Tailscale.AuthKey = "tskey-runtime-secret"

	if err := Save(path, cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 0600", perm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if strings.Contains(string(raw), "runtime-secret") {
		t.Error("env-only secrets leaked into the saved file")
	}
	if !strings.Contains(string(raw), "sk-typed-in-wizard") {
		t.Error("wizard-entered key should persist to the 0600 file")
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.LLM.APIKey != "sk-typed-in-wizard" {
		t.Errorf("reloaded key = %q", got.LLM.APIKey)
	}
	if got.Gateway.Port != cfg.Gateway.Port {
		t.Errorf("reloaded port = %d, want %d", got.Gateway.Port, cfg.Gateway.Port)
	}
}

// TestMaskedCopy verifies every secret is masked or dropped and the original
// is left untouched.
func TestMaskedCopy(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-real"
	cfg.Tts.Google.APIKey = "g-real"
	cfg.Tts.ElevenLabs.APIKey = "el-real"
	cfg.Realtime.APIKey = "rt-real"
	cfg.Database.DSN = "postgres://real/db"
	cfg.Tailscale.AuthKey = "tskey-real"

	mc := cfg.MaskedCopy()

	for name, got := range map[string]string{
		"llm":        mc.LLM.APIKey,
		"google":     mc.Tts.Google.APIKey,
		"elevenlabs": mc.Tts.ElevenLabs.APIKey,
		"realtime":   mc.Realtime.APIKey,
	} {
		if got != secretMask {
			t.Errorf("%s key = %q, want masked", name, got)
		}
	}
	// Env-only fields are excluded from serialization, so the copy never
	// carries them at all.
	if mc.Database.DSN != "" || mc.Tailscale.AuthKey != "" {
		t.Errorf("env-only secrets present in copy: dsn %q, authkey %q", mc.Database.DSN, mc.Tailscale.AuthKey)
	}
	if mc.Gateway.Port != cfg.Gateway.Port {
		t.Errorf("non-secret field lost: port %d", mc.Gateway.Port)
	}
	if cfg.LLM.APIKey != "sk-real" {
		t.Errorf("original mutated: %q", cfg.LLM.APIKey)
	}
}

func TestStripMaskedSecrets(t *testing.T) {
	cfg := Default()
	cfg.LLM.APIKey = "sk-real"
	cfg.Tts.Google.APIKey = "g-real"

	clean := cfg.MaskedCopy()
	clean.StripMaskedSecrets()
	if clean.LLM.APIKey != "" || clean.Tts.Google.APIKey != "" {
		t.Errorf("masks not cleared: %q / %q", clean.LLM.APIKey, clean.Tts.Google.APIKey)
	}

	// A real value that merely isn't the mask survives.
	direct := Default()
	direct.LLM.APIKey = "sk-typed"
	direct.StripMaskedSecrets()
	if direct.LLM.APIKey != "sk-typed" {
		t.Errorf("user-entered key stripped: %q", direct.LLM.APIKey)
	}
}

func TestDurationAccessors(t *testing.T) {
	tests := []struct {
		name string
		sc   SessionsConfig
		idle time.Duration
	}{
		{"defaults", SessionsConfig{}, 5 * time.Minute},
		{"parsed", SessionsConfig{IdleTimeout: "90s"}, 90 * time.Second},
		{"garbage", SessionsConfig{IdleTimeout: "soon"}, 5 * time.Minute},
		{"negative", SessionsConfig{IdleTimeout: "-5s"}, 5 * time.Minute},
		{"zero", SessionsConfig{IdleTimeout: "0s"}, 5 * time.Minute},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.sc.IdleTimeoutDur(); got != tt.idle {
				t.Errorf("idle = %v, want %v", got, tt.idle)
			}
		})
	}

	if got := (SessionsConfig{}).SweepIntervalDur(); got != 60*time.Second {
		t.Errorf("sweep default = %v, want 60s", got)
	}
	if got := (SessionsConfig{}).GreetingIntervalDur(); got != 5*time.Second {
		t.Errorf("greeting default = %v, want 5s", got)
	}
	if got := (MaintenanceConfig{}).StaleAfterDur(); got != 30*time.Minute {
		t.Errorf("stale default = %v, want 30m", got)
	}
}

func TestExpandHome(t *testing.T) {
	home, _ := os.UserHomeDir()
	tests := []struct{ in, want string }{
		{"", ""},
		{"/var/lib/govoice.db", "/var/lib/govoice.db"},
		{"relative.db", "relative.db"},
		{"~", home},
		{"~/.govoice/govoice.db", home + "/.govoice/govoice.db"},
	}
	for _, tt := range tests {
		if got := ExpandHome(tt.in); got != tt.want {
			t.Errorf("ExpandHome(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIsManagedMode(t *testing.T) {
	cfg := Default()
	if cfg.IsManagedMode() {
		t.Error("default config should be standalone")
	}
	cfg.Database.Mode = "managed"
	if cfg.IsManagedMode() {
		t.Error("managed mode without a DSN should not report managed")
	}
	cfg.Database.DSN = "postgres://x/y"
	if !cfg.IsManagedMode() {
		t.Error("managed mode with a DSN should report managed")
	}
	cfg.Database.Mode = "standalone"
	if cfg.IsManagedMode() {
		t.Error("a DSN alone should not flip standalone to managed")
	}
}

func TestHash(t *testing.T) {
	a, b := Default(), Default()
	if a.Hash() != b.Hash() {
		t.Error("identical configs should hash identically")
	}
	b.Log.Level = "debug"
	if a.Hash() == b.Hash() {
		t.Error("hash should change when a field changes")
	}
}

// TestWatch_ReloadsOnChange verifies a rewrite of the config file reaches
// hot-reload accessors and fires the onReload callback.
func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save initial: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan struct{}, 4)
	err := Watch(ctx, path, cfg, func(*Config) {
		select {
		case reloads <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("watch: %v", err)
	}

	next := Default()
	next.LLM.SystemPrompt = "keep answers short"
	if err := Save(path, next); err != nil {
		t.Fatalf("save update: %v", err)
	}

	select {
	case <-reloads:
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
	if got := cfg.LLMSystemPrompt(); got != "keep answers short" {
		t.Errorf("system prompt after reload = %q, want %q", got, "keep answers short")
	}
}
