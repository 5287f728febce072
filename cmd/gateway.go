package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/govoice/internal/bus"
	"github.com/nextlevelbuilder/govoice/internal/catalog"
	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/gateway"
	"github.com/nextlevelbuilder/govoice/internal/llm"
	"github.com/nextlevelbuilder/govoice/internal/maintenance"
	"github.com/nextlevelbuilder/govoice/internal/realtime"
	"github.com/nextlevelbuilder/govoice/internal/seed"
	"github.com/nextlevelbuilder/govoice/internal/sessions"
	"github.com/nextlevelbuilder/govoice/internal/store/sqldb"
	"github.com/nextlevelbuilder/govoice/internal/summary"
	"github.com/nextlevelbuilder/govoice/internal/tasks"
	"github.com/nextlevelbuilder/govoice/internal/telemetry"
	"github.com/nextlevelbuilder/govoice/internal/tts"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

// addrOverride holds the serve --addr flag value.
var addrOverride string

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the gateway (same as running govoice with no arguments)",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
	cmd.Flags().StringVar(&addrOverride, "addr", "", "listen address host:port (overrides config)")
	return cmd
}

func runGateway() {
	// Bootstrap logging before config is available; reconfigured below.
	setupLogging("", "")

	cfgPath := resolveConfigPath()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Auto-detect: if no LLM API key is configured, help the user.
	// Also trigger auto-onboard when the config file doesn't exist (first
	// run), even if env vars provide keys, since managed mode needs seeding.
	_, cfgStatErr := os.Stat(cfgPath)
	configMissing := os.IsNotExist(cfgStatErr)
	if cfg.LLM.APIKey == "" || configMissing {
		// Docker / CI: env vars provide API keys → non-interactive auto-onboard.
		if canAutoOnboard() {
			if runAutoOnboard(cfgPath) {
				cfg, _ = config.Load(cfgPath)
			} else {
				os.Exit(1)
			}
		} else if !configMissing {
			// Config file exists but holds no key: user onboarded with env
			// secrets and forgot to export them this time.
			fmt.Println("No LLM API key found. Did you forget to load your secrets?")
			fmt.Println()
			fmt.Println("  export GOVOICE_LLM_API_KEY=sk-... && ./govoice")
			fmt.Println()
			fmt.Println("Or re-run the setup wizard:  ./govoice onboard")
			os.Exit(1)
		} else {
			// No config file at all → first time, redirect to onboard wizard.
			fmt.Println("No configuration found. Starting setup wizard...")
			fmt.Println()
			runOnboard()
			return
		}
	}

	if addrOverride != "" {
		if host, portStr, aerr := net.SplitHostPort(addrOverride); aerr == nil {
			if port, perr := strconv.Atoi(portStr); perr == nil && port > 0 {
				if host != "" {
					cfg.Gateway.Host = host
				}
				cfg.Gateway.Port = port
			}
		} else {
			slog.Warn("ignoring malformed --addr, want host:port", "addr", addrOverride)
		}
	}

	setupLogging(cfg.Log.Format, cfg.LogLevel())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Mode-based storage ---
	// Standalone: sqlite file, migrated in place on every start.
	// Managed: shared Postgres, schema checked before serving.
	var db *sqldb.DB
	if cfg.IsManagedMode() {
		if err := checkSchemaOrAutoUpgrade(ctx, cfg.Database.DSN); err != nil {
			slog.Error("schema compatibility check failed", "error", err)
			os.Exit(1)
		}
		db, err = sqldb.Open(cfg.Database.DSN)
	} else {
		db, err = sqldb.Open(config.ExpandHome(cfg.Database.Path))
		if err == nil {
			err = sqldb.Migrate(db)
		}
	}
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	stores := sqldb.New(db)

	// Standalone gets the demo agent so a fresh gateway can answer
	// client_ready immediately. Managed databases are seeded by onboard.
	if !cfg.IsManagedMode() {
		if created, seedErr := seed.Apply(ctx, stores.Agents, slog.Default()); seedErr != nil {
			slog.Warn("agent seeding failed", "error", seedErr)
		} else if len(created) > 0 {
			slog.Info("seeded demo agents", "agents", created)
		}
	}

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry, Version, slog.Default())
	if err != nil {
		slog.Warn("telemetry setup failed, spans disabled", "error", err)
	} else {
		defer func() {
			flushCtx, flushCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer flushCancel()
			if err := shutdownTracing(flushCtx); err != nil {
				slog.Warn("telemetry shutdown failed", "error", err)
			}
		}()
	}

	// --- Core components ---
	msgBus := bus.New()
	runner := tasks.NewRunner(ctx, 0, slog.Default())

	baseSynth, err := tts.New(cfg.Tts)
	if err != nil {
		slog.Error("failed to configure tts", "error", err)
		os.Exit(1)
	}
	// Hot wrapper lets a config reload switch providers without a restart.
	synth := tts.NewHot(baseSynth)

	llmClient := llm.New(cfg.LLM)

	// The summarizer gets its own completion client: low temperature, its
	// own token budget, and a longer timeout than intent turns.
	sumCfg := cfg.LLM
	sumCfg.MaxTokens = cfg.Summary.MaxTokens
	if sumCfg.MaxTokens <= 0 {
		sumCfg.MaxTokens = 512
	}
	sumCfg.Temperature = cfg.Summary.Temperature
	if sumCfg.Temperature <= 0 {
		sumCfg.Temperature = 0.2
	}
	sumCfg.TimeoutMs = cfg.Summary.TimeoutMs
	if sumCfg.TimeoutMs <= 0 {
		sumCfg.TimeoutMs = 15000
	}
	summarizer := summary.New(llm.New(sumCfg))

	issuer := realtime.NewIssuer(cfg.Realtime)

	// The registry evicts idle sessions; eviction finalizes the stored row
	// through the orchestrator, so the callback closes over it.
	var orch *gateway.Orchestrator
	registry := sessions.NewRegistry(sessions.Config{
		IdleAfter:  cfg.Sessions.IdleTimeoutDur(),
		SweepEvery: cfg.Sessions.SweepIntervalDur(),
		GreetEvery: cfg.Sessions.GreetingIntervalDur(),
		OnEvict: func(st *sessions.State) {
			orch.OnEvict(st)
		},
	})

	orch = gateway.NewOrchestrator(cfg, gateway.Deps{
		Stores:     stores,
		Catalog:    catalog.New(stores.Agents),
		LLM:        llmClient,
		TTS:        synth,
		Realtime:   issuer,
		Summarizer: summarizer,
		Registry:   registry,
		Bus:        msgBus,
		Tasks:      runner,
	})

	server := gateway.NewServer(cfg, orch, Version)

	go registry.Run(ctx)

	janitor := maintenance.New(stores.Sessions, cfg.Maintenance, slog.Default())
	janitor.Prune = func() int { return registry.PruneGreeting(time.Hour) }
	go janitor.Run(ctx)

	// Hot reload: config.json edits update tunables in place and may change
	// the log level or TTS provider without a restart.
	if err := config.Watch(ctx, cfgPath, cfg, func(c *config.Config) {
		applyLogLevel(c.LogLevel())
		if next, terr := tts.New(c.Tts); terr != nil {
			slog.Warn("tts.reload.failed", "provider", c.Tts.Provider, "error", terr)
		} else {
			synth.Swap(next)
		}
	}); err != nil {
		slog.Warn("config watch unavailable, edits need a restart", "path", cfgPath, "error", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("graceful shutdown initiated", "signal", sig)

		// Tell connected clients before the listener goes away.
		if f, ferr := protocol.NewFrame(protocol.TypeStatus, "", protocol.StatusPayload{Message: "server shutting down"}, time.Now()); ferr == nil {
			server.Broadcast(f)
		}

		cancel()
	}()

	gatewayMode := "standalone"
	if cfg.IsManagedMode() {
		gatewayMode = "managed"
	}
	slog.Info("govoice gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"mode", gatewayMode,
		"tts", synth.Name(),
		"model", cfg.LLM.Model,
		"realtime", issuer.Enabled(),
	)

	// Tailscale listener: build the mux first, then pass it to initTailscale
	// so the same routes are served on both the main listener and Tailscale.
	// Compiled via build tags: `go build -tags tsnet` to enable.
	mux := server.BuildMux()
	tsCleanup := initTailscale(ctx, cfg, mux)
	if tsCleanup != nil {
		defer tsCleanup()
	}

	if cfg.Tailscale.Hostname != "" && cfg.Gateway.Host == "0.0.0.0" {
		slog.Info("Tailscale enabled. Consider setting GOVOICE_HOST=127.0.0.1 for localhost-only + Tailscale access")
	}

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}

	// Drain queued persistence work before exiting.
	runner.Wait()
}
