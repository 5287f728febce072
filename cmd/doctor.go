package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/store/sqldb"
	"github.com/nextlevelbuilder/govoice/internal/upgrade"
	"github.com/nextlevelbuilder/govoice/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check system environment and configuration health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("govoice doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	// Config
	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}

	// All key material below comes from the masked copy, so nothing secret
	// can reach the terminal.
	mcfg := cfg.MaskedCopy()

	// Database
	fmt.Println()
	fmt.Println("  Database:")
	if cfg.IsManagedMode() {
		fmt.Printf("    %-12s managed (postgres)\n", "Mode:")
		db, dbErr := sqldb.Open(cfg.Database.DSN)
		if dbErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", dbErr)
		} else if pingErr := db.DB.Ping(); pingErr != nil {
			fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", pingErr)
			db.Close()
		} else {
			checkSchemaLines(db)
			db.Close()
		}
	} else {
		fmt.Printf("    %-12s standalone (sqlite)\n", "Mode:")
		path := config.ExpandHome(cfg.Database.Path)
		fmt.Printf("    %-12s %s", "Path:", path)
		if _, statErr := os.Stat(path); statErr != nil {
			fmt.Println(" (not created yet, first start migrates it)")
		} else {
			fmt.Println(" (OK)")
			db, dbErr := sqldb.Open(path)
			if dbErr != nil {
				fmt.Printf("    %-12s OPEN FAILED (%s)\n", "Status:", dbErr)
			} else {
				checkSchemaLines(db)
				db.Close()
			}
		}
	}

	// Voice stack
	fmt.Println()
	fmt.Println("  Voice stack:")
	checkKey("LLM key", mcfg.LLM.APIKey)
	fmt.Printf("    %-12s %s (%s)\n", "LLM:", cfg.LLM.Model, cfg.LLM.BaseURL)
	switch cfg.Tts.Provider {
	case "elevenlabs":
		checkKey("TTS key", mcfg.Tts.ElevenLabs.APIKey)
		fmt.Printf("    %-12s elevenlabs (voice %s)\n", "TTS:", cfg.Tts.ElevenLabs.VoiceID)
	default:
		checkKey("TTS key", mcfg.Tts.Google.APIKey)
		fmt.Printf("    %-12s google (voice %s)\n", "TTS:", cfg.Tts.Google.VoiceName)
	}
	if cfg.Realtime.Enabled {
		checkKey("Realtime", mcfg.Realtime.APIKey)
		fmt.Printf("    %-12s %s (%s)\n", "Realtime:", cfg.Realtime.Model, cfg.Realtime.Voice)
	} else {
		fmt.Printf("    %-12s disabled\n", "Realtime:")
	}

	// Listener
	fmt.Println()
	fmt.Println("  Listener:")
	fmt.Printf("    %-12s %s:%d\n", "Address:", cfg.Gateway.Host, cfg.Gateway.Port)
	if len(cfg.Gateway.AllowedOrigins) > 0 {
		fmt.Printf("    %-12s %d allowed\n", "Origins:", len(cfg.Gateway.AllowedOrigins))
	} else {
		fmt.Printf("    %-12s same-host only\n", "Origins:")
	}
	if cfg.Tailscale.Hostname != "" {
		fmt.Printf("    %-12s %s (requires a -tags tsnet build)\n", "Tailscale:", cfg.Tailscale.Hostname)
	} else {
		fmt.Printf("    %-12s disabled\n", "Tailscale:")
	}

	// External tools
	fmt.Println()
	fmt.Println("  External Tools:")
	checkBinary("curl")
	checkBinary("sqlite3")

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

// checkSchemaLines prints the schema and data hook status for an open handle.
func checkSchemaLines(db *sqldb.DB) {
	s, schemaErr := upgrade.CheckSchema(context.Background(), db.DB)
	if schemaErr != nil {
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", schemaErr)
		return
	}
	switch {
	case s.Dirty:
		fmt.Printf("    %-12s v%d (DIRTY, run: govoice migrate force %d)\n", "Schema:", s.CurrentVersion, s.CurrentVersion-1)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	case s.CurrentVersion > s.RequiredVersion:
		fmt.Printf("    %-12s v%d (binary too old, requires v%d)\n", "Schema:", s.CurrentVersion, s.RequiredVersion)
	default:
		fmt.Printf("    %-12s v%d (upgrade needed, run: govoice upgrade)\n", "Schema:", s.CurrentVersion)
	}

	pending, hookErr := upgrade.PendingHooks(context.Background(), db.DB)
	if hookErr == nil && len(pending) > 0 {
		fmt.Printf("    %-12s %d pending\n", "Data hooks:", len(pending))
	} else if hookErr == nil {
		fmt.Printf("    %-12s all applied\n", "Data hooks:")
	}
}

// checkKey reports whether a secret is configured. Values come from a
// MaskedCopy, so only the mask would ever be printable anyway.
func checkKey(name, masked string) {
	if masked != "" {
		fmt.Printf("    %-12s configured\n", name+":")
	} else {
		fmt.Printf("    %-12s (not configured)\n", name+":")
	}
}

func checkBinary(name string) {
	path, err := exec.LookPath(name)
	if err != nil {
		fmt.Printf("    %-12s NOT FOUND\n", name+":")
	} else {
		fmt.Printf("    %-12s %s\n", name+":", path)
	}
}
