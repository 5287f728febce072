package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/seed"
	"github.com/nextlevelbuilder/govoice/internal/store/sqldb"
)

// canAutoOnboard returns true if GOVOICE_LLM_API_KEY is set, indicating the
// user wants non-interactive configuration (e.g. Docker).
func canAutoOnboard() bool {
	return os.Getenv("GOVOICE_LLM_API_KEY") != ""
}

// runAutoOnboard performs non-interactive setup from environment variables.
// Returns true on success, false on fatal error.
func runAutoOnboard(cfgPath string) bool {
	fmt.Println("Auto-onboard: environment variables detected, running non-interactive setup...")

	cfg := config.Default()
	cfg.ApplyEnvOverrides()

	fmt.Printf("  LLM:      %s (model: %s)\n", cfg.LLM.BaseURL, cfg.LLM.Model)
	fmt.Printf("  TTS:      %s\n", cfg.Tts.Provider)
	if cfg.Realtime.Enabled {
		fmt.Println("  Realtime: enabled")
	}

	// Managed mode setup. A DSN in the environment implies managed mode
	// even without GOVOICE_DB_MODE.
	if cfg.Database.DSN != "" && cfg.Database.Mode != "managed" {
		cfg.Database.Mode = "managed"
	}
	if cfg.IsManagedMode() {
		fmt.Print("  Testing Postgres connection...")

		// Retry loop: the database container may still be starting.
		var pgErr error
		for attempt := 1; attempt <= 5; attempt++ {
			pgErr = testDatabaseConnection(cfg.Database.DSN)
			if pgErr == nil {
				break
			}
			if attempt < 5 {
				fmt.Printf(" retry %d/5...", attempt)
				time.Sleep(2 * time.Second)
			}
		}
		if pgErr != nil {
			fmt.Println(" FAILED")
			fmt.Printf("  Error: %v\n", pgErr)
			return false
		}
		fmt.Println(" OK")

		// Run migrations (idempotent).
		fmt.Print("  Running migrations...")
		db, err := sqldb.Open(cfg.Database.DSN)
		if err != nil {
			fmt.Printf(" error: %v\n", err)
			fmt.Println("  Continuing without migration (run manually: govoice migrate up)")
		} else {
			if err := sqldb.Migrate(db); err != nil {
				fmt.Printf(" error: %v\n", err)
				fmt.Println("  Continuing without migration (run manually: govoice migrate up)")
			} else {
				v, _, _ := sqldb.SchemaVersion(db)
				fmt.Printf(" OK (version: %d)\n", v)

				// Seed the demo agent so client_ready works on first boot.
				// Non-fatal: a populated database skips itself.
				fmt.Print("  Seeding demo agent...")
				stores := sqldb.New(db)
				if created, seedErr := seed.Apply(context.Background(), stores.Agents, slog.Default()); seedErr != nil {
					fmt.Printf(" skipped: %v\n", seedErr)
				} else if len(created) > 0 {
					fmt.Printf(" OK (%s)\n", strings.Join(created, ", "))
				} else {
					fmt.Println(" already present")
				}
			}
			db.Close()
		}
	}

	// Verify the LLM key before declaring success. Only auth failures block.
	fmt.Print("  Verifying LLM key...")
	if verr := verifyLLMKey(cfg); verr != nil {
		if verr.fatal {
			fmt.Println(" FAILED")
			fmt.Printf("  Error: %s\n", verr.message)
			return false
		}
		fmt.Printf(" WARNING: %s\n", verr.message)
	} else {
		fmt.Println(" OK")
	}

	// Save config with secrets stripped: env-provided keys are never
	// persisted to disk, they stay in the environment.
	if err := saveCleanConfig(cfgPath, cfg); err != nil {
		fmt.Printf("  Warning: could not save config: %v\n", err)
	} else {
		fmt.Printf("  Config saved to %s\n", cfgPath)
	}

	// Restore runtime secrets the clean save stripped.
	cfg.ApplyEnvOverrides()

	fmt.Println("Auto-onboard complete.")
	return true
}

// testDatabaseConnection verifies connectivity with a 5s timeout.
func testDatabaseConnection(dsn string) error {
	db, err := sqldb.Open(dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return db.DB.PingContext(ctx)
}

// saveCleanConfig writes config.json without secret values. MaskedCopy
// replaces every secret with the mask, StripMaskedSecrets then blanks the
// masks, so the written file documents the setup without leaking keys.
func saveCleanConfig(cfgPath string, cfg *config.Config) error {
	clean := cfg.MaskedCopy()
	clean.StripMaskedSecrets()
	return config.Save(cfgPath, clean)
}
