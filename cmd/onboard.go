package cmd

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

func onboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "onboard",
		Short: "Interactive setup wizard",
		Run: func(cmd *cobra.Command, args []string) {
			runOnboard()
		},
	}
}

// runOnboard walks first-time setup: LLM credentials, speech synthesis and
// the listener port, then writes config.json and probes the LLM key.
// Docker and CI should skip the wizard and set GOVOICE_* env vars instead
// (see runAutoOnboard).
func runOnboard() {
	cfgPath := resolveConfigPath()
	cfg := config.Default()

	fmt.Println("GoVoice setup")
	fmt.Printf("Keys entered here are written to %s (file mode 0600).\n", cfgPath)
	fmt.Println("Prefer the environment? Ctrl+C and export GOVOICE_LLM_API_KEY instead.")
	fmt.Println()

	port := strconv.Itoa(cfg.Gateway.Port)
	ttsProvider := cfg.Tts.Provider

	llmForm := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("LLM API key").
				Description("Key for an OpenAI-compatible chat completions endpoint").
				EchoMode(huh.EchoModePassword).
				Value(&cfg.LLM.APIKey),
			huh.NewInput().
				Title("LLM base URL").
				Value(&cfg.LLM.BaseURL),
			huh.NewInput().
				Title("Model").
				Value(&cfg.LLM.Model),
			huh.NewInput().
				Title("Gateway port").
				Validate(validatePort).
				Value(&port),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("TTS provider").
				Description("Speaks each reply back to the caller").
				Options(
					huh.NewOption("Google Cloud Text-to-Speech", "google"),
					huh.NewOption("ElevenLabs", "elevenlabs"),
				).
				Value(&ttsProvider),
		),
	)
	if err := llmForm.Run(); err != nil {
		onboardAborted(err)
		return
	}

	cfg.Gateway.Port, _ = strconv.Atoi(port)
	cfg.Tts.Provider = ttsProvider

	// Provider-specific key prompt, built after the selection is known.
	var ttsKeyInput *huh.Input
	switch ttsProvider {
	case "elevenlabs":
		ttsKeyInput = huh.NewInput().
			Title("ElevenLabs API key").
			Description("Leave empty to configure later").
			EchoMode(huh.EchoModePassword).
			Value(&cfg.Tts.ElevenLabs.APIKey)
	default:
		ttsKeyInput = huh.NewInput().
			Title("Google Cloud API key").
			Description("Leave empty to configure later").
			EchoMode(huh.EchoModePassword).
			Value(&cfg.Tts.Google.APIKey)
	}

	realtimeEnabled := false
	ttsForm := huh.NewForm(
		huh.NewGroup(
			ttsKeyInput,
			huh.NewConfirm().
				Title("Enable realtime voice credential minting?").
				Description("Clients get short-lived tokens for the upstream realtime API").
				Value(&realtimeEnabled),
		),
	)
	if err := ttsForm.Run(); err != nil {
		onboardAborted(err)
		return
	}

	if realtimeEnabled {
		cfg.Realtime.Enabled = true
		keyForm := huh.NewForm(
			huh.NewGroup(
				huh.NewInput().
					Title("Realtime API key").
					EchoMode(huh.EchoModePassword).
					Value(&cfg.Realtime.APIKey),
			),
		)
		if err := keyForm.Run(); err != nil {
			onboardAborted(err)
			return
		}
	}

	if err := config.Save(cfgPath, cfg); err != nil {
		fmt.Printf("Could not save config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nConfig saved to %s\n", cfgPath)

	if os.Getenv("GOVOICE_DB_DSN") != "" {
		fmt.Println("GOVOICE_DB_DSN detected: the gateway will run in managed mode against Postgres.")
		fmt.Println("Run './govoice migrate up' once before the first start.")
	}

	fmt.Print("Verifying LLM key...")
	if verr := verifyLLMKey(cfg); verr != nil {
		if verr.fatal {
			fmt.Println(" FAILED")
			fmt.Printf("  %s\n", verr.message)
			fmt.Println("  Fix llm.api_key in the config or re-run: ./govoice onboard")
			return
		}
		fmt.Printf(" WARNING: %s\n", verr.message)
	} else {
		fmt.Println(" OK")
	}

	startNow := true
	confirmForm := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Start the gateway now?").
				Value(&startNow),
		),
	)
	if err := confirmForm.Run(); err != nil || !startNow {
		fmt.Println("\nSetup complete. Start the gateway with: ./govoice")
		return
	}
	runGateway()
}

func onboardAborted(err error) {
	if errors.Is(err, huh.ErrUserAborted) {
		fmt.Println("Setup cancelled.")
		return
	}
	fmt.Printf("Setup failed: %v\n", err)
}

func validatePort(s string) error {
	p, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not a number")
	}
	if p < 1 || p > 65535 {
		return fmt.Errorf("port must be 1-65535")
	}
	return nil
}
