//go:build !tsnet

package cmd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// initTailscale is a no-op in binaries built without the tsnet tag.
func initTailscale(ctx context.Context, cfg *config.Config, mux *http.ServeMux) func() {
	if cfg.Tailscale.Hostname != "" {
		slog.Warn("tailscale configured but this binary was built without it; rebuild with -tags tsnet")
	}
	return nil
}
