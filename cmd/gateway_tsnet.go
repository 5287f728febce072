//go:build tsnet

package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"

	"tailscale.com/tsnet"

	"github.com/nextlevelbuilder/govoice/internal/config"
)

// initTailscale serves the gateway mux on a tailnet listener alongside the
// regular TCP listener. Node state persists under the configured state dir
// so the hostname survives restarts. Returns a cleanup func, or nil when
// Tailscale is not configured or failed to start.
func initTailscale(ctx context.Context, cfg *config.Config, mux *http.ServeMux) func() {
	ts := cfg.Tailscale
	if ts.Hostname == "" {
		return nil
	}

	stateDir := config.ExpandHome(ts.StateDir)
	if stateDir == "" {
		base, err := os.UserConfigDir()
		if err != nil {
			slog.Error("tsnet: cannot resolve state dir", "error", err)
			return nil
		}
		stateDir = filepath.Join(base, "tsnet-govoice")
	}
	if err := os.MkdirAll(stateDir, 0700); err != nil {
		slog.Error("tsnet: cannot create state dir", "dir", stateDir, "error", err)
		return nil
	}

	srv := &tsnet.Server{
		Hostname:  ts.Hostname,
		Dir:       stateDir,
		AuthKey:   ts.AuthKey, // env GOVOICE_TSNET_AUTH_KEY only
		Ephemeral: ts.Ephemeral,
		Logf: func(format string, args ...any) {
			slog.Debug("tsnet: " + fmt.Sprintf(format, args...))
		},
	}

	var (
		ln  net.Listener
		err error
	)
	if ts.EnableTLS {
		ln, err = srv.ListenTLS("tcp", ":443")
	} else {
		ln, err = srv.Listen("tcp", ":80")
	}
	if err != nil {
		slog.Error("tsnet: listen failed", "hostname", ts.Hostname, "error", err)
		srv.Close()
		return nil
	}

	httpSrv := &http.Server{Handler: mux}
	go func() {
		if serveErr := httpSrv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Warn("tsnet: serve ended", "error", serveErr)
		}
	}()
	go func() {
		<-ctx.Done()
		httpSrv.Close()
	}()

	slog.Info("tailscale listener up", "hostname", ts.Hostname, "tls", ts.EnableTLS)

	return func() {
		httpSrv.Close()
		srv.Close()
	}
}
