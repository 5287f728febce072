package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch reloads cfg in place whenever the file at path changes, then invokes
// onReload. Settings read through accessors (performance mode, message caps)
// take effect immediately; onReload lets the caller refresh anything built
// from config, like the log level or the TTS provider. Subsystems that copy
// values at startup keep them.
//
// The parent directory is watched rather than the file itself because most
// editors and provisioning tools replace config files via rename.
func Watch(ctx context.Context, path string, cfg *Config, onReload func(*Config)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		target := filepath.Clean(path)

		reload := func() {
			next, err := Load(path)
			if err != nil {
				slog.Warn("config.reload.failed", "path", path, "error", err)
				return
			}
			cfg.ReplaceFrom(next)
			slog.Info("config.reloaded", "path", path, "hash", cfg.Hash())
			if onReload != nil {
				onReload(cfg)
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
					continue
				}
				// Editors emit bursts of events per save; coalesce them.
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(200*time.Millisecond, reload)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("config.watch.error", "error", err)
			}
		}
	}()

	return nil
}
