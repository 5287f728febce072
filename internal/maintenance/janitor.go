// Package maintenance runs the storage janitor. A gateway that crashes or is
// killed leaves its sessions in the active state forever; the janitor sweeps
// those rows to abandoned on a cron schedule so user stats and dashboards
// stay truthful.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/store"
)

const defaultSchedule = "*/5 * * * *"

// Janitor abandons persisted sessions whose last activity is older than the
// stale threshold. It only ever touches rows still marked active, so sessions
// closed by the gateway itself are never rewritten.
type Janitor struct {
	sessions   store.SessionStore
	schedule   string
	staleAfter time.Duration
	gron       *gronx.Gronx
	clock      func() time.Time
	log        *slog.Logger

	// Prune, when set, reclaims expired in-memory state (greeting limiters)
	// on the same schedule and reports how many entries it dropped.
	Prune func() int
}

func New(sessions store.SessionStore, cfg config.MaintenanceConfig, log *slog.Logger) *Janitor {
	if log == nil {
		log = slog.Default()
	}
	g := gronx.New()
	schedule := cfg.Schedule
	if schedule != "" && !g.IsValid(schedule) {
		log.Warn("maintenance.invalid_schedule", "schedule", schedule, "fallback", defaultSchedule)
		schedule = ""
	}
	if schedule == "" {
		schedule = defaultSchedule
	}
	return &Janitor{
		sessions:   sessions,
		schedule:   schedule,
		staleAfter: cfg.StaleAfterDur(),
		gron:       g,
		clock:      time.Now,
		log:        log,
	}
}

// Schedule reports the effective cron expression.
func (j *Janitor) Schedule() string { return j.schedule }

// Run ticks once a minute and sweeps whenever the schedule is due. Blocks
// until ctx is done. Cron granularity is one minute, so a minute ticker
// cannot miss a due window.
func (j *Janitor) Run(ctx context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			due, err := j.gron.IsDue(j.schedule, j.clock())
			if err != nil {
				j.log.Warn("maintenance.schedule_error", "schedule", j.schedule, "error", err)
				continue
			}
			if !due {
				continue
			}
			if _, err := j.Sweep(ctx); err != nil {
				j.log.Warn("maintenance.sweep_failed", "error", err)
			}
		}
	}
}

// Sweep abandons active sessions idle past the stale threshold, runs the
// prune hook and reports how many rows changed.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	if j.Prune != nil {
		if dropped := j.Prune(); dropped > 0 {
			j.log.Info("maintenance.limiters_pruned", "count", dropped)
		}
	}
	cutoff := j.clock().Add(-j.staleAfter)
	n, err := j.sessions.AbandonStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		j.log.Info("maintenance.sessions_abandoned", "count", n, "stale_after", j.staleAfter.String())
	}
	return n, nil
}
