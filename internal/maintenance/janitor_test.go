package maintenance

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/store"
	"github.com/nextlevelbuilder/govoice/internal/store/sqldb"
)

func newSessionStore(t *testing.T) store.SessionStore {
	t.Helper()
	db, err := sqldb.Open(filepath.Join(t.TempDir(), "janitor.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := sqldb.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqldb.New(db).Sessions
}

func TestNew_ScheduleFallback(t *testing.T) {
	sessions := newSessionStore(t)

	j := New(sessions, config.MaintenanceConfig{Schedule: "not a cron line"}, nil)
	if j.Schedule() != defaultSchedule {
		t.Errorf("invalid schedule: got %q, want fallback %q", j.Schedule(), defaultSchedule)
	}

	j = New(sessions, config.MaintenanceConfig{}, nil)
	if j.Schedule() != defaultSchedule {
		t.Errorf("empty schedule: got %q, want %q", j.Schedule(), defaultSchedule)
	}

	j = New(sessions, config.MaintenanceConfig{Schedule: "0 3 * * *"}, nil)
	if j.Schedule() != "0 3 * * *" {
		t.Errorf("valid schedule was replaced: got %q", j.Schedule())
	}
}

func TestSweep_AbandonsOnlyStaleActive(t *testing.T) {
	sessions := newSessionStore(t)
	ctx := context.Background()

	if _, err := sessions.FindOrCreate(ctx, "stale", "u1", "u@example.com", store.SessionContext{}); err != nil {
		t.Fatalf("create stale: %v", err)
	}
	if _, err := sessions.FindOrCreate(ctx, "done", "u1", "u@example.com", store.SessionContext{}); err != nil {
		t.Fatalf("create done: %v", err)
	}
	end := time.Now()
	if err := sessions.SetStatus(ctx, "done", store.SessionCompleted, &end); err != nil {
		t.Fatalf("complete: %v", err)
	}

	j := New(sessions, config.MaintenanceConfig{StaleAfter: "30m"}, nil)

	// With the real clock nothing is stale yet.
	n, err := j.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("abandoned %d sessions immediately, want 0", n)
	}

	// An hour later the active session has aged past the threshold.
	j.clock = func() time.Time { return time.Now().Add(time.Hour) }
	n, err = j.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep (aged): %v", err)
	}
	if n != 1 {
		t.Fatalf("abandoned %d sessions, want 1", n)
	}

	got, err := sessions.BySessionID(ctx, "stale")
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.Status != store.SessionAbandoned {
		t.Errorf("status = %q, want %q", got.Status, store.SessionAbandoned)
	}
}

func TestSweep_RunsPruneHook(t *testing.T) {
	sessions := newSessionStore(t)

	calls := 0
	j := New(sessions, config.MaintenanceConfig{}, nil)
	j.Prune = func() int { calls++; return 3 }

	if _, err := j.Sweep(context.Background()); err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if calls != 1 {
		t.Errorf("prune hook ran %d times, want 1", calls)
	}
}
