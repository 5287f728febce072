package upgrade

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/nextlevelbuilder/govoice/internal/store/sqldb"
)

func openTestDB(t *testing.T) *sqldb.DB {
	t.Helper()
	db, err := sqldb.Open(filepath.Join(t.TempDir(), "upgrade.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestCheckSchema_FreshDatabase(t *testing.T) {
	db := openTestDB(t)

	status, err := CheckSchema(context.Background(), db.DB)
	if err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	if !status.NeedsMigration {
		t.Error("fresh database should need migration")
	}
	if status.Compatible {
		t.Error("fresh database should not be compatible")
	}
	if status.RequiredVersion != RequiredSchemaVersion {
		t.Errorf("RequiredVersion = %d, want %d", status.RequiredVersion, RequiredSchemaVersion)
	}
}

func TestCheckSchema_Migrated(t *testing.T) {
	db := openTestDB(t)
	if err := sqldb.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	status, err := CheckSchema(context.Background(), db.DB)
	if err != nil {
		t.Fatalf("CheckSchema: %v", err)
	}
	if !status.Compatible {
		t.Errorf("migrated database should be compatible, got %+v", status)
	}
	if status.NeedsMigration {
		t.Error("migrated database should not need migration")
	}
	if status.CurrentVersion != RequiredSchemaVersion {
		t.Errorf("CurrentVersion = %d, want %d", status.CurrentVersion, RequiredSchemaVersion)
	}
}

func TestRunPendingHooks_AppliesOnce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	calls := 0
	RegisterDataHook(1, "test_backfill_once", func(ctx context.Context, db *sql.DB) error {
		calls++
		return nil
	})

	pending, err := PendingHooks(ctx, db.DB)
	if err != nil {
		t.Fatalf("PendingHooks: %v", err)
	}
	if !containsName(pending, "test_backfill_once") {
		t.Fatalf("pending = %v, want to contain test_backfill_once", pending)
	}

	if _, err := RunPendingHooks(ctx, db.DB); err != nil {
		t.Fatalf("RunPendingHooks: %v", err)
	}
	if calls != 1 {
		t.Fatalf("hook ran %d times, want 1", calls)
	}

	// Second run must skip the recorded hook.
	if _, err := RunPendingHooks(ctx, db.DB); err != nil {
		t.Fatalf("RunPendingHooks again: %v", err)
	}
	if calls != 1 {
		t.Errorf("hook ran %d times after rerun, want 1", calls)
	}

	pending, err = PendingHooks(ctx, db.DB)
	if err != nil {
		t.Fatalf("PendingHooks after run: %v", err)
	}
	if containsName(pending, "test_backfill_once") {
		t.Errorf("pending = %v, want test_backfill_once recorded as applied", pending)
	}
}

func containsName(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
