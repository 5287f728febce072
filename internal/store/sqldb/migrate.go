package sqldb

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	migratelite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

// Migrator builds a migrator over the embedded migration set for the
// dialect db was opened with. Closing the migrator on sqlite closes the
// shared handle, so long-lived callers must only Close on postgres.
func Migrator(db *DB) (*migrate.Migrate, error) {
	sub, err := fs.Sub(migrationsFS, "migrations/"+string(db.Dialect))
	if err != nil {
		return nil, fmt.Errorf("migrations for %s: %w", db.Dialect, err)
	}
	src, err := iofs.New(sub, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}

	var drv database.Driver
	switch db.Dialect {
	case DialectPostgres:
		drv, err = migratepg.WithInstance(db.DB, &migratepg.Config{})
	default:
		drv, err = migratelite.WithInstance(db.DB, &migratelite.Config{})
	}
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, string(db.Dialect), drv)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Migrate applies all pending migrations. A database already at the latest
// version is not an error.
func Migrate(db *DB) error {
	m, err := Migrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate up: %w", err)
	}
	if db.Dialect == DialectPostgres {
		m.Close()
	}
	return nil
}

// SchemaVersion reports the applied migration version and dirty flag.
// A fresh database reports version 0.
func SchemaVersion(db *DB) (uint, bool, error) {
	m, err := Migrator(db)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if db.Dialect == DialectPostgres {
		m.Close()
	}
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("schema version: %w", err)
	}
	return v, dirty, nil
}
