package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/govoice/internal/config"
	"github.com/nextlevelbuilder/govoice/internal/store/sqldb"
)

// openMigrationDB opens the database the config points at: the sqlite file
// in standalone mode, the Postgres DSN in managed mode. Migrations are
// embedded in the binary, so there is no migrations directory to resolve.
func openMigrationDB() (*sqldb.DB, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Mode == "managed" {
		if cfg.Database.DSN == "" {
			return nil, fmt.Errorf("managed mode: GOVOICE_DB_DSN environment variable is not set")
		}
		return sqldb.Open(cfg.Database.DSN)
	}
	return sqldb.Open(config.ExpandHome(cfg.Database.Path))
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration management",
	}

	cmd.AddCommand(migrateUpCmd())
	cmd.AddCommand(migrateDownCmd())
	cmd.AddCommand(migrateVersionCmd())
	cmd.AddCommand(migrateForceCmd())
	cmd.AddCommand(migrateGotoCmd())
	cmd.AddCommand(migrateDropCmd())

	return cmd
}

func migrateUpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Apply all pending SQL migrations (no data hooks; see upgrade)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()
			m, err := sqldb.Migrator(db)
			if err != nil {
				return err
			}
			if db.Dialect == sqldb.DialectPostgres {
				defer m.Close()
			}

			if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate up: %w", err)
			}

			v, dirty, _ := m.Version()
			slog.Info("migration complete", "version", v, "dirty", dirty)
			return nil
		},
	}
}

func migrateDownCmd() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (default: 1 step)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()
			m, err := sqldb.Migrator(db)
			if err != nil {
				return err
			}
			if db.Dialect == sqldb.DialectPostgres {
				defer m.Close()
			}

			if steps <= 0 {
				steps = 1
			}
			if err := m.Steps(-steps); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate down: %w", err)
			}

			v, dirty, _ := m.Version()
			slog.Info("rollback complete", "version", v, "dirty", dirty)
			return nil
		},
	}
	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "number of steps to roll back")
	return cmd
}

func migrateVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()

			v, dirty, err := sqldb.SchemaVersion(db)
			if err != nil {
				return fmt.Errorf("get version: %w", err)
			}
			if v == 0 {
				fmt.Println("version: none (fresh database)")
				return nil
			}
			fmt.Printf("version: %d, dirty: %v\n", v, dirty)
			return nil
		},
	}
}

func migrateForceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set migration version (no migration applied)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()
			m, err := sqldb.Migrator(db)
			if err != nil {
				return err
			}
			if db.Dialect == sqldb.DialectPostgres {
				defer m.Close()
			}

			if err := m.Force(version); err != nil {
				return fmt.Errorf("force version: %w", err)
			}
			slog.Info("forced version", "version", version)
			return nil
		},
	}
}

func migrateGotoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "goto <version>",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version: %w", err)
			}
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()
			m, err := sqldb.Migrator(db)
			if err != nil {
				return err
			}
			if db.Dialect == sqldb.DialectPostgres {
				defer m.Close()
			}

			if err := m.Migrate(uint(version)); err != nil && !errors.Is(err, migrate.ErrNoChange) {
				return fmt.Errorf("migrate goto: %w", err)
			}
			slog.Info("migrated to version", "version", version)
			return nil
		},
	}
}

func migrateDropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "drop",
		Short: "Drop all tables (DANGEROUS)",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openMigrationDB()
			if err != nil {
				return err
			}
			defer db.Close()
			m, err := sqldb.Migrator(db)
			if err != nil {
				return err
			}
			if db.Dialect == sqldb.DialectPostgres {
				defer m.Close()
			}

			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			slog.Info("all tables dropped")
			return nil
		},
	}
}
