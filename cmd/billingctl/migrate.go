package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/mysql"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/ManuelReschke/subscription-engine/internal/pkg/env"
)

var migrationsPath string

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect database schema migrations",
	}
	cmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "directory holding the migration files")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				err := m.Up()
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Println("no changes: database is up to date")
					return nil
				}
				if err != nil {
					return fmt.Errorf("migrate up: %w", err)
				}
				cmd.Println("migrations applied")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Steps(-1); err != nil {
					return fmt.Errorf("migrate down: %w", err)
				}
				cmd.Println("last migration rolled back")
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "goto VERSION",
		Short: "Migrate to a specific version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			return withMigrator(func(m *migrate.Migrate) error {
				err := m.Migrate(uint(version))
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Printf("no changes: database is already at version %d\n", version)
					return nil
				}
				if err != nil {
					return fmt.Errorf("migrate to %d: %w", version, err)
				}
				cmd.Printf("migrated to version %d\n", version)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show the current migration version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("no migrations applied yet")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				suffix := ""
				if dirty {
					suffix = " (dirty)"
				}
				cmd.Printf("current version: %d%s\n", version, suffix)
				return nil
			})
		},
	})

	return cmd
}

// migrationDatabaseURL builds the golang-migrate mysql URL from the same
// DB_* keys the server uses.
func migrationDatabaseURL() string {
	return fmt.Sprintf("mysql://%s:%s@tcp(%s:%s)/%s?multiStatements=true",
		env.GetEnv("DB_USER", ""),
		env.GetEnv("DB_PASSWORD", ""),
		env.GetEnv("DB_HOST", "127.0.0.1"),
		env.GetEnv("DB_PORT", "3306"),
		env.GetEnv("DB_NAME", ""),
	)
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	log := cliLogger()
	log.Info().
		Str("host", env.GetEnv("DB_HOST", "127.0.0.1")).
		Str("database", env.GetEnv("DB_NAME", "")).
		Str("path", migrationsPath).
		Msg("connecting for migrations")

	m, err := migrate.New("file://"+migrationsPath, migrationDatabaseURL())
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Warn().AnErr("source", sourceErr).AnErr("database", dbErr).Msg("closing migrator failed")
		}
	}()
	return fn(m)
}
