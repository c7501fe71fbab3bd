package database

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

// MigrationsFS holds the schema migration files. It is set by the
// migrations package init so this package stays free of embed paths:
//
//	import _ "github.com/smarteefi-community/smarteefi-bridge/migrations"
//
// Tests may substitute an fstest.MapFS.
var MigrationsFS fs.FS

// MigrationsDir is the directory within MigrationsFS containing the
// migration files.
var MigrationsDir = "."

// ErrNoMigrations is returned when MigrationsFS is unset or contains no
// migration files. The bridge cannot run without the device mirror schema,
// so this is treated as a wiring mistake rather than an empty database.
var ErrNoMigrations = errors.New("database: no migrations available")

// migrationSuffix identifies migration files. The schema only ever moves
// forward: rebuilding the device mirror from the cloud is cheaper than
// maintaining rollback scripts would be.
const migrationSuffix = ".up.sql"

// migration is a single schema change loaded from MigrationsFS.
type migration struct {
	// version orders migrations and keys the schema_migrations table.
	// Derived from the filename: "20260301_120000_device_mirror.up.sql"
	// has version "20260301_120000".
	version string

	// name is the human-readable part of the filename ("device_mirror").
	name string

	// sql is the statement batch to execute.
	sql string
}

// Migrate brings the device mirror schema up to date.
//
// Pending migrations are applied in version order, each inside its own
// transaction, and recorded in the schema_migrations table. Re-running
// against an up-to-date database is a no-op.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: If loading or applying a migration fails
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.ensureVersionTable(ctx); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	applied, err := db.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}
		if err := db.applyMigration(ctx, m); err != nil {
			return fmt.Errorf("applying migration %s (%s): %w", m.version, m.name, err)
		}
	}

	return nil
}

// ensureVersionTable creates the schema_migrations bookkeeping table.
func (db *DB) ensureVersionTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}
	return nil
}

// appliedVersions returns the set of already-applied migration versions.
func (db *DB) appliedVersions(ctx context.Context) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("querying applied migrations: %w", err)
	}
	defer rows.Close() //nolint:errcheck // Read-only cursor

	applied := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scanning migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating applied migrations: %w", err)
	}

	return applied, nil
}

// applyMigration executes one migration inside a transaction and records it.
func (db *DB) applyMigration(ctx context.Context, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // No-op after commit

	if _, err := tx.ExecContext(ctx, m.sql); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version) VALUES (?)", m.version,
	); err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}

// loadMigrations reads all migration files from MigrationsFS, sorted by
// version.
func loadMigrations() ([]migration, error) {
	if MigrationsFS == nil {
		return nil, ErrNoMigrations
	}

	entries, err := fs.ReadDir(MigrationsFS, MigrationsDir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	var migrations []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), migrationSuffix) {
			continue
		}

		version, name, err := parseMigrationFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		sqlBytes, err := fs.ReadFile(MigrationsFS, path.Join(MigrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, migration{
			version: version,
			name:    name,
			sql:     string(sqlBytes),
		})
	}

	if len(migrations) == 0 {
		return nil, ErrNoMigrations
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].version < migrations[j].version
	})

	return migrations, nil
}

// parseMigrationFilename splits "20260301_120000_device_mirror.up.sql"
// into version "20260301_120000" and name "device_mirror".
func parseMigrationFilename(filename string) (version, name string, err error) {
	base := strings.TrimSuffix(filename, migrationSuffix)
	parts := strings.SplitN(base, "_", 3)
	if len(parts) < 3 {
		return "", "", fmt.Errorf("invalid migration filename %q: want DATE_TIME_name%s", filename, migrationSuffix)
	}
	return parts[0] + "_" + parts[1], parts[2], nil
}
