// Package migrator applies the settlement schema with sql-migrate and exposes
// it as a pgtestdb migrator for tests
package migrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/peterldowns/pgtestdb"
	"github.com/peterldowns/pgtestdb/migrators/sqlmigrator"
	migrate "github.com/rubenv/sql-migrate"
)

const (
	migrationsTableName = "schema_migrations"
	schemaHashPrefix    = "settle_schema_"
)

// ErrMigrationExecution is returned when sql-migrate fails to apply the schema
var ErrMigrationExecution = errors.New("migration execution failed")

// SchemaMigrator implements pgtestdb.Migrator for the migrations in a directory
type SchemaMigrator struct {
	migrationsDir string
}

// NewSchemaMigrator creates a migrator for the migrations in migrationsDir
func NewSchemaMigrator(migrationsDir string) *SchemaMigrator {
	return &SchemaMigrator{migrationsDir: migrationsDir}
}

// Hash identifies the template database built from the current migrations
func (m *SchemaMigrator) Hash() (string, error) {
	source := &migrate.FileMigrationSource{Dir: m.migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	baseHash, err := sqlmigrator.New(source, migrationSet).Hash()
	if err != nil {
		return "", fmt.Errorf("failed to calculate migration hash for %s: %w", m.migrationsDir, err)
	}

	return schemaHashPrefix + baseHash, nil
}

// Migrate applies every pending migration to db
func (m *SchemaMigrator) Migrate(_ context.Context, db *sql.DB, _ pgtestdb.Config) error {
	_, err := applyMigrations(db, m.migrationsDir)
	return err
}

// ApplyMigrations applies pending migrations through the pgx pool and returns
// how many were applied
func ApplyMigrations(pool *pgxpool.Pool, migrationsDir string) (int, error) {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	return applyMigrations(db, migrationsDir)
}

func applyMigrations(db *sql.DB, migrationsDir string) (int, error) {
	source := &migrate.FileMigrationSource{Dir: migrationsDir}
	migrationSet := &migrate.MigrationSet{TableName: migrationsTableName}

	n, err := migrationSet.Exec(db, "postgres", source, migrate.Up)
	if err != nil {
		return n, fmt.Errorf("%w: %w", ErrMigrationExecution, err)
	}
	return n, nil
}
