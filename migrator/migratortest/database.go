// Package migratortest creates throwaway PostgreSQL databases with the schema
// applied. pgtestdb clones them from a template keyed by the migrations hash.
package migratortest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver for pgtestdb
	"github.com/peterldowns/pgtestdb"
	"github.com/stretchr/testify/require"

	"github.com/screwyprof/luvsettle/migrator"
)

// CreateTestDatabase creates a test database with the migrations in
// migrationsDir applied and returns a pool connected to it
func CreateTestDatabase(t *testing.T, migrationsDir string) *pgxpool.Pool {
	t.Helper()

	dbConfig := pgtestdb.Custom(t, testDatabaseConfig(), migrator.NewSchemaMigrator(migrationsDir))
	t.Logf("testdbconf: %s", dbConfig.URL())

	pool, err := createTestConnection(t.Context(), dbConfig.URL())
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return pool
}

func testDatabaseConfig() pgtestdb.Config {
	return pgtestdb.Config{
		DriverName: "pgx",
		User:       "settler",
		Password:   "settler",
		Host:       "localhost",
		Port:       "5432",
		Options:    "sslmode=disable",
	}
}

// createTestConnection builds a small pool. Concurrency tests need more than
// one connection so row locks are actually contended.
func createTestConnection(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, err
	}

	config.MinConns = 1
	config.MaxConns = 8

	config.MaxConnLifetime = 10 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute
	config.HealthCheckPeriod = 30 * time.Second

	config.ConnConfig.ConnectTimeout = 5 * time.Second

	return pgxpool.NewWithConfig(ctx, config)
}
