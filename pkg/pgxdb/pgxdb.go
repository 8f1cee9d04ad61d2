// Package pgxdb opens tuned pgx connection pools
package pgxdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for pgxdb package operations
var (
	ErrInvalidConnectionString = errors.New("invalid database connection string")
	ErrConnectionPoolCreation  = errors.New("failed to create database connection pool")
	ErrDatabaseConnection      = errors.New("failed to connect to database")
)

// PoolConfig tunes the pool. It is embedded into service configs with a prefix.
type PoolConfig struct {
	MinConns          int32         `env:"MIN_CONNS" envDefault:"2"`
	MaxConns          int32         `env:"MAX_CONNS" envDefault:"10"`
	MaxConnLifetime   time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"30m"`
	MaxConnIdleTime   time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"5m"`
	HealthCheckPeriod time.Duration `env:"HEALTH_CHECK_PERIOD" envDefault:"1m"`
	ConnectTimeout    time.Duration `env:"CONNECT_TIMEOUT" envDefault:"10s"`
}

// DefaultPoolConfig mirrors the env defaults
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MinConns:          2,
		MaxConns:          10,
		MaxConnLifetime:   30 * time.Minute,
		MaxConnIdleTime:   5 * time.Minute,
		HealthCheckPeriod: time.Minute,
		ConnectTimeout:    10 * time.Second,
	}
}

// NewConnection creates a pool with the default tuning and checks it is reachable
func NewConnection(ctx context.Context, connectionString string) (*pgxpool.Pool, error) {
	return NewConnectionWithConfig(ctx, connectionString, DefaultPoolConfig())
}

// NewConnectionWithConfig creates a pool tuned by pc and checks it is reachable.
// Every gesture append and settlement holds a claim row lock for one short
// transaction, so MaxConns bounds how many claims progress at once.
func NewConnectionWithConfig(ctx context.Context, connectionString string, pc PoolConfig) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConnectionString, err)
	}

	config.MinConns = pc.MinConns
	config.MaxConns = pc.MaxConns
	config.MaxConnLifetime = pc.MaxConnLifetime
	config.MaxConnIdleTime = pc.MaxConnIdleTime
	config.HealthCheckPeriod = pc.HealthCheckPeriod
	config.ConnConfig.ConnectTimeout = pc.ConnectTimeout

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionPoolCreation, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	return pool, nil
}
