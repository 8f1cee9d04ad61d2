// Package pgxstore implements the claim, gesture and settlement stores on
// PostgreSQL using pgx
package pgxstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Sentinel errors for store operations
var (
	ErrTransactionFailed = errors.New("transaction failed")
	ErrQueryFailed       = errors.New("query failed")
	ErrInsertFailed      = errors.New("insert operation failed")
	ErrUpdateFailed      = errors.New("update operation failed")
	ErrCorruptRow        = errors.New("corrupt row")
)

// Store implements claim.Store, ledger.Log, settlement.Store and
// payout.Store on a single pool
type Store struct {
	pool *pgxpool.Pool
}

// New creates a new PostgreSQL store with an existing connection pool
// Returns the store and a closer function
func New(pool *pgxpool.Pool) (*Store, func()) {
	store := &Store{pool: pool}
	closer := func() {
		pool.Close()
	}
	return store, closer
}

// querier is satisfied by both the pool and a transaction
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}
