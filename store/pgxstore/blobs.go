package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/screwyprof/luvsettle/claim"
)

// ErrBlobNotFound is returned for an unknown address
var ErrBlobNotFound = errors.New("blob not found")

// Blobs implements claim.Blobs on the blobs table
type Blobs struct {
	pool *pgxpool.Pool
}

// NewBlobs creates a blob store on an existing pool. The pool is owned by the caller.
func NewBlobs(pool *pgxpool.Pool) *Blobs {
	return &Blobs{pool: pool}
}

// Put stores body under its content address. Storing the same body twice is a no-op.
func (b *Blobs) Put(ctx context.Context, body []byte) (string, error) {
	address := claim.Address(body)

	_, err := b.pool.Exec(ctx, `
		INSERT INTO blobs (address, body) VALUES ($1, $2)
		ON CONFLICT (address) DO NOTHING
	`, address, body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}

	return address, nil
}

// Get returns the body stored under address
func (b *Blobs) Get(ctx context.Context, address string) ([]byte, error) {
	var body []byte
	err := b.pool.QueryRow(ctx, `SELECT body FROM blobs WHERE address = $1`, address).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return body, nil
}
