package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/store/dbrow"
)

// CreateClaim implements claim.Store
func (s *Store) CreateClaim(ctx context.Context, c claim.Claim) error {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO claims (id, originator, proof, state, score, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (id) DO NOTHING
	`, c.ID.String(), c.Originator, c.Proof, string(c.State), c.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return claim.ErrClaimExists
	}
	return nil
}

// Claim implements claim.Store
func (s *Store) Claim(ctx context.Context, id claim.ID) (claim.Claim, error) {
	return readClaim(ctx, s.pool, id, "")
}

// CompareAndSetState implements claim.Store
func (s *Store) CompareAndSetState(ctx context.Context, id claim.ID, expected, next claim.State) (claim.Claim, error) {
	var row dbrow.Claim
	err := s.pool.QueryRow(ctx, `
		UPDATE claims SET state = $3, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND state = $2
		RETURNING `+dbrow.ClaimColumns,
		id.String(), string(expected), string(next),
	).Scan(row.ScanTargets()...)

	if errors.Is(err, pgx.ErrNoRows) {
		current, err := s.Claim(ctx, id)
		if err != nil {
			return claim.Claim{}, err
		}
		return current, claim.ErrStateConflict
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	return toClaim(row)
}

// readClaim loads a claim. A non-empty lock clause such as "FOR UPDATE" is
// appended to the query.
func readClaim(ctx context.Context, q querier, id claim.ID, lock string) (claim.Claim, error) {
	var row dbrow.Claim
	err := q.QueryRow(ctx,
		`SELECT `+dbrow.ClaimColumns+` FROM claims WHERE id = $1 `+lock,
		id.String(),
	).Scan(row.ScanTargets()...)

	if errors.Is(err, pgx.ErrNoRows) {
		return claim.Claim{}, claim.ErrClaimNotFound
	}
	if err != nil {
		return claim.Claim{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return toClaim(row)
}

func toClaim(row dbrow.Claim) (claim.Claim, error) {
	c, err := row.ToDomain()
	if err != nil {
		return claim.Claim{}, fmt.Errorf("%w: %w", ErrCorruptRow, err)
	}
	return c, nil
}

// claimExists distinguishes an empty result from an unknown claim
func claimExists(ctx context.Context, q querier, id claim.ID) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM claims WHERE id = $1)`, id.String()).Scan(&exists)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	if !exists {
		return claim.ErrClaimNotFound
	}
	return nil
}
