package pgxstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/store/dbrow"
)

// AppendGesture implements ledger.Log.
//
// The score update takes the claim's row lock, so appends to one claim are
// serialized and each sees the score including its own amount. A concurrent
// settlement holding the lock is waited for, after which the state check fails.
func (s *Store) AppendGesture(ctx context.Context, g ledger.Gesture) (ledger.Gesture, int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return ledger.Gesture{}, 0, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if commit succeeds

	var score int64
	err = tx.QueryRow(ctx, `
		UPDATE claims SET score = score + $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND state <> 'settled'
		RETURNING score
	`, g.ClaimID.String(), g.Amount).Scan(&score)

	if errors.Is(err, pgx.ErrNoRows) {
		if err := claimExists(ctx, tx, g.ClaimID); err != nil {
			return ledger.Gesture{}, 0, err
		}
		return ledger.Gesture{}, 0, claim.ErrClaimSettled
	}
	if err != nil {
		return ledger.Gesture{}, 0, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO gestures (claim_id, endorser, amount, token, accepted_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING seq
	`, g.ClaimID.String(), g.Endorser, g.Amount, g.Token, g.AcceptedAt).Scan(&g.Sequence)
	if err != nil {
		return ledger.Gesture{}, 0, fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}

	if err = tx.Commit(ctx); err != nil {
		return ledger.Gesture{}, 0, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	return g, score, nil
}

// Score implements ledger.Log
func (s *Store) Score(ctx context.Context, id claim.ID) (int64, error) {
	var score int64
	err := s.pool.QueryRow(ctx, `SELECT score FROM claims WHERE id = $1`, id.String()).Scan(&score)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, claim.ErrClaimNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	return score, nil
}

// Contributions implements ledger.Log
func (s *Store) Contributions(ctx context.Context, id claim.ID) ([]ledger.Contribution, error) {
	if err := claimExists(ctx, s.pool, id); err != nil {
		return nil, err
	}
	return contributions(ctx, s.pool, id)
}

// Gestures returns the claim's log in append order
func (s *Store) Gestures(ctx context.Context, id claim.ID) ([]ledger.Gesture, error) {
	if err := claimExists(ctx, s.pool, id); err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT seq, claim_id, endorser, amount, token, accepted_at
		FROM gestures WHERE claim_id = $1
		ORDER BY seq
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	gestures, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Gesture, error) {
		var g dbrow.Gesture
		err := row.Scan(&g.Seq, &g.ClaimID, &g.Endorser, &g.Amount, &g.Token, &g.AcceptedAt)
		return g.ToDomain(), err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return gestures, nil
}

func contributions(ctx context.Context, q querier, id claim.ID) ([]ledger.Contribution, error) {
	rows, err := q.Query(ctx, `
		SELECT endorser, SUM(amount)::BIGINT
		FROM gestures WHERE claim_id = $1
		GROUP BY endorser
		ORDER BY endorser
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ledger.Contribution, error) {
		var c ledger.Contribution
		err := row.Scan(&c.Endorser, &c.Amount)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return out, nil
}
