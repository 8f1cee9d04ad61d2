package pgxstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/store/dbrow"
)

// CommitSettlement implements settlement.Store.
//
// The claim row is locked for the whole transaction, so gesture appends and
// transitions wait until the settlement commits and then observe Settled.
func (s *Store) CommitSettlement(ctx context.Context, id claim.ID, compute settlement.ComputeFunc) (settlement.Record, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	defer func() { _ = tx.Rollback(ctx) }() // No-op if commit succeeds

	c, err := readClaim(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return settlement.Record{}, err
	}

	contributions, err := contributions(ctx, tx, id)
	if err != nil {
		return settlement.Record{}, err
	}

	record, err := compute(c, contributions)
	if err != nil {
		return settlement.Record{}, err
	}

	row := dbrow.SettlementFromDomain(record)
	_, err = tx.Exec(ctx, `
		INSERT INTO settlements (`+dbrow.SettlementColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, row.Values()...)
	if err != nil {
		return settlement.Record{}, fmt.Errorf("%w: %w", ErrInsertFailed, err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE claims SET state = 'settled', updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND state = 'eligible'
	`, id.String())
	if err != nil {
		return settlement.Record{}, fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return settlement.Record{}, claim.ErrStateConflict
	}

	if err = tx.Commit(ctx); err != nil {
		return settlement.Record{}, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}

	return record, nil
}

// Settlement implements settlement.Store
func (s *Store) Settlement(ctx context.Context, id claim.ID) (settlement.Record, error) {
	var row dbrow.Settlement
	err := s.pool.QueryRow(ctx,
		`SELECT `+dbrow.SettlementColumns+` FROM settlements WHERE claim_id = $1`,
		id.String(),
	).Scan(row.ScanTargets()...)

	if errors.Is(err, pgx.ErrNoRows) {
		return settlement.Record{}, settlement.ErrSettlementNotFound
	}
	if err != nil {
		return settlement.Record{}, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return row.ToDomain(), nil
}

// MarkPayoutCommitted implements settlement.Store
func (s *Store) MarkPayoutCommitted(ctx context.Context, id claim.ID, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE settlements SET payout_status = 'committed', payout_committed_at = $2
		WHERE claim_id = $1
	`, id.String(), at)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpdateFailed, err)
	}
	if tag.RowsAffected() == 0 {
		return settlement.ErrSettlementNotFound
	}
	return nil
}

// PendingPayouts implements payout.Store, oldest settlement first
func (s *Store) PendingPayouts(ctx context.Context, limit int) ([]settlement.Record, error) {
	var lim any // NULL means no limit
	if limit > 0 {
		lim = limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+dbrow.SettlementColumns+`
		FROM settlements
		WHERE payout_status = 'pending'
		ORDER BY settled_at, claim_id
		LIMIT $1
	`, lim)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	records, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (settlement.Record, error) {
		var row dbrow.Settlement
		err := r.Scan(row.ScanTargets()...)
		return row.ToDomain(), err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return records, nil
}
