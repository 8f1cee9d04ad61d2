package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/pkg/clock"
	"github.com/screwyprof/luvsettle/terms"
)

// Sentinel errors for settlement operations
var (
	ErrSettlementNotFound   = errors.New("settlement not found")
	ErrConservationViolated = errors.New("distribution does not conserve the payment")
	ErrCommitFailed         = errors.New("settlement commit failed")
	ErrPayoutFailed         = errors.New("payout commit failed")
	ErrEscrowFailed         = errors.New("payer escrow failed")
	ErrEscrowReleaseFailed  = errors.New("payer escrow release failed")
)

// ComputeFunc derives the record from the claim and its contributions as read
// inside the store's atomic settlement step
type ComputeFunc func(c claim.Claim, contributions []ledger.Contribution) (Record, error)

// Store persists settlement records
type Store interface {
	// CommitSettlement atomically re-reads the claim and its contributions,
	// calls compute, persists the returned record and moves the claim from
	// Eligible to Settled. No gesture can be appended to the claim between the
	// read and the transition. Errors returned by compute are passed through.
	CommitSettlement(ctx context.Context, id claim.ID, compute ComputeFunc) (Record, error)
	// Settlement returns the record of a claim or ErrSettlementNotFound
	Settlement(ctx context.Context, id claim.ID) (Record, error)
	// MarkPayoutCommitted records that the claim's batch reached the treasury
	MarkPayoutCommitted(ctx context.Context, id claim.ID, at time.Time) error
}

// Funds holds the payment in escrow between the decision to settle and the
// payout.
//
// Debit must be idempotent per token and fail with claim.ErrInsufficientBalance
// when the account cannot cover amount. ReverseDebit refunds the debit and
// voids the token so a late Debit with it withdraws nothing.
type Funds interface {
	Debit(ctx context.Context, account string, amount int64, token string) error
	ReverseDebit(ctx context.Context, token string) error
}

// Payouts commits a transfer batch atomically. Committing the same key twice
// must not move funds twice. A batch naming an escrow is paid out of that
// debit.
type Payouts interface {
	Commit(ctx context.Context, batch Batch) error
}

// Registry is the part of the claim registry the waterfall needs
type Registry interface {
	Get(ctx context.Context, id claim.ID) (claim.Claim, error)
}

// Option configures the Waterfall
type Option func(*Waterfall)

// WithTerms sets the economic terms
func WithTerms(t terms.Config) Option {
	return func(w *Waterfall) { w.terms = t }
}

// WithAccounts sets the storage and treasury beneficiaries
func WithAccounts(a Accounts) Option {
	return func(w *Waterfall) { w.accounts = a }
}

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c claim.Clock) Option {
	return func(w *Waterfall) { w.clock = c }
}

// WithLogger sets the logger used for diagnostics
func WithLogger(l *slog.Logger) Option {
	return func(w *Waterfall) { w.log = l }
}

// WithTokenSource replaces the generator of the per-attempt part of escrow tokens
func WithTokenSource(next func() string) Option {
	return func(w *Waterfall) { w.nextToken = next }
}

// Waterfall settles Eligible claims exactly once
type Waterfall struct {
	store     Store
	registry  Registry
	funds     Funds
	payouts   Payouts
	terms     terms.Config
	accounts  Accounts
	clock     claim.Clock
	nextToken func() string
	log       *slog.Logger
}

// NewWaterfall constructs a Waterfall with default terms and accounts
func NewWaterfall(store Store, registry Registry, funds Funds, payouts Payouts, opts ...Option) *Waterfall {
	w := &Waterfall{
		store:     store,
		registry:  registry,
		funds:     funds,
		payouts:   payouts,
		terms:     terms.Default(),
		accounts:  Accounts{Storage: "storage", Treasury: "treasury"},
		clock:     clock.SystemClock{},
		nextToken: uuid.NewString,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Settle distributes paymentValue for an Eligible claim and moves it to Settled.
//
// Preconditions are checked in order: the claim must be Eligible
// (ErrNotEligible / ErrAlreadySettled) and the payment must exceed the
// persistence cost (ErrInsufficientPayment). The payment is then debited from
// the payer into escrow (ErrInsufficientBalance), so one balance can never fund
// two settlements. The plan is computed from a snapshot taken inside the atomic
// settlement step and stored with its transfer batch. If that step does not
// persist a record the escrow is released.
//
// The batch is paid out of the escrow right away. If the treasury is
// unavailable the record stays with PayoutPending and the payout dispatcher
// completes it; the settlement itself is final either way.
func (w *Waterfall) Settle(ctx context.Context, id claim.ID, payer string, paymentValue int64) (Record, error) {
	if payer == "" {
		return Record{}, claim.Reject(claim.ErrInvalidRequest, "", errors.New("payer is empty"))
	}

	c, err := w.registry.Get(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if err := requireEligible(c); err != nil {
		return Record{}, err
	}
	if paymentValue <= w.terms.PersistenceCost {
		return Record{}, claim.Reject(claim.ErrInsufficientPayment, c.State,
			fmt.Errorf("payment %d must exceed persistence cost %d", paymentValue, w.terms.PersistenceCost))
	}

	escrow := EscrowToken(id, w.nextToken())
	if err := w.hold(ctx, c, payer, paymentValue, escrow); err != nil {
		return Record{}, err
	}

	record, err := w.store.CommitSettlement(ctx, id, w.compute(payer, paymentValue, escrow))
	if err != nil {
		record, err = w.recoverCommit(ctx, c, escrow, err)
		if err != nil {
			return Record{}, err
		}
	}

	w.log.InfoContext(ctx, "Claim settled",
		slog.String("claimID", id.String()),
		slog.String("payer", payer),
		slog.Int64("paymentValue", paymentValue),
		slog.Int64("totalScore", record.TotalScore),
		slog.Int("endorsers", len(record.EndorserRewards)),
	)

	committed, err := w.CompletePayout(ctx, record)
	if err != nil {
		w.log.WarnContext(ctx, "Payout deferred",
			slog.String("claimID", id.String()),
			slog.Any("error", err),
		)
		return record, nil
	}

	return committed, nil
}

// EscrowToken is the debit token of one settlement attempt for the claim
func EscrowToken(id claim.ID, attempt string) string {
	return "escrow:" + id.String() + ":" + attempt
}

// hold debits the payment into escrow. A debit with an unknown outcome is
// voided before the rejection is returned.
func (w *Waterfall) hold(ctx context.Context, c claim.Claim, payer string, amount int64, escrow string) error {
	err := w.funds.Debit(ctx, payer, amount, escrow)
	if err == nil {
		return nil
	}

	if errors.Is(err, claim.ErrInsufficientBalance) {
		return claim.Reject(claim.ErrInsufficientBalance, c.State, fmt.Errorf("payer %q cannot cover %d: %w", payer, amount, err))
	}
	if relErr := w.release(ctx, c.ID, escrow); relErr != nil {
		err = errors.Join(err, relErr)
	}
	return claim.Reject(claim.ErrCollaboratorUnavailable, c.State, fmt.Errorf("%w: %w", ErrEscrowFailed, err))
}

// recoverCommit handles a failed settlement step. A record stored under this
// attempt's escrow means the step committed and only its reply was lost; any
// other outcome releases the escrow.
func (w *Waterfall) recoverCommit(ctx context.Context, c claim.Claim, escrow string, commitErr error) (Record, error) {
	var rejection *claim.Rejection
	isRejection := errors.As(commitErr, &rejection)

	if !isRejection {
		stored, err := w.store.Settlement(ctx, c.ID)
		if err == nil && stored.Escrow == escrow {
			return stored, nil
		}
		if err != nil && !errors.Is(err, ErrSettlementNotFound) {
			// The record may have been stored, so the escrow stays held
			return Record{}, claim.Reject(claim.ErrCollaboratorUnavailable, c.State,
				fmt.Errorf("%w: %w", ErrCommitFailed, errors.Join(commitErr, err)))
		}
	}

	if err := w.release(ctx, c.ID, escrow); err != nil {
		commitErr = errors.Join(commitErr, err)
	}
	if isRejection {
		return Record{}, commitErr
	}
	return Record{}, claim.Reject(claim.ErrCollaboratorUnavailable, c.State, fmt.Errorf("%w: %w", ErrCommitFailed, commitErr))
}

func (w *Waterfall) release(ctx context.Context, id claim.ID, escrow string) error {
	if err := w.funds.ReverseDebit(ctx, escrow); err != nil {
		w.log.ErrorContext(ctx, "Escrow release failed",
			slog.String("claimID", id.String()),
			slog.String("escrow", escrow),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", ErrEscrowReleaseFailed, err)
	}
	return nil
}

// Settlement returns the record of a settled claim
func (w *Waterfall) Settlement(ctx context.Context, id claim.ID) (Record, error) {
	record, err := w.store.Settlement(ctx, id)
	if errors.Is(err, ErrSettlementNotFound) {
		c, getErr := w.registry.Get(ctx, id)
		if getErr != nil {
			return Record{}, getErr
		}
		return Record{}, claim.Reject(ErrSettlementNotFound, c.State, nil)
	}
	if err != nil {
		return Record{}, claim.Reject(claim.ErrCollaboratorUnavailable, "", err)
	}
	return record, nil
}

// CompletePayout commits the record's buffered batch and marks it committed.
// Calling it again for a committed record is a no-op.
func (w *Waterfall) CompletePayout(ctx context.Context, record Record) (Record, error) {
	if record.PayoutStatus == PayoutCommitted {
		return record, nil
	}

	if err := w.payouts.Commit(ctx, record.Batch()); err != nil {
		return record, claim.Reject(claim.ErrCollaboratorUnavailable, claim.Settled, fmt.Errorf("%w: %w", ErrPayoutFailed, err))
	}

	at := w.clock.Now().UTC()
	if err := w.store.MarkPayoutCommitted(ctx, record.ClaimID, at); err != nil {
		// The batch key makes the next attempt a no-op at the treasury
		return record, claim.Reject(claim.ErrCollaboratorUnavailable, claim.Settled, fmt.Errorf("%w: %w", ErrPayoutFailed, err))
	}

	record.PayoutStatus = PayoutCommitted
	record.PayoutCommittedAt = &at

	w.log.InfoContext(ctx, "Payout committed",
		slog.String("claimID", record.ClaimID.String()),
		slog.Int("transfers", len(record.Transfers)),
	)

	return record, nil
}

// compute runs inside the store's atomic step and must not perform I/O
func (w *Waterfall) compute(payer string, paymentValue int64, escrow string) ComputeFunc {
	return func(c claim.Claim, contributions []ledger.Contribution) (Record, error) {
		if err := requireEligible(c); err != nil {
			return Record{}, err
		}

		plan, err := NewPlan(Input{
			ClaimID:       c.ID,
			Payer:         payer,
			Originator:    c.Originator,
			PaymentValue:  paymentValue,
			Contributions: contributions,
			Terms:         w.terms,
		})
		if errors.Is(err, claim.ErrInsufficientPayment) {
			return Record{}, claim.Reject(claim.ErrInsufficientPayment, c.State, err)
		}
		if err != nil {
			return Record{}, err
		}

		record := NewRecord(plan, w.accounts, escrow, w.clock.Now().UTC())
		if plan.Distributed() != paymentValue || record.Batch().Total() != paymentValue {
			return Record{}, fmt.Errorf("%w: claim %s", ErrConservationViolated, c.ID)
		}

		return record, nil
	}
}

func requireEligible(c claim.Claim) error {
	switch c.State {
	case claim.Eligible:
		return nil
	case claim.Settled:
		return claim.Reject(claim.ErrAlreadySettled, c.State, nil)
	default:
		return claim.Reject(claim.ErrNotEligible, c.State, nil)
	}
}
