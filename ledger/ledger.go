// Package ledger records appreciation gestures against claims and derives the
// consensus score from the append-only gesture log
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/pkg/clock"
	"github.com/screwyprof/luvsettle/terms"
)

// Sentinel errors for ledger internals
var (
	ErrBalanceCheckFailed = errors.New("balance check failed")
	ErrDebitFailed        = errors.New("debit failed")
	ErrAppendFailed       = errors.New("gesture append failed")
	ErrReversalFailed     = errors.New("debit reversal failed")
	ErrScoreFailed        = errors.New("score read failed")
	ErrLogReadFailed      = errors.New("gesture log read failed")

	// ErrDebitVoided is returned by Balances.Debit for a token that was reversed
	// before the debit arrived. Nothing was withdrawn.
	ErrDebitVoided = errors.New("debit token voided")
)

// Gesture is one accepted endorsement. Sequence is assigned by the log.
type Gesture struct {
	ClaimID    claim.ID
	Endorser   string
	Amount     int64
	Sequence   int64
	Token      string
	AcceptedAt time.Time
}

// Contribution is the total an endorser has given a claim
type Contribution struct {
	Endorser string
	Amount   int64
}

// Log is the durable, append-only gesture log
type Log interface {
	// AppendGesture appends g unless the claim is settled (ErrClaimSettled) or
	// unknown (ErrClaimNotFound). It returns the stored gesture and the claim
	// score including it, both read in the same atomic step as the append.
	AppendGesture(ctx context.Context, g Gesture) (Gesture, int64, error)
	// Score returns the sum of all accepted gestures of the claim
	Score(ctx context.Context, id claim.ID) (int64, error)
	// Contributions returns per-endorser sums ordered by endorser
	Contributions(ctx context.Context, id claim.ID) ([]Contribution, error)
	// Gestures returns the claim's log in append order
	Gestures(ctx context.Context, id claim.ID) ([]Gesture, error)
}

// Balances is the external balance collaborator.
//
// Debit must be idempotent per token. ReverseDebit undoes the debit identified
// by token if it was applied and guarantees a later Debit with that token
// withdraws nothing and fails with ErrDebitVoided.
type Balances interface {
	HasBalance(ctx context.Context, account string, amount int64) (bool, error)
	Debit(ctx context.Context, account string, amount int64, token string) error
	ReverseDebit(ctx context.Context, token string) error
}

// Registry is the part of the claim registry the ledger needs
type Registry interface {
	Get(ctx context.Context, id claim.ID) (claim.Claim, error)
	Transition(ctx context.Context, id claim.ID, expected, next claim.State) (claim.Claim, error)
}

// Result describes an accepted gesture
type Result struct {
	Accepted bool
	Score    int64
	Promoted bool
	Gesture  Gesture
}

// Option configures the Ledger
type Option func(*Ledger)

// WithPromotionThreshold sets the score at which a claim becomes Eligible
func WithPromotionThreshold(n int64) Option {
	return func(l *Ledger) { l.threshold = n }
}

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c claim.Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithTokenSource replaces the debit request token generator
func WithTokenSource(next func() string) Option {
	return func(l *Ledger) { l.nextToken = next }
}

// WithLogger sets the logger used for diagnostics
func WithLogger(log *slog.Logger) Option {
	return func(l *Ledger) { l.logger = log }
}

// Ledger is the consensus ledger
type Ledger struct {
	log       Log
	balances  Balances
	registry  Registry
	lanes     *Sequencer
	threshold int64
	clock     claim.Clock
	nextToken func() string
	logger    *slog.Logger
}

// New constructs a Ledger. By default the promotion threshold is terms.DefaultPromotionThreshold.
func New(log Log, balances Balances, registry Registry, opts ...Option) *Ledger {
	l := &Ledger{
		log:       log,
		balances:  balances,
		registry:  registry,
		lanes:     NewSequencer(),
		threshold: terms.DefaultPromotionThreshold,
		clock:     clock.SystemClock{},
		nextToken: uuid.NewString,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// HasMetPromotionThreshold reports whether score reaches the promotion threshold
func (l *Ledger) HasMetPromotionThreshold(score int64) bool {
	return score >= l.threshold
}

// RecordGesture debits amount from the endorser and appends the gesture to the
// claim's log as one unit: if the append cannot be recorded the debit is reversed.
//
// Gestures of one endorser are serialized, so two concurrent gestures cannot both
// pass a balance check against the same snapshot. Gestures of different
// endorsers proceed independently. When the resulting score first reaches the
// threshold the claim is promoted Pending -> Eligible exactly once.
func (l *Ledger) RecordGesture(ctx context.Context, id claim.ID, endorser string, amount int64) (Result, error) {
	if endorser == "" {
		return Result{}, claim.Reject(claim.ErrInvalidRequest, "", errors.New("endorser is empty"))
	}
	if amount <= 0 {
		return Result{}, claim.Reject(claim.ErrInvalidRequest, "", fmt.Errorf("amount must be positive, got %d", amount))
	}

	c, err := l.registry.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if c.State == claim.Settled {
		return Result{}, claim.Reject(claim.ErrClaimSettled, c.State, nil)
	}

	g, score, err := l.debitAndAppend(ctx, c, endorser, amount)
	if err != nil {
		return Result{}, err
	}

	result := Result{Accepted: true, Score: score, Gesture: g}

	if c.State == claim.Pending && l.HasMetPromotionThreshold(score) {
		result.Promoted = l.promote(ctx, id, score)
	}

	return result, nil
}

// ScoreOf returns the sum of all accepted gestures for the claim
func (l *Ledger) ScoreOf(ctx context.Context, id claim.ID) (int64, error) {
	score, err := l.log.Score(ctx, id)
	if errors.Is(err, claim.ErrClaimNotFound) {
		return 0, claim.Reject(claim.ErrClaimNotFound, "", nil)
	}
	if err != nil {
		return 0, claim.Reject(claim.ErrCollaboratorUnavailable, "", fmt.Errorf("%w: %w", ErrScoreFailed, err))
	}
	return score, nil
}

// Gestures returns the accepted gestures of the claim in append order
func (l *Ledger) Gestures(ctx context.Context, id claim.ID) ([]Gesture, error) {
	gestures, err := l.log.Gestures(ctx, id)
	if errors.Is(err, claim.ErrClaimNotFound) {
		return nil, claim.Reject(claim.ErrClaimNotFound, "", nil)
	}
	if err != nil {
		return nil, claim.Reject(claim.ErrCollaboratorUnavailable, "", fmt.Errorf("%w: %w", ErrLogReadFailed, err))
	}
	return gestures, nil
}

// Promote re-checks a Pending claim against the threshold and promotes it if due.
// It exists to reconcile claims whose promotion transition failed transiently.
func (l *Ledger) Promote(ctx context.Context, id claim.ID) (bool, error) {
	c, err := l.registry.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if c.State != claim.Pending || !l.HasMetPromotionThreshold(c.Score) {
		return false, nil
	}

	_, err = l.registry.Transition(ctx, id, claim.Pending, claim.Eligible)
	if errors.Is(err, claim.ErrStateConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// debitAndAppend runs inside the endorser's lane
func (l *Ledger) debitAndAppend(ctx context.Context, c claim.Claim, endorser string, amount int64) (Gesture, int64, error) {
	release, err := l.lanes.Acquire(ctx, endorser)
	if err != nil {
		return Gesture{}, 0, claim.Reject(claim.ErrCollaboratorUnavailable, c.State, err)
	}
	defer release()

	ok, err := l.balances.HasBalance(ctx, endorser, amount)
	if err != nil {
		return Gesture{}, 0, claim.Reject(claim.ErrCollaboratorUnavailable, c.State, fmt.Errorf("%w: %w", ErrBalanceCheckFailed, err))
	}
	if !ok {
		return Gesture{}, 0, claim.Reject(claim.ErrInsufficientBalance, c.State, nil)
	}

	token := l.nextToken()

	if err := l.balances.Debit(ctx, endorser, amount, token); err != nil {
		if errors.Is(err, ErrDebitVoided) {
			return Gesture{}, 0, claim.Reject(claim.ErrCollaboratorUnavailable, c.State, fmt.Errorf("%w: %w", ErrDebitFailed, err))
		}
		// The outcome of a failed debit is unknown; reversing by token makes it void either way
		if revErr := l.reverse(ctx, token, endorser, amount); revErr != nil {
			err = errors.Join(err, revErr)
		}
		if errors.Is(err, claim.ErrInsufficientBalance) {
			return Gesture{}, 0, claim.Reject(claim.ErrInsufficientBalance, c.State, err)
		}
		return Gesture{}, 0, claim.Reject(claim.ErrCollaboratorUnavailable, c.State, fmt.Errorf("%w: %w", ErrDebitFailed, err))
	}

	g := Gesture{
		ClaimID:    c.ID,
		Endorser:   endorser,
		Amount:     amount,
		Token:      token,
		AcceptedAt: l.clock.Now().UTC(),
	}

	stored, score, err := l.log.AppendGesture(ctx, g)
	if err != nil {
		if revErr := l.reverse(ctx, token, endorser, amount); revErr != nil {
			err = errors.Join(err, revErr)
		}
		if errors.Is(err, claim.ErrClaimSettled) {
			return Gesture{}, 0, claim.Reject(claim.ErrClaimSettled, claim.Settled, nil)
		}
		return Gesture{}, 0, claim.Reject(claim.ErrCollaboratorUnavailable, c.State, fmt.Errorf("%w: %w", ErrAppendFailed, err))
	}

	l.logger.DebugContext(ctx, "Gesture accepted",
		slog.String("claimID", c.ID.String()),
		slog.String("endorser", endorser),
		slog.Int64("amount", amount),
		slog.Int64("sequence", stored.Sequence),
		slog.Int64("score", score),
	)

	return stored, score, nil
}

func (l *Ledger) reverse(ctx context.Context, token, endorser string, amount int64) error {
	if err := l.balances.ReverseDebit(ctx, token); err != nil {
		l.logger.ErrorContext(ctx, "Debit reversal failed",
			slog.String("token", token),
			slog.String("endorser", endorser),
			slog.Int64("amount", amount),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %w", ErrReversalFailed, err)
	}
	return nil
}

// promote performs the Pending -> Eligible transition. Losing the race to a
// concurrent promoter is expected and not an error.
func (l *Ledger) promote(ctx context.Context, id claim.ID, score int64) bool {
	_, err := l.registry.Transition(ctx, id, claim.Pending, claim.Eligible)
	switch {
	case err == nil:
		l.logger.InfoContext(ctx, "Claim promoted",
			slog.String("claimID", id.String()),
			slog.Int64("score", score),
		)
		return true
	case errors.Is(err, claim.ErrStateConflict):
		return false
	default:
		l.logger.WarnContext(ctx, "Claim promotion deferred",
			slog.String("claimID", id.String()),
			slog.Int64("score", score),
			slog.Any("error", err),
		)
		return false
	}
}
