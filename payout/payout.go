// Package payout completes settlement batches that could not be committed to
// the treasury at settlement time
package payout

import (
	"context"
	"errors"
	"time"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/settlement"
)

// Sentinel errors for failure cases
var (
	ErrPendingRetrieval = errors.New("pending payouts retrieval failed")
	ErrCommitFailed     = errors.New("payout commit failed")
)

// Default configuration values
const (
	DefaultBatchSize    = 100
	DefaultPollInterval = 5 * time.Second
)

// Store lists settlement records whose batch is still pending
type Store interface {
	// PendingPayouts returns up to limit pending records, oldest first
	PendingPayouts(ctx context.Context, limit int) ([]settlement.Record, error)
}

// Completer commits a record's batch and marks it committed
type Completer interface {
	CompletePayout(ctx context.Context, record settlement.Record) (settlement.Record, error)
}

// CycleResult contains the outcome of one dispatch cycle
type CycleResult struct {
	Committed int
	Failed    int
}

// Clock abstracts time for production and testing
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

// Event represents a dispatcher lifecycle event
type Event any

type DrainStarted struct {
	StartedAt time.Time
}

type DrainCycleCompleted struct {
	Committed int
	Failed    int
	BatchSize int
}

type DrainDone struct {
	TotalCommitted int64
	Duration       time.Duration
}

type DrainError struct {
	Err error
}

type PayoutCommitted struct {
	ClaimID   claim.ID
	Transfers int
}

type PayoutFailed struct {
	ClaimID claim.ID
	Err     error
}

type PollingStarted struct {
	Interval time.Duration
}

type PollingCycleCompleted struct {
	Committed int
	Failed    int
	BatchSize int
}

type PollingShutdown struct {
	Reason error // Why shutdown occurred (ctx.Err())
}

type PollingError struct {
	Err error
}
