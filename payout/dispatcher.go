package payout

import (
	"context"
	"fmt"
	"time"

	"github.com/screwyprof/luvsettle/pkg/clock"
)

// Option configures the Dispatcher
type Option func(*Dispatcher)

// WithClock injects a custom Clock (e.g., for testing)
func WithClock(c Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithPollInterval sets the polling interval
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.pollInterval = interval }
}

// WithBatchSize sets the number of records handled per cycle
func WithBatchSize(n int) Option {
	return func(d *Dispatcher) { d.batchSize = n }
}

// Dispatcher drains pending payouts, then polls for new ones
type Dispatcher struct {
	store        Store
	completer    Completer
	clock        Clock
	pollInterval time.Duration
	batchSize    int
	events       chan Event
}

// NewDispatcher constructs a Dispatcher with required dependencies and options.
// By default, it uses a real clock, a 5s poll interval and a batch size of 100.
func NewDispatcher(store Store, completer Completer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:        store,
		completer:    completer,
		clock:        clock.SystemClock{},
		pollInterval: DefaultPollInterval,
		batchSize:    DefaultBatchSize,
		events:       make(chan Event, 10),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the dispatcher and returns the events channel and done channel.
//
// Shutdown pattern:
//  1. Cancel context to request shutdown: cancel()
//  2. Dispatcher stops producing events and closes events channel
//  3. Wait for complete shutdown: <-done
func (d *Dispatcher) Start(ctx context.Context) (<-chan Event, <-chan struct{}) {
	done := make(chan struct{})
	go func() {
		defer close(d.events)
		defer close(done)
		d.run(ctx)
	}()
	return d.events, done
}

func (d *Dispatcher) run(ctx context.Context) {
	start := d.clock.Now()
	d.events <- DrainStarted{StartedAt: start}

	var total int64
	for {
		result, err := d.cycle(ctx)
		if err != nil {
			d.events <- DrainError{Err: err}
			return
		}
		d.events <- DrainCycleCompleted{
			Committed: result.Committed,
			Failed:    result.Failed,
			BatchSize: d.batchSize,
		}
		total += int64(result.Committed)

		// Records that keep failing are left to the polling phase
		if result.Committed == 0 {
			break
		}
	}

	d.events <- DrainDone{
		TotalCommitted: total,
		Duration:       d.clock.Now().Sub(start),
	}

	d.events <- PollingStarted{Interval: d.pollInterval}
	for {
		select {
		case <-ctx.Done():
			d.events <- PollingShutdown{Reason: ctx.Err()}
			return
		case <-d.clock.After(d.pollInterval):
			result, err := d.cycle(ctx)
			if err != nil {
				d.events <- PollingError{Err: err}
				continue
			}
			d.events <- PollingCycleCompleted{
				Committed: result.Committed,
				Failed:    result.Failed,
				BatchSize: d.batchSize,
			}
		}
	}
}

// cycle completes one batch of pending records. A failed record does not stop
// the cycle; the next cycle will pick it up again.
func (d *Dispatcher) cycle(ctx context.Context) (CycleResult, error) {
	select {
	case <-ctx.Done():
		return CycleResult{}, ctx.Err()
	default:
	}

	pending, err := d.store.PendingPayouts(ctx, d.batchSize)
	if err != nil {
		return CycleResult{}, fmt.Errorf("%w: %w", ErrPendingRetrieval, err)
	}

	var result CycleResult
	for _, record := range pending {
		committed, err := d.completer.CompletePayout(ctx, record)
		if err != nil {
			result.Failed++
			d.events <- PayoutFailed{ClaimID: record.ClaimID, Err: fmt.Errorf("%w: %w", ErrCommitFailed, err)}
			continue
		}
		result.Committed++
		d.events <- PayoutCommitted{ClaimID: committed.ClaimID, Transfers: len(committed.Transfers)}
	}

	return result, nil
}
