package payout

import (
	"context"
	"log/slog"
)

// LogEvents subscribes log to every dispatcher event and returns the closer
func LogEvents(ctx context.Context, events <-chan Event, log *slog.Logger) func() {
	return NewSubscriber(events,
		OnDrainStarted(func(e DrainStarted) {
			log.InfoContext(ctx, "Payout drain started", slog.Time("startedAt", e.StartedAt))
		}),
		OnDrainCycleCompleted(func(e DrainCycleCompleted) {
			log.InfoContext(ctx, "Payout drain batch completed",
				slog.Int("committed", e.Committed),
				slog.Int("failed", e.Failed),
				slog.Int("batchSize", e.BatchSize),
			)
		}),
		OnDrainDone(func(e DrainDone) {
			log.InfoContext(ctx, "Payout drain completed",
				slog.Int64("totalCommitted", e.TotalCommitted),
				slog.Duration("duration", e.Duration),
			)
		}),
		OnDrainError(func(e DrainError) {
			log.ErrorContext(ctx, "Payout drain failed", slog.Any("error", e.Err))
		}),
		OnPayoutCommitted(func(e PayoutCommitted) {
			log.InfoContext(ctx, "Payout committed",
				slog.String("claimID", e.ClaimID.String()),
				slog.Int("transfers", e.Transfers),
			)
		}),
		OnPayoutFailed(func(e PayoutFailed) {
			log.WarnContext(ctx, "Payout still pending",
				slog.String("claimID", e.ClaimID.String()),
				slog.Any("error", e.Err),
			)
		}),
		OnPollingStarted(func(e PollingStarted) {
			log.InfoContext(ctx, "Payout polling started", slog.Duration("interval", e.Interval))
		}),
		OnPollingCycleCompleted(func(e PollingCycleCompleted) {
			if e.Committed == 0 && e.Failed == 0 {
				log.DebugContext(ctx, "Payout polling cycle completed, nothing pending")
				return
			}
			log.InfoContext(ctx, "Payout polling cycle completed",
				slog.Int("committed", e.Committed),
				slog.Int("failed", e.Failed),
			)
		}),
		OnPollingShutdown(func(e PollingShutdown) {
			log.InfoContext(ctx, "Payout polling stopped", slog.String("reason", e.Reason.Error()))
		}),
		OnPollingError(func(e PollingError) {
			log.ErrorContext(ctx, "Payout polling failed", slog.Any("error", e.Err))
		}),
	)
}
