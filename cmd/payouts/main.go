package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/time/rate"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/payout"
	"github.com/screwyprof/luvsettle/payout/config"
	"github.com/screwyprof/luvsettle/pkg/logger"
	"github.com/screwyprof/luvsettle/pkg/pgxdb"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/store/pgxstore"
	"github.com/screwyprof/luvsettle/treasury"
)

var (
	version = "dev"
	date    = "unknown"
)

func main() {
	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := pgxdb.NewConnectionWithConfig(ctx, cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		log.ErrorContext(ctx, "Failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	store, storeCloser := pgxstore.New(db)
	defer storeCloser()

	var opts []treasury.Option
	if cfg.TreasuryRateLimit > 0 {
		opts = append(opts, treasury.WithRateLimit(rate.Limit(cfg.TreasuryRateLimit), cfg.TreasuryBurst))
	}
	client := treasury.NewClient(&http.Client{Timeout: cfg.TreasuryTimeout}, cfg.TreasuryURL, opts...)

	// Completing a payout never verifies a proof, so the registry needs no secrets
	registry := claim.NewRegistry(store, pgxstore.NewBlobs(db), claim.Keyring{}, claim.WithLogger(log))
	waterfall := settlement.NewWaterfall(store, registry, client, client,
		settlement.WithTerms(cfg.Terms),
		settlement.WithAccounts(settlement.Accounts{Storage: cfg.StorageAccount, Treasury: cfg.TreasuryAccount}),
		settlement.WithLogger(log),
	)

	dispatcher := payout.NewDispatcher(store, waterfall,
		payout.WithBatchSize(cfg.BatchSize),
		payout.WithPollInterval(cfg.PollInterval),
	)

	log.InfoContext(ctx, "Starting payout dispatcher",
		slog.String("version", version),
		slog.String("date", date),
		slog.Int("batchSize", cfg.BatchSize),
		slog.Duration("pollInterval", cfg.PollInterval),
	)
	events, done := dispatcher.Start(ctx)

	subCloser := payout.LogEvents(ctx, events, log)
	defer subCloser()

	<-done
	log.InfoContext(ctx, "Payout dispatcher stopped gracefully")
}
