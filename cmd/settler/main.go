package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"github.com/screwyprof/luvsettle/claim"
	"github.com/screwyprof/luvsettle/ledger"
	"github.com/screwyprof/luvsettle/payout"
	"github.com/screwyprof/luvsettle/pkg/logger"
	"github.com/screwyprof/luvsettle/pkg/pgxdb"
	"github.com/screwyprof/luvsettle/settlement"
	"github.com/screwyprof/luvsettle/store/blobcache"
	"github.com/screwyprof/luvsettle/store/memstore"
	"github.com/screwyprof/luvsettle/store/pgxstore"
	"github.com/screwyprof/luvsettle/treasury"
	"github.com/screwyprof/luvsettle/web/config"
	"github.com/screwyprof/luvsettle/web/handler"
)

var (
	version = "dev"
	date    = "unknown"
)

// store is everything the core persists
type store interface {
	claim.Store
	ledger.Log
	settlement.Store
	payout.Store
}

func main() {
	cfg := config.New()

	log := logger.NewFromConfig(logger.Config{
		LogLevel:         cfg.LogLevel,
		LogHumanFriendly: cfg.LogHumanFriendly,
	})
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.InfoContext(ctx, "Settler starting",
		slog.String("version", version),
		slog.String("date", date),
		slog.String("store", cfg.Store),
		slog.Int64("persistenceCost", cfg.Terms.PersistenceCost),
		slog.Int64("protocolFeePercent", cfg.Terms.ProtocolFeePercent),
		slog.Int64("promotionThreshold", cfg.Terms.PromotionThreshold),
	)

	keyring, err := claim.ParseKeyring(cfg.AttestationSecrets)
	if err != nil {
		log.ErrorContext(ctx, "Invalid attestation secrets", slog.Any("error", err))
		os.Exit(1)
	}

	st, blobs, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		log.ErrorContext(ctx, "Failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer closeStore()

	client := newTreasuryClient(cfg)

	registry := claim.NewRegistry(st,
		blobcache.New(blobs, cfg.BlobCacheTTL, blobcache.DefaultCleanupInterval),
		keyring,
		claim.WithLogger(log),
	)
	gestures := ledger.New(st, client, registry,
		ledger.WithPromotionThreshold(cfg.Terms.PromotionThreshold),
		ledger.WithLogger(log),
	)
	waterfall := settlement.NewWaterfall(st, registry, client, client,
		settlement.WithTerms(cfg.Terms),
		settlement.WithAccounts(settlement.Accounts{Storage: cfg.StorageAccount, Treasury: cfg.TreasuryAccount}),
		settlement.WithLogger(log),
	)

	// Without a database there is no separate dispatcher to finish deferred payouts
	var dispatcherDone <-chan struct{}
	if cfg.Store == config.StoreMemory {
		events, done := payout.NewDispatcher(st, waterfall).Start(ctx)
		defer payout.LogEvents(ctx, events, log)()
		dispatcherDone = done
	}

	mux := http.NewServeMux()
	handler.NewClaims(registry).AddRoutes(mux)
	handler.NewGestures(gestures).AddRoutes(mux)
	handler.NewSettlements(waterfall).AddRoutes(mux)

	addr := net.JoinHostPort(cfg.HTTPHost, cfg.HTTPPort)
	server := &http.Server{
		Addr:              addr,
		Handler:           logger.NewMiddleware(log)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.InfoContext(ctx, "Server started", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.ErrorContext(ctx, "Server failed to start", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	log.InfoContext(ctx, "Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.ErrorContext(ctx, "Server forced to shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	if dispatcherDone != nil {
		<-dispatcherDone
	}

	log.InfoContext(ctx, "Server exited gracefully")
}

func openStore(ctx context.Context, cfg config.Config) (store, claim.Blobs, func(), error) {
	switch cfg.Store {
	case config.StoreMemory:
		return memstore.New(), memstore.NewBlobs(), func() {}, nil
	case config.StorePostgres:
		db, err := pgxdb.NewConnectionWithConfig(ctx, cfg.DatabaseURL, cfg.Pool)
		if err != nil {
			return nil, nil, nil, err
		}
		st, closer := pgxstore.New(db)
		return st, pgxstore.NewBlobs(db), closer, nil
	default:
		return nil, nil, nil, errors.New("unknown store " + cfg.Store)
	}
}

func newTreasuryClient(cfg config.Config) *treasury.Client {
	var opts []treasury.Option
	if cfg.TreasuryRateLimit > 0 {
		opts = append(opts, treasury.WithRateLimit(rate.Limit(cfg.TreasuryRateLimit), cfg.TreasuryBurst))
	}
	return treasury.NewClient(&http.Client{Timeout: cfg.TreasuryTimeout}, cfg.TreasuryURL, opts...)
}
