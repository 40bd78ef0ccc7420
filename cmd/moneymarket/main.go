package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/app"
	"github.com/mmbank/moneymarket/internal/eod"
	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/interest"
	"github.com/mmbank/moneymarket/internal/ledger"
	"github.com/mmbank/moneymarket/internal/paramstore"
	"github.com/mmbank/moneymarket/internal/platform/cache"
	"github.com/mmbank/moneymarket/internal/platform/db"
	"github.com/mmbank/moneymarket/internal/sequence"
	"github.com/mmbank/moneymarket/internal/shared"
	"github.com/mmbank/moneymarket/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, rate cache disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)

	seq := sequence.NewGenerator(sequence.NewRepository(pool))

	paramsService := paramstore.NewService(paramstore.NewRepository(pool), auditLogger, logger, cfg.EODAdminUser)

	accountsService := accounts.NewService(accounts.NewRepository(pool), seq, auditLogger, logger)

	ledgerRepo := ledger.NewRepository(pool)
	legWriter := ledger.NewFxLegWriter(ledgerRepo, accountsService)

	rateCache := cache.NewTTLCache(redisClient, "fxrate:", cfg.RateTTL)
	fxRepo := fx.NewRepository(pool)
	rateService := fx.NewRateService(fxRepo, rateCache, cfg.BaseCurrency, logger)
	fxService := fx.NewService(fxRepo, rateService, legWriter, auditLogger, logger, cfg.BaseCurrency)
	revaluer := fx.NewRevaluer(fxRepo, rateService, legWriter, logger)

	ledgerService := ledger.NewService(ledgerRepo, accountsService, paramsService, seq,
		fxService, auditLogger, logger, cfg.BaseCurrency)
	batch := ledger.NewBatch(ledgerService, accountsService, logger)

	interestService := interest.NewService(interest.NewRepository(pool), accountsService,
		ledgerService, paramsService, ledgerService, seq, auditLogger, logger, float64(cfg.AccrualBasisDays))

	eodRepo := eod.NewRepository(pool)
	reporter := eod.NewReporter(eodRepo, ledgerService, logger)
	orchestrator := eod.NewOrchestrator(eodRepo, ledgerService, batch,
		interestService, revaluer, paramsService, reporter, logger)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		AccountsHandler: accounts.NewHandler(logger, accountsService),
		LedgerHandler:   ledger.NewHandler(logger, ledgerService, shared.NewIdempotencyStore(pool)),
		FxHandler:       fx.NewHandler(logger, rateService, fxService),
		InterestHandler: interest.NewHandler(logger, interestService),
		EODHandler:      eod.NewHandler(logger, orchestrator),
		ParamsHandler:   paramstore.NewHandler(logger, paramsService),
		JobHandler:      jobs.NewHandler(inspector, logger),
	})

	srv := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", slog.String("addr", cfg.AppAddr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
