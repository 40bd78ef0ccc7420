package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/mmbank/moneymarket/internal/accounts"
	"github.com/mmbank/moneymarket/internal/app"
	"github.com/mmbank/moneymarket/internal/eod"
	"github.com/mmbank/moneymarket/internal/fx"
	"github.com/mmbank/moneymarket/internal/interest"
	jobmetrics "github.com/mmbank/moneymarket/internal/jobs"
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
		slog.Default().Info("test mode detected, skipping worker startup")
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

	metrics := jobmetrics.NewMetrics(nil)
	eodJob := jobs.NewEODRunJob(orchestrator, redisClient, metrics, logger)
	bodJob := jobs.NewBODRunJob(orchestrator, metrics, logger)

	eodTask, err := jobs.NewEODRunTask(cfg.EODAdminUser)
	if err != nil {
		logger.Error("build eod task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskEODRun, Handler: eodJob.Handle},
			{Type: jobs.TaskBODRun, Handler: bodJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.EODCronSpec, Task: eodTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
