package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/packline-io/packline/internal/app"
	"github.com/packline-io/packline/internal/erp"
	jobmetrics "github.com/packline-io/packline/internal/jobs"
	"github.com/packline-io/packline/internal/labeling"
	"github.com/packline-io/packline/internal/observability"
	"github.com/packline-io/packline/internal/platform/cache"
	"github.com/packline-io/packline/internal/platform/db"
	"github.com/packline-io/packline/internal/receiving"
	"github.com/packline-io/packline/internal/shared"
	"github.com/packline-io/packline/internal/verification"
	"github.com/packline-io/packline/jobs"
)

func main() {
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
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	erpClient := erp.NewClient(cfg.ERPBaseURL, erp.Credentials{
		CompanyDB: cfg.ERPCompanyDB,
		UserName:  cfg.ERPUsername,
		Password:  cfg.ERPPassword,
	}, erp.NewSessionCache(redisClient), metrics)

	labelingRepo := labeling.NewRepository(pool)
	labelingService := labeling.NewService(logger, labelingRepo, labeling.NewQRCodeEncoder(cfg.QRSize), metrics)

	verificationRepo := verification.NewRepository(pool)
	verificationEngine := verification.NewEngine(logger, verificationRepo, metrics)

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	receivingRepo := receiving.NewRepository(pool)
	receivingService := receiving.NewService(receivingRepo, erpClient, verificationEngine, labelingService, approvalRecorder, auditLogger, idempotencyStore)

	sweepTask, err := jobs.NewLabelSweepTask(jobs.LabelSweepPayload{})
	if err != nil {
		logger.Error("build sweep task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypePostDocument, Handler: jobs.HandlePostDocumentTask(logger, receivingService, jobMetrics)},
			{Type: jobs.TaskTypeLabelSweep, Handler: jobs.HandleLabelSweepTask(logger, labelingService, jobMetrics)},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "*/15 * * * *", Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(1)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("worker starting")
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker exit", slog.Any("error", err))
		os.Exit(1)
	}
}
