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
	"golang.org/x/sync/errgroup"

	"github.com/packline-io/packline/internal/app"
	"github.com/packline-io/packline/internal/dispatch"
	"github.com/packline-io/packline/internal/erp"
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
		logger.Error("connect postgres", slog.Any("error", err))
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

	erpClient := erp.NewClient(cfg.ERPBaseURL, erp.Credentials{
		CompanyDB: cfg.ERPCompanyDB,
		UserName:  cfg.ERPUsername,
		Password:  cfg.ERPPassword,
	}, erp.NewSessionCache(redisClient), metrics)

	auditLogger := shared.NewAuditLogger(pool)
	approvalRecorder := shared.NewApprovalRecorder(pool, logger)
	idempotencyStore := shared.NewIdempotencyStore(pool)

	labelingRepo := labeling.NewRepository(pool)
	labelingService := labeling.NewService(logger, labelingRepo, labeling.NewQRCodeEncoder(cfg.QRSize), metrics)
	labelingHandler := labeling.NewHandler(logger, labelingService)

	verificationRepo := verification.NewRepository(pool)
	verificationEngine := verification.NewEngine(logger, verificationRepo, metrics)
	verificationHandler := verification.NewHandler(logger, verificationEngine)

	jobsClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()

	receivingRepo := receiving.NewRepository(pool)
	receivingService := receiving.NewService(receivingRepo, erpClient, verificationEngine, labelingService, approvalRecorder, auditLogger, idempotencyStore)
	receivingHandler := receiving.NewHandler(logger, receivingService, postEnqueuer{client: jobsClient})

	dispatchRepo := dispatch.NewRepository(pool)
	dispatchService := dispatch.NewService(dispatchRepo, erpClient, auditLogger)
	dispatchHandler := dispatch.NewHandler(logger, dispatchService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:              logger,
		Config:              cfg,
		Pool:                pool,
		Metrics:             metrics,
		ReceivingHandler:    receivingHandler,
		LabelingHandler:     labelingHandler,
		VerificationHandler: verificationHandler,
		DispatchHandler:     dispatchHandler,
		JobsHandler:         jobsHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}

// postEnqueuer adapts the jobs client to the receiving handler's port.
type postEnqueuer struct {
	client *jobs.Client
}

func (e postEnqueuer) EnqueuePost(ctx context.Context, documentID, actorID int64) error {
	_, err := e.client.EnqueuePostDocument(ctx, jobs.PostDocumentPayload{DocumentID: documentID, ActorID: actorID})
	return err
}
