// Package main runs the background job worker (evidence bundle assembly and
// upload to S3).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sentra-proctor/backend/config"
	"github.com/sentra-proctor/backend/internal/export"
	"github.com/sentra-proctor/backend/internal/integrity"
	"github.com/sentra-proctor/backend/internal/ledger"
	"github.com/sentra-proctor/backend/internal/policy"
	"github.com/sentra-proctor/backend/internal/presence"
	"github.com/sentra-proctor/backend/internal/worker"
	"github.com/sentra-proctor/backend/pkg/database"
	"github.com/sentra-proctor/backend/pkg/queue"
	"github.com/sentra-proctor/backend/pkg/redis"
	"github.com/sentra-proctor/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		EvidenceBucket:       cfg.AWS.EvidenceBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	exportRepo := export.NewRepository(pool)
	eventRepo := integrity.NewRepository(pool)
	ledgerRepo := ledger.NewRepository(pool)
	chainService := ledger.NewService(ledgerRepo, logger)
	policyService := policy.NewService(policy.NewRepository(pool), nil, logger)
	presenceRepo := presence.NewRepository(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewExportProcessor(exportRepo, eventRepo, ledgerRepo, chainService, policyService, presenceRepo, s3Client, jobQueue, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
