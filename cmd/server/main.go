// Package main runs the interview integrity HTTP server with WebSocket
// presence and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sentra-proctor/backend/config"
	"github.com/sentra-proctor/backend/internal/auth"
	"github.com/sentra-proctor/backend/internal/export"
	"github.com/sentra-proctor/backend/internal/integrity"
	"github.com/sentra-proctor/backend/internal/ledger"
	"github.com/sentra-proctor/backend/internal/middleware"
	"github.com/sentra-proctor/backend/internal/policy"
	"github.com/sentra-proctor/backend/internal/presence"
	"github.com/sentra-proctor/backend/internal/worker"
	"github.com/sentra-proctor/backend/pkg/database"
	"github.com/sentra-proctor/backend/pkg/queue"
	"github.com/sentra-proctor/backend/pkg/redis"
	"github.com/sentra-proctor/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			EvidenceBucket:       cfg.AWS.EvidenceBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret)
	redisPubSub := presence.NewRedisPubSub(rdb.Client, logger)
	manager := presence.NewManager(logger, redisPubSub, redisPubSub)

	// Presence audit log (join/leave rows)
	presenceRepo := presence.NewRepository(pool)
	manager.SetSessionHooks(
		func(sessionID, userID uuid.UUID, role string) {
			_ = presenceRepo.LogJoin(context.Background(), sessionID, userID, role)
		},
		func(sessionID, userID uuid.UUID, role string) {
			_ = presenceRepo.LogLeave(context.Background(), sessionID, userID)
		},
	)
	presenceHandler := presence.NewHandler(manager)

	// Evidence hash-chain ledger
	ledgerRepo := ledger.NewRepository(pool)
	chainService := ledger.NewService(ledgerRepo, logger)
	ledgerHandler := ledger.NewHandler(chainService)

	// Integrity events
	eventRepo := integrity.NewRepository(pool)
	recorder := integrity.NewRecorder(eventRepo, chainService, manager, logger)
	integrityHandler := integrity.NewHandler(recorder, eventRepo)

	// Policies
	policyRepo := policy.NewRepository(pool)
	policyService := policy.NewService(policyRepo, manager, logger)
	policyHandler := policy.NewHandler(policyService)

	// Exports
	exportRepo := export.NewRepository(pool)
	guardrail := export.NewGuardrail(chainService, policyService)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	exportService := export.NewService(exportRepo, guardrail, chainService, jobQueue, manager, logger)
	// Leave the signer nil when S3 is disabled so the handler answers 503
	// instead of dereferencing a nil client.
	var presigner export.Presigner
	if s3Client != nil {
		presigner = s3Client
	}
	exportHandler := export.NewHandler(exportService, exportRepo, presigner)
	exportProcessor := worker.NewExportProcessor(exportRepo, eventRepo, ledgerRepo, chainService, policyService, presenceRepo, s3Client, jobQueue, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Room presence
		api.GET("/sessions/:id/room", presenceHandler.GetRoomState)

		// Integrity events
		api.POST("/sessions/:id/events", integrityHandler.Record)
		api.GET("/sessions/:id/events", middleware.RequireRole(auth.RoleMonitor, auth.RoleAdmin), integrityHandler.List)

		// Evidence chain
		api.GET("/sessions/:id/chain/verify", middleware.RequireRole(auth.RoleMonitor, auth.RoleAdmin), ledgerHandler.Verify)

		// Policies (monitor or admin)
		policies := api.Group("/policies", middleware.RequireRole(auth.RoleMonitor, auth.RoleAdmin))
		{
			policies.GET("/:scope/:scopeId", policyHandler.Get)
			policies.PUT("/:scope/:scopeId", policyHandler.Mutate)
			policies.POST("/:scope/:scopeId/rollback", policyHandler.Rollback)
			policies.GET("/:scope/:scopeId/history", policyHandler.History)
		}

		// Evidence exports (monitor or admin)
		api.POST("/sessions/:id/export", middleware.RequireRole(auth.RoleMonitor, auth.RoleAdmin), exportHandler.Request)
		api.GET("/sessions/:id/exports", middleware.RequireRole(auth.RoleMonitor, auth.RoleAdmin), exportHandler.List)
		api.GET("/exports/:id/download-urls", middleware.RequireRole(auth.RoleMonitor, auth.RoleAdmin), exportHandler.DownloadURLs)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", presence.ServeWs(manager, logger, jwtService, recorder))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process bundle worker; cmd/worker runs the same loop standalone.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil {
		go exportProcessor.Run(workerCtx)
		logger.Info("export worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
