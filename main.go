package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"talkflow-service/internal/auth"
	"talkflow-service/internal/config"
	"talkflow-service/internal/connections"
	"talkflow-service/internal/db"
	"talkflow-service/internal/handlers"
	"talkflow-service/internal/middleware"
	"talkflow-service/internal/observability"
	"talkflow-service/internal/rabbitmq"
	"talkflow-service/internal/repositories"
	"talkflow-service/internal/telemetry"
	"talkflow-service/internal/ws"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	if cfg.JWTSecret == "" {
		logger.Fatal("missing JWT_SECRET")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "talkflow-service", cfg.OTLPAddr)
	if err != nil {
		logger.Fatal("failed to set up tracing", zap.Error(err))
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	database, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	publisher := rabbitmq.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
	defer publisher.Close()
	observability.SetPublisher(publisher)

	audit := telemetry.NewAuditEmitter(publisher, "audit.talkflow", "talkflow-service", cfg.Environment, logger)

	userRepo := repositories.NewUserRepo(database)
	connectionRepo := repositories.NewConnectionRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewMessageRepo(database)

	connService := connections.NewService(connectionRepo, userRepo, logger)
	validator := auth.NewJWTValidator(cfg.JWTSecret)

	registry := ws.NewRegistry(logger)
	watchdog := ws.NewCallWatchdog(registry, logger)
	router := ws.NewRouter(registry, watchdog, userRepo, groupRepo, messageRepo, connService, logger)
	wsHandler := ws.NewHandler(registry, router, watchdog, validator, userRepo, logger)

	connectionHandler := handlers.NewConnectionHandler(connService, audit)
	groupHandler := handlers.NewGroupHandler(groupRepo, userRepo, connService, audit)
	chatHandler := handlers.NewChatHandler(messageRepo, groupRepo, userRepo, connectionRepo)

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(otelgin.Middleware("talkflow-service"))
	engine.Use(observability.HTTPMetricsMiddleware())

	authMiddleware := middleware.AuthMiddleware(validator, userRepo)

	engine.POST("/connections/request", authMiddleware, connectionHandler.Request)
	engine.POST("/connections/block", authMiddleware, connectionHandler.Block)
	engine.PATCH("/connections/:connection_id/status", authMiddleware, connectionHandler.UpdateStatus)
	engine.GET("/connections", authMiddleware, connectionHandler.List)

	engine.POST("/groups", authMiddleware, groupHandler.CreateGroup)
	engine.GET("/groups", authMiddleware, groupHandler.ListGroups)
	engine.POST("/groups/:group_id/members", authMiddleware, groupHandler.AddMember)
	engine.GET("/groups/:group_id/members", authMiddleware, groupHandler.ListMembers)
	engine.DELETE("/groups/:group_id", authMiddleware, groupHandler.DeleteGroup)

	engine.GET("/chats/previews", authMiddleware, chatHandler.GetChatPreviews)
	engine.GET("/chats/:chat_id/messages", authMiddleware, chatHandler.GetChatMessages)

	engine.GET("/ws", wsHandler.Handle)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	server := &http.Server{Addr: ":" + cfg.Port, Handler: engine}

	go func() {
		logger.Info("listening", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}
