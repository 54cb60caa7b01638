package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"wellness-chat/internal/auth"
	"wellness-chat/internal/config"
	"wellness-chat/internal/db"
	grpchealth "wellness-chat/internal/grpc"
	"wellness-chat/internal/handlers"
	"wellness-chat/internal/kafka"
	"wellness-chat/internal/logger"
	"wellness-chat/internal/middleware"
	"wellness-chat/internal/observability"
	"wellness-chat/internal/rabbitmq"
	"wellness-chat/internal/repositories"
	"wellness-chat/internal/storage"
	"wellness-chat/internal/telemetry"
	"wellness-chat/internal/ws"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logr, err := logger.New(cfg.App.Env, cfg.App.Debug)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.App.Name, cfg.Telemetry.OTLPEndpoint)
	if err != nil {
		logr.Fatal("init tracer", zap.Error(err))
	}

	database, err := db.Connect(ctx, cfg.DB.DSN, logr)
	if err != nil {
		logr.Fatal("failed to connect to db", zap.Error(err))
	}
	defer database.Close()

	userRepo := repositories.NewUserRepo(database)
	groupRepo := repositories.NewGroupRepo(database)
	messageRepo := repositories.NewGroupMessageRepo(database)

	publisher := rabbitmq.NewPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, logr)
	defer publisher.Close()
	observability.SetPublisher(publisher)
	logr.Info("event publisher ready",
		zap.String("mode", rabbitmq.PublisherMode(publisher)),
		zap.String("noop_reason", rabbitmq.PublisherNoopReason(publisher)))
	audit := telemetry.NewAuditEmitter(publisher, cfg.AMQP.AuditRoutingKey, cfg.App.Name, cfg.App.Env, logr)

	producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logr)
	defer producer.Close()

	hub := ws.NewHub(logr)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logr.Fatal("redis ping", zap.Error(err))
		}
		fanout := ws.NewRedisFanout(rdb, cfg.Redis.Channel, logr)
		hub.SetFanout(fanout)
		go func() {
			if err := fanout.Run(ctx, hub); err != nil && !errors.Is(err, context.Canceled) {
				logr.Error("redis fanout stopped", zap.Error(err))
			}
		}()
	}

	notifier := ws.NewNotifier(hub, groupRepo, userRepo, producer, logr)
	go ws.RunTypingJanitor(ctx, groupRepo, notifier, cfg.Chat.TypingTTL, cfg.Chat.TypingSweep, logr)

	var verifier *auth.IdentityVerifier
	if cfg.Auth.ProviderPublicKey != "" {
		verifier, err = auth.NewRSAVerifierFromFile(cfg.Auth.ProviderPublicKey, cfg.Auth.ProviderIssuer)
		if err != nil {
			logr.Fatal("load identity provider key", zap.Error(err))
		}
	} else {
		verifier = auth.NewHMACVerifier(cfg.Auth.ProviderSecret, cfg.Auth.ProviderIssuer)
	}
	issuer := auth.NewTokenIssuer(cfg.Auth.SessionSecret, cfg.Auth.SessionTTL, cfg.Auth.Issuer)

	var store storage.ObjectStore
	var localDir string
	switch cfg.Storage.Driver {
	case "s3":
		store, err = storage.NewS3Store(ctx, cfg.Storage.Region, cfg.Storage.Bucket, cfg.Storage.Endpoint, cfg.Storage.PublicBaseURL, logr)
	default:
		var local *storage.LocalStore
		local, err = storage.NewLocalStore(cfg.Storage.LocalDir, cfg.Storage.PublicBaseURL, logr)
		if local != nil {
			store, localDir = local, local.Dir()
		}
	}
	if err != nil {
		logr.Fatal("init object storage", zap.String("driver", cfg.Storage.Driver), zap.Error(err))
	}

	sessionHandler := handlers.NewSessionHandler(verifier, issuer, userRepo, notifier, audit, logr)
	userHandler := handlers.NewUserHandler(userRepo)
	groupHandler := handlers.NewGroupHandler(groupRepo, notifier, audit, logr)
	messageHandler := handlers.NewMessageHandler(groupRepo, messageRepo, userRepo, notifier, audit, logr)
	attachmentHandler := handlers.NewAttachmentHandler(groupRepo, store, cfg.Storage.MaxUploadMB<<20, audit, logr)
	subscriptions := ws.NewSubscriptionHandler(hub, groupRepo, messageRepo, userRepo, logr)

	limiter := middleware.NewUserRateLimiter(cfg.Chat.SendPerMinute, cfg.Chat.SendBurst, logr)
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				limiter.Cleanup(10 * time.Minute)
			}
		}
	}()

	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// middlewares
	router.Use(gin.Recovery())
	router.Use(observability.RequestID())
	router.Use(otelgin.Middleware(cfg.App.Name))
	router.Use(middleware.RequestLogger(logr))
	router.Use(observability.HTTPMetricsMiddleware())

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if localDir != "" {
		router.Static("/files", localDir)
	}

	router.POST("/auth/signin", sessionHandler.SignIn)

	authMiddleware := middleware.AuthMiddleware(issuer)
	api := router.Group("/", authMiddleware)

	api.POST("/auth/signout", sessionHandler.SignOut)
	api.GET("/auth/me", sessionHandler.Me)
	api.GET("/users", userHandler.ListUsers)

	api.GET("/groups", groupHandler.ListGroups)
	api.POST("/groups", groupHandler.CreateGroup)
	api.GET("/groups/:group_id", groupHandler.GetGroup)
	api.POST("/groups/:group_id/join", groupHandler.JoinGroup)
	api.POST("/groups/:group_id/leave", groupHandler.LeaveGroup)
	api.POST("/groups/:group_id/typing", groupHandler.StartTyping)
	api.DELETE("/groups/:group_id/typing", groupHandler.StopTyping)

	api.GET("/groups/:group_id/messages", messageHandler.ListMessages)
	api.POST("/groups/:group_id/messages", limiter.Handler(), messageHandler.PostMessage)
	api.POST("/groups/:group_id/messages/:message_id/read", messageHandler.MarkRead)
	api.POST("/groups/:group_id/attachments", limiter.Handler(), attachmentHandler.Upload)

	api.GET("/ws/groups", subscriptions.Groups)
	api.GET("/ws/groups/:group_id", subscriptions.Group)
	api.GET("/ws/groups/:group_id/messages", subscriptions.Messages)
	api.GET("/ws/users", subscriptions.Users)

	handlers.RegisterDebugRoutes(api, audit, hub, cfg.App.Debug)

	srv := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	health := grpchealth.NewHealthServer(database, 10*time.Second, logr)
	go health.Watch(ctx)
	lis, err := net.Listen("tcp", ":"+cfg.App.GRPCPort)
	if err != nil {
		logr.Fatal("grpc listen", zap.String("port", cfg.App.GRPCPort), zap.Error(err))
	}
	go func() {
		if err := health.Serve(lis); err != nil {
			logr.Error("grpc health server stopped", zap.Error(err))
		}
	}()

	errs := make(chan error, 1)
	go func() {
		logr.Info("starting chat service", zap.String("addr", srv.Addr), zap.String("grpc_port", cfg.App.GRPCPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	select {
	case err := <-errs:
		logr.Error("server error", zap.Error(err))
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("http shutdown", zap.Error(err))
	}
	health.Stop()
	if err := shutdownTracer(shutdownCtx); err != nil {
		logr.Warn("tracer shutdown", zap.Error(err))
	}
}
