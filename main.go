package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	aws_pkg "github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/aws"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/config"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/controllers"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/database"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/kafka"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/repository"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/routes"
	"github.com/AHasenkampfHeista/ShopifyPaymentFix-Plugin/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Config load failed", zap.Error(err))
	}

	// Database
	if err := database.Connect(logger); err != nil {
		logger.Fatal("DB connection failed", zap.Error(err))
	}

	// Optional per-order reconcile lock
	var locker services.ReconcileLocker
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(cfg.RedisURL)
		if err != nil {
			logger.Fatal("Redis connection failed", zap.Error(err))
		}
		locker = services.NewRedisOrderLocker(redisClient)
	}

	// Collaborator clients
	shopifyClient := services.NewShopifyClient(cfg.ShopName, cfg.ShopifyAPIVersion, cfg.ShopifyAccessToken, logger)
	omsClient := services.NewOMSClient(cfg.OMSBaseURL, cfg.OMSAPIToken, logger)

	attemptRepo := repository.NewGormAttemptRepo(database.DB)

	// Outcome broadcasting
	eventProducer := kafka.NewReconcileEventProducer(strings.Split(cfg.KafkaBrokers, ","), cfg.KafkaTopic, logger)
	defer eventProducer.Close()

	var snsClient *aws_pkg.SNSClient
	var sqsConsumer *aws_pkg.SQSConsumer
	if cfg.ReconcileQueueURL != "" || cfg.ReconcileTopicARN != "" {
		awsCfg, err := aws_pkg.LoadAWSConfig(context.Background())
		if err != nil {
			logger.Fatal("AWS config load failed", zap.Error(err))
		}
		if cfg.ReconcileTopicARN != "" {
			snsClient = aws_pkg.NewSNSClient(awsCfg)
		}
		if cfg.ReconcileQueueURL != "" {
			sqsConsumer = aws_pkg.NewSQSConsumer(awsCfg, cfg.ReconcileQueueURL, logger)
		}
	}

	var notifier services.OutcomeNotifier
	if snsClient != nil {
		notifier = snsClient
	}

	reconcileService := services.NewReconcileService(
		shopifyClient,
		omsClient,
		attemptRepo,
		eventProducer,
		notifier,
		cfg.ReconcileTopicARN,
		locker,
		cfg.PaypalMopID,
		cfg.EnableDebugLog,
		logger,
	)

	rc := controllers.NewReconcileController(reconcileService, attemptRepo, logger)
	sc := controllers.NewShopifyOrderController(reconcileService, logger)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())

	// Request logging
	r.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http_request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
		)
	})

	// Request timeout
	r.Use(func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	})

	routes.RegisterRoutes(r, cfg.APIKey, rc, sc)

	// Start SQS trigger consumer
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	defer consumerCancel()
	if sqsConsumer != nil {
		triggerConsumer := services.NewTriggerConsumer(sqsConsumer, reconcileService, logger)
		go triggerConsumer.Start(consumerCtx)
	}

	// HTTP server
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r}
	go func() {
		logger.Info("Payment reconciler started", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Initiating graceful shutdown...")
	consumerCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := database.Close(); err != nil {
		logger.Error("Database close error", zap.Error(err))
	}

	logger.Info("Payment reconciler stopped gracefully")
}
