package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"booking-service/config"
	"booking-service/internal/api"
	"booking-service/internal/broker"
	"booking-service/internal/redisclient"
	"booking-service/internal/service"
	"booking-service/internal/store"
	"booking-service/internal/util"
	"booking-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env, "booking-service"); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting booking service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	ctx := context.Background()

	db, err := store.NewStore(cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Fatal("Failed to apply schema", zap.Error(err))
	}
	logger.Info("Database connected")

	mongoClient, mongoDB, err := store.NewMongoClient(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		logger.Fatal("Failed to connect to MongoDB", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := mongoClient.Disconnect(ctx); err != nil {
			logger.Error("Error disconnecting MongoDB", zap.Error(err))
		}
	}()

	bookingStore, err := store.NewBookingStore(ctx, mongoDB)
	if err != nil {
		logger.Fatal("Failed to prepare bookings collection", zap.Error(err))
	}
	logger.Info("MongoDB connected", zap.String("database", cfg.Mongo.Database))

	probes := map[string]api.Probe{
		"postgres": db.Ping,
		"mongodb":  func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) },
	}

	// Without Redis, bookings fall back to conditional updates alone
	var locker service.Locker
	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Warn("Redis unavailable, booking locks disabled", zap.Error(err))
	} else {
		defer redisClient.Close()
		locker = redisClient
		probes["redis"] = redisClient.Ping
		logger.Info("Redis connected")
	}

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking)
	defer producer.Close()
	logger.Info("Kafka producer initialized", zap.String("topic", cfg.Kafka.TopicBooking))

	eventPublisher := broker.NewEventPublisher(producer)

	biz := cfg.Business
	opts := service.BookingOptions{
		Pricing: service.PricingPolicy{
			TaxPercent: int64(biz.TaxRatePercent),
			FeePercent: int64(biz.PlatformFeePercent),
			Currency:   biz.DefaultCurrency,
		},
		StrictTransitions: biz.StrictStatusTransitions,
		LockTTL:           time.Duration(biz.LockTTLSeconds) * time.Second,
		IdempotencyTTL:    time.Duration(biz.IdempotencyTTLHours) * time.Hour,
		DefaultPageSize:   biz.DefaultPageSize,
		MaxPageSize:       biz.MaxPageSize,
	}
	if !opts.StrictTransitions {
		logger.Warn("Strict status transitions disabled")
	}

	bookingService := service.NewBookingService(bookingStore, db, locker, eventPublisher, opts)
	catalogService := service.NewCatalogService(db)
	identityService := service.NewIdentityService(db)
	refundService := service.NewRefundService(bookingStore, db, service.NewMockRefundProvider(0.9), eventPublisher)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	refundConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicBooking, cfg.Kafka.ConsumerGroup)
	refundWorker := worker.NewRefundWorker(refundConsumer, refundService)
	go func() {
		if err := refundWorker.Start(workerCtx); err != nil && err != context.Canceled {
			logger.Error("Refund worker error", zap.Error(err))
		}
	}()

	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(bookingService, catalogService, identityService, probes, cfg.Server.IsProduction())
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	workerCancel()
	if err := refundWorker.Stop(); err != nil {
		logger.Error("Error stopping refund worker", zap.Error(err))
	}

	logger.Info("Server exited")
}
