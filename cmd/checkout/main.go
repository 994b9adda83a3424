package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"checkout/internal/app/checkout"
	"checkout/internal/app/expiry"
	"checkout/internal/app/listings"
	"checkout/internal/app/reconcile"
	"checkout/internal/config"
	checkout_http "checkout/internal/handler/http/checkout"
	"checkout/internal/infrastructure/cache"
	"checkout/internal/infrastructure/database"
	kafka_infra "checkout/internal/infrastructure/kafka"
	"checkout/internal/infrastructure/mobilemoney"
	"checkout/internal/metrics"
	"checkout/internal/notify"
	"checkout/internal/outbox"
	"checkout/internal/repository/listing_repo"
	listing_cache "checkout/internal/repository/listing_repo/cache"
	listing_pg "checkout/internal/repository/listing_repo/postgres"
	order_pg "checkout/internal/repository/order_repo/postgres"
	outbox_pg "checkout/internal/repository/outbox_repo/postgres"
	profile_pg "checkout/internal/repository/profile_repo/postgres"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	zapConfig := zap.NewProductionConfig()
	zapConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zapConfig.EncoderConfig.TimeKey = "timestamp"

	appLogger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()
	appLogger.Info("Checkout Service starting...")

	appLogger.Info("Waiting for database to be available...")
	dbConfig := database.DBConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.Name,
		SSLMode:  cfg.DBConfig.SSLMode,
	}

	var db *sql.DB
	maxRetries := 10
	retryDelay := 5 * time.Second

	for i := 0; i < maxRetries; i++ {
		db, err = database.NewPostgresDB(dbConfig)
		if err == nil {
			appLogger.Info("Successfully connected to PostgreSQL database!")
			break
		}
		appLogger.Warn("Failed to connect to database, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_attempts", maxRetries),
			zap.Duration("retry_in", retryDelay),
			zap.Error(err))
		time.Sleep(retryDelay)
	}

	if db == nil {
		appLogger.Fatal("Could not connect to database after multiple retries. Exiting.", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			appLogger.Error("Error closing database connection", zap.Error(err))
		} else {
			appLogger.Info("Database connection closed.")
		}
	}()

	appLogger.Info("Running database migrations...")
	m, err := migrate.New(cfg.MigrationsPath, cfg.GetDBMigrationConnectionString())
	if err != nil {
		appLogger.Fatal("Failed to create migrate instance", zap.Error(err))
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		appLogger.Fatal("Failed to run database migrations", zap.Error(err))
	}
	appLogger.Info("Database migrations completed successfully (or no new migrations).")

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicCtx, cfg.GetKafkaBrokers(), []string{cfg.KafkaNotificationsTopic}, appLogger)
	topicCancel()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	listingRepository := listing_pg.NewListingRepository(db, appLogger.With(zap.String("component", "ListingRepository")))
	orderRepository := order_pg.NewOrderRepository()
	outboxRepository := outbox_pg.NewOutboxRepository()
	profileRepository := profile_pg.NewProfileRepository(db)

	var listingReader listing_repo.ListingReader = listingRepository
	var reconcileEvictor reconcile.ListingEvictor
	var expiryEvictor expiry.ListingEvictor
	rdb, err := cache.InitRedis(cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, appLogger)
	if err != nil {
		appLogger.Warn("Redis unavailable, listings will be read from PostgreSQL only", zap.Error(err))
	} else {
		defer rdb.Close()
		cached := listing_cache.NewCachedListingReader(listingRepository, rdb, cfg.ListingCacheTTL,
			appLogger.With(zap.String("component", "ListingCache")))
		listingReader = cached
		reconcileEvictor = cached
		expiryEvictor = cached
	}

	breaker := mobilemoney.NewCircuitBreaker(cfg.BreakerMaxFailures, cfg.BreakerResetTimeout,
		appLogger.With(zap.String("component", "MobileMoneyBreaker")))
	mobileMoney := mobilemoney.NewClient(cfg.MobileMoneyBaseURL, cfg.MobileMoneyTimeout, breaker,
		appLogger.With(zap.String("component", "MobileMoneyClient")))

	reconciler := reconcile.NewReconciler(db, orderRepository, listingRepository, reconcileEvictor,
		appLogger.With(zap.String("component", "Reconciler")))

	sweeper := expiry.NewSweeper(db, listingRepository, expiryEvictor, cfg.ExpirySweepInterval,
		appLogger.With(zap.String("component", "ExpirySweeper")))

	dispatcher := notify.NewOutboxDispatcher(db, outboxRepository, cfg.KafkaNotificationsTopic,
		appLogger.With(zap.String("component", "NotificationDispatcher")))

	checkoutService := checkout.NewService(
		db,
		orderRepository,
		listingReader,
		profileRepository,
		mobileMoney,
		reconciler,
		dispatcher,
		checkout.Options{
			PollInterval:        cfg.PaymentPollInterval,
			MaxPollAttempts:     cfg.PaymentPollMaxAttempts,
			ReconcileTimeout:    cfg.ReconcileTimeout,
			NotificationTimeout: cfg.NotificationTimeout,
			SessionIdleTTL:      cfg.SessionIdleTTL,
			PendingResolveAfter: cfg.PendingResolveAfter,
			PendingBatchSize:    cfg.PendingBatchSize,
		},
		appLogger.With(zap.String("component", "CheckoutService")),
	)
	listingService := listings.NewService(listingReader, sweeper, appLogger.With(zap.String("component", "ListingService")))
	appLogger.Info("Checkout Service initialized.")

	kafkaProducer := kafka_infra.NewProducer(cfg.GetKafkaBrokers(), appLogger.With(zap.String("component", "KafkaProducer")))
	defer func() {
		if err := kafkaProducer.Close(); err != nil {
			appLogger.Error("Error closing Kafka producer", zap.Error(err))
		} else {
			appLogger.Info("Kafka producer closed.")
		}
	}()

	outboxProcessor := outbox.NewProcessor(
		db,
		outboxRepository,
		kafkaProducer,
		cfg.OutboxPollInterval,
		cfg.OutboxPollTimeout,
		cfg.OutboxBatchSize,
		appLogger.With(zap.String("component", "OutboxProcessor")),
	)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	router.Handle("/metrics", metrics.Handler())
	checkout_http.RegisterRoutes(router, checkoutService, listingService, appLogger)

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler: router,
	}

	ctxMain, cancelMain := context.WithCancel(context.Background())
	defer cancelMain()

	go func() {
		appLogger.Info("Starting HTTP server", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go outboxProcessor.Start(ctxMain)
	go sweeper.Start(ctxMain)
	go checkoutService.RunJanitor(ctxMain, time.Minute)
	go checkoutService.RunResolver(ctxMain, cfg.PendingResolveInterval)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down application...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	} else {
		appLogger.Info("HTTP server gracefully shut down.")
	}

	cancelMain()
	checkoutService.Close()
	appLogger.Info("Payment polling stopped.")

	appLogger.Info("Application gracefully shut down.")
}
