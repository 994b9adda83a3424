package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"checkout/internal/config"
	checkout_http "checkout/internal/handler/http/checkout"
	kafka_handler "checkout/internal/handler/kafka"
	kafka_infra "checkout/internal/infrastructure/kafka"
	"checkout/internal/infrastructure/sms"
	"checkout/internal/metrics"
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
	appLogger.Info("Notifier starting...")

	topicCtx, topicCancel := context.WithTimeout(context.Background(), 10*time.Second)
	err = kafka_infra.EnsureTopics(topicCtx, cfg.GetKafkaBrokers(), []string{cfg.KafkaNotificationsTopic}, appLogger)
	topicCancel()
	if err != nil {
		appLogger.Fatal("Failed to ensure Kafka topics", zap.Error(err))
	}

	var sender sms.Sender
	if cfg.SMSAPIURL != "" {
		sender = sms.NewHTTPSender(cfg.SMSAPIURL, cfg.SMSAPIToken, appLogger.With(zap.String("component", "SMSSender")))
	} else {
		appLogger.Warn("SMS_API_URL is not set, notifications will only be logged")
		sender = sms.NewLogSender(appLogger.With(zap.String("component", "SMSSender")))
	}

	notificationConsumer := kafka_infra.NewConsumer(
		cfg.GetKafkaBrokers(),
		cfg.KafkaNotificationsTopic,
		cfg.KafkaNotifierGroup,
		kafka_handler.NotificationMessageHandler(sender, cfg.SMSSenderID, appLogger.With(zap.String("component", "NotificationHandler"))),
		appLogger.With(zap.String("component", "NotificationConsumer")),
	)

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(metrics.Middleware)
	router.Get("/health", checkout_http.Health)
	router.Handle("/metrics", metrics.Handler())

	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.NotifierHTTPPort),
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

	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := notificationConsumer.Consume(ctxMain); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, kafka.ErrGroupClosed) {
			appLogger.Error("Notification consumer failed", zap.Error(err))
		}
		appLogger.Info("Notification consumer stopped.")
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	appLogger.Info("Shutting down notifier...")
	cancelMain()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("HTTP server graceful shutdown failed", zap.Error(err))
	}

	if err := notificationConsumer.Close(); err != nil {
		appLogger.Error("Error closing notification consumer", zap.Error(err))
	}
	select {
	case <-consumerDone:
	case <-time.After(5 * time.Second):
		appLogger.Warn("Notification consumer did not stop within 5 seconds.")
	}

	appLogger.Info("Notifier gracefully shut down.")
}
