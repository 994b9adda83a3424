package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"checkout/internal/config"
	"checkout/internal/gateway"
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

	logger, err := zapConfig.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create zap logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	r, err := gateway.NewRouter(cfg, logger.With(zap.String("component", "GatewayRouter")))
	if err != nil {
		logger.Fatal("Failed to create router", zap.Error(err))
	}

	addr := fmt.Sprintf(":%d", cfg.GatewayPort)
	logger.Info("Starting API Gateway", zap.String("address", addr), zap.String("upstream", cfg.CheckoutServiceURL))
	if err := http.ListenAndServe(addr, r); err != nil {
		logger.Fatal("Gateway server failed", zap.Error(err))
	}
}
