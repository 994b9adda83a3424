package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DBConfig struct {
		Host     string `env:"CHECKOUT_DB_HOST"`
		Port     int    `env:"CHECKOUT_DB_PORT"`
		User     string `env:"CHECKOUT_DB_USER"`
		Password string `env:"CHECKOUT_DB_PASSWORD"`
		Name     string `env:"CHECKOUT_DB_NAME"`
		SSLMode  string `env:"CHECKOUT_DB_SSLMODE"`
	}
	MigrationsPath string `env:"MIGRATIONS_PATH"`

	HTTPPort         int `env:"CHECKOUT_HTTP_PORT"`
	NotifierHTTPPort int `env:"NOTIFIER_HTTP_PORT"`

	KafkaBrokerURL          string `env:"KAFKA_BROKER_URL"`
	KafkaNotificationsTopic string `env:"KAFKA_NOTIFICATIONS_TOPIC"`
	KafkaNotifierGroup      string `env:"KAFKA_NOTIFIER_GROUP"`

	RedisAddr       string        `env:"REDIS_ADDR"`
	RedisPassword   string        `env:"REDIS_PASSWORD"`
	RedisDB         int           `env:"REDIS_DB"`
	ListingCacheTTL time.Duration `env:"LISTING_CACHE_TTL"`

	MobileMoneyBaseURL     string        `env:"MOBILE_MONEY_BASE_URL"`
	MobileMoneyTimeout     time.Duration `env:"MOBILE_MONEY_TIMEOUT"`
	BreakerMaxFailures     int           `env:"MOBILE_MONEY_BREAKER_MAX_FAILURES"`
	BreakerResetTimeout    time.Duration `env:"MOBILE_MONEY_BREAKER_RESET"`
	PaymentPollInterval    time.Duration `env:"PAYMENT_POLL_INTERVAL"`
	PaymentPollMaxAttempts int           `env:"PAYMENT_POLL_MAX_ATTEMPTS"`
	ReconcileTimeout       time.Duration `env:"RECONCILE_TIMEOUT"`
	NotificationTimeout    time.Duration `env:"NOTIFICATION_TIMEOUT"`
	SessionIdleTTL         time.Duration `env:"SESSION_IDLE_TTL"`
	ExpirySweepInterval    time.Duration `env:"EXPIRY_SWEEP_INTERVAL"`
	OutboxPollInterval     time.Duration `env:"OUTBOX_POLL_INTERVAL"`
	OutboxPollTimeout      time.Duration `env:"OUTBOX_POLL_TIMEOUT"`
	OutboxBatchSize        int           `env:"OUTBOX_BATCH_SIZE"`
	PendingResolveInterval time.Duration `env:"PENDING_RESOLVE_INTERVAL"`
	PendingResolveAfter    time.Duration `env:"PENDING_RESOLVE_AFTER"`
	PendingBatchSize       int           `env:"PENDING_BATCH_SIZE"`

	SMSAPIURL   string `env:"SMS_API_URL"`
	SMSAPIToken string `env:"SMS_API_TOKEN"`
	SMSSenderID string `env:"SMS_SENDER_ID"`

	GatewayPort           int    `env:"GATEWAY_PORT"`
	CheckoutServiceURL    string `env:"CHECKOUT_SERVICE_URL"`
	GatewayAllowedOrigins string `env:"GATEWAY_ALLOWED_ORIGINS"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}

	cfg.DBConfig.Host = getEnvOrDefault("CHECKOUT_DB_HOST", "localhost")
	cfg.DBConfig.Port = getEnvAsInt("CHECKOUT_DB_PORT", 5432)
	cfg.DBConfig.User = getEnvOrDefault("CHECKOUT_DB_USER", "user")
	cfg.DBConfig.Password = getEnvOrDefault("CHECKOUT_DB_PASSWORD", "password")
	cfg.DBConfig.Name = getEnvOrDefault("CHECKOUT_DB_NAME", "checkout_db")
	cfg.DBConfig.SSLMode = getEnvOrDefault("CHECKOUT_DB_SSLMODE", "disable")
	cfg.MigrationsPath = getEnvOrDefault("MIGRATIONS_PATH", "file:///app/migrations")

	cfg.HTTPPort = getEnvAsInt("CHECKOUT_HTTP_PORT", 8081)
	cfg.NotifierHTTPPort = getEnvAsInt("NOTIFIER_HTTP_PORT", 8083)

	cfg.KafkaBrokerURL = getEnvOrDefault("KAFKA_BROKER_URL", "localhost:9092")
	cfg.KafkaNotificationsTopic = getEnvOrDefault("KAFKA_NOTIFICATIONS_TOPIC", "buyer_notifications")
	cfg.KafkaNotifierGroup = getEnvOrDefault("KAFKA_NOTIFIER_GROUP", "notifier-buyer-notifications-group")

	cfg.RedisAddr = getEnvOrDefault("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisDB = getEnvAsInt("REDIS_DB", 0)
	cfg.ListingCacheTTL = getEnvAsDuration("LISTING_CACHE_TTL", 30*time.Second)

	cfg.MobileMoneyBaseURL = getEnvOrDefault("MOBILE_MONEY_BASE_URL", "http://localhost:8090")
	cfg.MobileMoneyTimeout = getEnvAsDuration("MOBILE_MONEY_TIMEOUT", 10*time.Second)
	cfg.BreakerMaxFailures = getEnvAsInt("MOBILE_MONEY_BREAKER_MAX_FAILURES", 5)
	cfg.BreakerResetTimeout = getEnvAsDuration("MOBILE_MONEY_BREAKER_RESET", 30*time.Second)
	cfg.PaymentPollInterval = getEnvAsDuration("PAYMENT_POLL_INTERVAL", 3*time.Second)
	cfg.PaymentPollMaxAttempts = getEnvAsInt("PAYMENT_POLL_MAX_ATTEMPTS", 40)
	cfg.ReconcileTimeout = getEnvAsDuration("RECONCILE_TIMEOUT", 15*time.Second)
	cfg.NotificationTimeout = getEnvAsDuration("NOTIFICATION_TIMEOUT", 5*time.Second)
	cfg.SessionIdleTTL = getEnvAsDuration("SESSION_IDLE_TTL", 30*time.Minute)
	cfg.ExpirySweepInterval = getEnvAsDuration("EXPIRY_SWEEP_INTERVAL", 5*time.Minute)
	cfg.OutboxPollInterval = getEnvAsDuration("OUTBOX_POLL_INTERVAL", 1*time.Second)
	cfg.OutboxPollTimeout = getEnvAsDuration("OUTBOX_POLL_TIMEOUT", 500*time.Millisecond)
	cfg.OutboxBatchSize = getEnvAsInt("OUTBOX_BATCH_SIZE", 10)
	cfg.PendingResolveInterval = getEnvAsDuration("PENDING_RESOLVE_INTERVAL", time.Minute)
	cfg.PendingResolveAfter = getEnvAsDuration("PENDING_RESOLVE_AFTER", 10*time.Minute)
	cfg.PendingBatchSize = getEnvAsInt("PENDING_BATCH_SIZE", 20)

	cfg.SMSAPIURL = getEnvOrDefault("SMS_API_URL", "")
	cfg.SMSAPIToken = getEnvOrDefault("SMS_API_TOKEN", "")
	cfg.SMSSenderID = getEnvOrDefault("SMS_SENDER_ID", "FoodSaver")

	cfg.GatewayPort = getEnvAsInt("GATEWAY_PORT", 8080)
	cfg.CheckoutServiceURL = getEnvOrDefault("CHECKOUT_SERVICE_URL", "http://localhost:8081")
	cfg.GatewayAllowedOrigins = getEnvOrDefault("GATEWAY_ALLOWED_ORIGINS", "http://localhost:5173")

	if cfg.PaymentPollInterval <= 0 {
		return nil, fmt.Errorf("PAYMENT_POLL_INTERVAL must be positive, got %s", cfg.PaymentPollInterval)
	}
	if cfg.PaymentPollMaxAttempts < 1 {
		return nil, fmt.Errorf("PAYMENT_POLL_MAX_ATTEMPTS must be at least 1, got %d", cfg.PaymentPollMaxAttempts)
	}
	if cfg.ExpirySweepInterval <= 0 {
		return nil, fmt.Errorf("EXPIRY_SWEEP_INTERVAL must be positive, got %s", cfg.ExpirySweepInterval)
	}

	if pollWindow := cfg.PaymentPollInterval * time.Duration(cfg.PaymentPollMaxAttempts); cfg.PendingResolveAfter <= pollWindow {
		return nil, fmt.Errorf("PENDING_RESOLVE_AFTER must exceed the polling window of %s, got %s", pollWindow, cfg.PendingResolveAfter)
	}
	if cfg.PendingResolveInterval <= 0 {
		return nil, fmt.Errorf("PENDING_RESOLVE_INTERVAL must be positive, got %s", cfg.PendingResolveInterval)
	}

	return cfg, nil
}

func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetDBMigrationConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBConfig.User, c.DBConfig.Password, c.DBConfig.Host, c.DBConfig.Port, c.DBConfig.Name, c.DBConfig.SSLMode)
}

func (c *Config) GetKafkaBrokers() []string {
	return strings.Split(c.KafkaBrokerURL, ",")
}

func (c *Config) GetAllowedOrigins() []string {
	return strings.Split(c.GatewayAllowedOrigins, ",")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnvOrDefault(key, strconv.Itoa(defaultValue))
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnvOrDefault(key, defaultValue.String())
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
