package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_cart/order-engine/internal/pricing"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	HTTPPort           string
	LogLevel           string
	RequestTimeout     time.Duration
	ShutdownTimeout    time.Duration
	MaxRequestBodySize int64

	BackendURL     string
	BackendTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CartTTL       time.Duration

	KafkaBrokers   []string
	KafkaTopic     string
	KafkaGroupID   string
	KafkaQueueSize int
	KafkaFlushTick time.Duration

	PollInterval   time.Duration
	TickInterval   time.Duration
	BannerInterval time.Duration
	SessionIdleTTL time.Duration

	Fees pricing.FeeConfig
}

// Load reads an optional .env file and then the environment. A missing .env
// is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return fromEnv(), nil
}

func fromEnv() *Config {
	cfg := &Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		RequestTimeout:     getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
		ShutdownTimeout:    getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		MaxRequestBodySize: int64(getEnvAsInt("MAX_REQUEST_BODY_SIZE", 1<<20)),

		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8000/api/v1"),
		BackendTimeout: getEnvAsDuration("BACKEND_TIMEOUT", 15*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),
		CartTTL:       getEnvAsDuration("CART_TTL", 15*time.Minute),

		KafkaBrokers:   splitList(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "order-engine.events"),
		KafkaGroupID:   getEnv("KAFKA_GROUP_ID", ""),
		KafkaQueueSize: getEnvAsInt("KAFKA_QUEUE_SIZE", 256),
		KafkaFlushTick: getEnvAsDuration("KAFKA_FLUSH_INTERVAL", time.Second),

		PollInterval:   getEnvAsDuration("TRACKING_POLL_INTERVAL", 10*time.Second),
		TickInterval:   getEnvAsDuration("TRACKING_TICK_INTERVAL", time.Second),
		BannerInterval: getEnvAsDuration("BANNER_REFRESH_INTERVAL", 15*time.Second),
		SessionIdleTTL: getEnvAsDuration("SESSION_IDLE_TTL", 2*time.Hour),
	}

	if os.Getenv("DELIVERY_BASE_FEE") != "" || os.Getenv("DELIVERY_MIN_FEE") != "" {
		cfg.Fees.Delivery = &pricing.DeliveryFeeConfig{
			BaseFee:               getEnvAsDecimal("DELIVERY_BASE_FEE", decimal.Zero),
			MinFee:                getEnvAsDecimal("DELIVERY_MIN_FEE", decimal.Zero),
			FreeDeliveryThreshold: getEnvAsDecimal("FREE_DELIVERY_THRESHOLD", decimal.NewFromInt(499)),
		}
	}
	if getEnvAsBool("APP_FEE_ENABLED", true) {
		cfg.Fees.App = &pricing.AppFeeConfig{
			FlatFee: getEnvAsDecimal("APP_FEE", pricing.DefaultAppFee),
		}
	}
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || value <= 0 {
		return defaultValue
	}
	return value
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	value, err := decimal.NewFromString(getEnv(key, ""))
	if err != nil || value.IsNegative() {
		return defaultValue
	}
	return value
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
