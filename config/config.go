package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	// Server configuration
	Environment string

	// Redis configuration
	RedisURL string

	// PubNub configuration
	PubNubPublishKey   string
	PubNubSubscribeKey string
	PubNubSecretKey    string

	// Default access controller, used when a point of sale has no
	// device of its own configured.
	DeviceHost     string
	DevicePort     int
	DeviceUser     string
	DevicePassword string
	DeviceTimeout  time.Duration
	DeviceProfile  string

	// Voucher issuance
	CodeInsertRetries int
	BulkBatchLimit    int

	// Payment confirmation webhook
	PaymentWebhookKey string

	// Monitoring
	EnableMetrics bool
	MetricsPort   string
}

func LoadConfig() *Config {
	return &Config{
		// Server
		Environment: getEnv("ENVIRONMENT", "development"),

		// Redis
		RedisURL: getEnv("REDIS_URL", "localhost:6379"),

		// PubNub
		PubNubPublishKey:   getEnv("PUBNUB_PUBLISH_KEY", ""),
		PubNubSubscribeKey: getEnv("PUBNUB_SUBSCRIBE_KEY", ""),
		PubNubSecretKey:    getEnv("PUBNUB_SECRET_KEY", ""),

		// Device
		DeviceHost:     getEnv("MIKROTIK_HOST", "192.168.56.2"),
		DevicePort:     getEnvAsInt("MIKROTIK_PORT", 8728),
		DeviceUser:     getEnv("MIKROTIK_USER", "admin"),
		DevicePassword: getEnv("MIKROTIK_PASSWORD", ""),
		DeviceTimeout:  getEnvAsDuration("MIKROTIK_TIMEOUT", "10s"),
		DeviceProfile:  getEnv("MIKROTIK_PROFILE", "default"),

		// Issuance
		CodeInsertRetries: getEnvAsInt("CODE_INSERT_RETRIES", 3),
		BulkBatchLimit:    getEnvAsInt("BULK_BATCH_LIMIT", 500),

		// Payments
		PaymentWebhookKey: getEnv("PAYMENT_WEBHOOK_KEY", ""),

		// Monitoring
		EnableMetrics: getEnvAsBool("ENABLE_METRICS", true),
		MetricsPort:   getEnv("METRICS_PORT", "9090"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := getEnv(key, defaultValue)
	if duration, err := time.ParseDuration(valueStr); err == nil {
		return duration
	}
	// If parsing fails, try to parse default value
	duration, _ := time.ParseDuration(defaultValue)
	return duration
}
