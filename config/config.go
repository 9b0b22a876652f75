package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App     AppConfig
	HTTP    ServerConfig
	MySQL   MySQLConfig
	Log     LogConfig
	Stripe  StripeConfig
	Profile ProfileConfig
	Notify  NotifyConfig
	Payouts PayoutsConfig
	Jobs    JobsConfig
}

type AppConfig struct {
	ServiceName string
	APIKey      string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

type StripeConfig struct {
	SecretKey   string
	HTTPTimeout time.Duration
}

type ProfileConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type NotifyConfig struct {
	BaseURL     string
	APIKey      string
	HTTPTimeout time.Duration
}

type PayoutsConfig struct {
	TransferMaxAttempts         int
	TransferRetryDelay          time.Duration
	SweepBatchSize              int32
	SweepClaimTTL               time.Duration
	AutoReleaseOnDisputeResolve bool
}

type JobsConfig struct {
	SweepInterval time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payouts-service"),
			APIKey:      getEnv("APP_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Stripe: StripeConfig{
			SecretKey:   getEnv("STRIPE_SECRET_KEY", ""),
			HTTPTimeout: getSecondsEnv("STRIPE_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Profile: ProfileConfig{
			BaseURL:     getEnv("PROFILE_SERVICE_BASE_URL", ""),
			APIKey:      getEnv("PROFILE_SERVICE_API_KEY", ""),
			HTTPTimeout: getSecondsEnv("PROFILE_HTTP_TIMEOUT_SECONDS", 5*time.Second),
		},
		Notify: NotifyConfig{
			BaseURL:     getEnv("NOTIFY_SERVICE_BASE_URL", ""),
			APIKey:      getEnv("NOTIFY_SERVICE_API_KEY", ""),
			HTTPTimeout: getSecondsEnv("NOTIFY_HTTP_TIMEOUT_SECONDS", 5*time.Second),
		},
		Payouts: PayoutsConfig{
			TransferMaxAttempts:         getIntEnv("PAYOUTS_TRANSFER_MAX_ATTEMPTS", 3),
			TransferRetryDelay:          getSecondsEnv("PAYOUTS_TRANSFER_RETRY_DELAY_SECONDS", 2*time.Second),
			SweepBatchSize:              int32(getIntEnv("PAYOUTS_SWEEP_BATCH_SIZE", 100)),
			SweepClaimTTL:               getMinutesEnv("PAYOUTS_SWEEP_CLAIM_TTL_MINUTES", 10*time.Minute),
			AutoReleaseOnDisputeResolve: getBoolEnv("PAYOUTS_AUTO_RELEASE_ON_DISPUTE_RESOLVE", false),
		},
		Jobs: JobsConfig{
			SweepInterval: getMinutesEnv("PAYOUTS_SWEEP_INTERVAL_MINUTES", 5*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
