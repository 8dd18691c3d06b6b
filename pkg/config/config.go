package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/collections-import/pkg/money"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Import        ImportConfig
	Notify        NotifyConfig
	Observability ObservabilityConfig
}

type ServerConfig struct {
	Host               string
	Port               int
	RateLimitPerSecond int
	RateLimitBurst     int
	AllowedOrigins     []string
	MaxUploadBytes     int64
	ShutdownTimeout    time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ImportConfig holds the defaults applied to every import run.
type ImportConfig struct {
	DefaultExchangeRate decimal.Decimal
	DefaultCurrency     string
	DefaultMethod       string
	ParseFailurePolicy  string
	PendingTTL          time.Duration
	SweepSchedule       string
	AliasRefresh        string
	CatalogPath         string
	StoragePath         string
	MatchThreshold      int
}

type NotifyConfig struct {
	ResendAPIKey string
	From         string
	To           []string
}

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogLevel       string
	LogFormat      string
}

// Load reads configuration from environment variables, after loading a
// .env file when one exists.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	rate, err := getEnvAsDecimal("IMPORT_DEFAULT_EXCHANGE_RATE", decimal.NewFromInt(1))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:               getEnv("SERVER_HOST", "localhost"),
			Port:               getEnvAsInt("SERVER_PORT", 8080),
			RateLimitPerSecond: getEnvAsInt("SERVER_RATE_LIMIT_PER_SECOND", 20),
			RateLimitBurst:     getEnvAsInt("SERVER_RATE_LIMIT_BURST", 40),
			AllowedOrigins:     getEnvAsList("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			MaxUploadBytes:     int64(getEnvAsInt("SERVER_MAX_UPLOAD_MB", 32)) << 20,
			ShutdownTimeout:    getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("POSTGRES_HOST", "localhost"),
			Port:     getEnvAsInt("POSTGRES_PORT", 5432),
			User:     getEnv("POSTGRES_USER", "postgres"),
			Password: getEnv("POSTGRES_PASSWORD", "postgres"),
			Database: getEnv("POSTGRES_DB", "collections"),
			SSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		},
		Import: ImportConfig{
			DefaultExchangeRate: rate,
			DefaultCurrency:     strings.ToUpper(getEnv("IMPORT_DEFAULT_CURRENCY", "MXN")),
			DefaultMethod:       getEnv("IMPORT_DEFAULT_PAYMENT_METHOD", "Deposito"),
			ParseFailurePolicy:  getEnv("IMPORT_PARSE_FAILURE_POLICY", "substitute_default"),
			PendingTTL:          getEnvAsDuration("IMPORT_PENDING_TTL", 2*time.Hour),
			SweepSchedule:       getEnv("IMPORT_SWEEP_SCHEDULE", "*/10 * * * *"),
			AliasRefresh:        getEnv("IMPORT_ALIAS_REFRESH_SCHEDULE", "*/5 * * * *"),
			CatalogPath:         getEnv("IMPORT_CATALOG_PATH", ""),
			StoragePath:         getEnv("IMPORT_STORAGE_PATH", "./uploads"),
			MatchThreshold:      getEnvAsInt("IMPORT_MATCH_THRESHOLD", 0),
		},
		Notify: NotifyConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("RESEND_FROM_EMAIL", ""),
			To:           getEnvAsList("IMPORT_NOTIFY_TO", nil),
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			LogFormat:      getEnv("LOG_FORMAT", "json"),
		},
	}

	if !cfg.Import.DefaultExchangeRate.IsPositive() {
		return nil, errors.New("IMPORT_DEFAULT_EXCHANGE_RATE must be positive")
	}
	if !money.ValidCurrency(cfg.Import.DefaultCurrency) {
		return nil, fmt.Errorf("IMPORT_DEFAULT_CURRENCY %q is not an ISO-4217 code", cfg.Import.DefaultCurrency)
	}
	if cfg.Import.PendingTTL <= 0 {
		return nil, errors.New("IMPORT_PENDING_TTL must be positive")
	}

	return cfg, nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// Addr returns host:port for the HTTP listener.
func (c *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma separated value, dropping empty items.
func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(valueStr, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) (decimal.Decimal, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return value, nil
}
