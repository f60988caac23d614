// Package config provides configuration management and environment variable handling for the application
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/food-parcel/utils"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// ProductionConfig holds all configuration for production environment
type ProductionConfig struct {
	Database   DatabaseConfig   `json:"database"`
	Server     ServerConfig     `json:"server"`
	Security   SecurityConfig   `json:"security"`
	JWT        JWTConfig        `json:"jwt"`
	SMS        SMSConfig        `json:"sms"`
	Logging    LoggingConfig    `json:"logging"`
	Metrics    MetricsConfig    `json:"metrics"`
	Cache      CacheConfig      `json:"cache"`
	Deployment DeploymentConfig `json:"deployment"`
	Scheduler  SchedulerConfig  `json:"scheduler"`
	Reminder   ReminderConfig   `json:"reminder"`
	Alert      AlertConfig      `json:"alert"`
}

type DatabaseConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
	SlowQueryLog    bool          `json:"slow_query_log"`
	SlowQueryTime   time.Duration `json:"slow_query_time"`
}

// DSN returns the PostgreSQL connection string
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
	TrustedProxies  []string      `json:"trusted_proxies"`
	ProxyHeader     string        `json:"proxy_header"`
}

type SecurityConfig struct {
	// CORS
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	CORSMaxAge       int      `json:"cors_max_age"`

	// Rate Limiting
	AdminRateLimit  int           `json:"admin_rate_limit"` // requests per window
	RateLimitWindow time.Duration `json:"rate_limit_window"`
}

// JWTConfig configures verification of admin identity tokens. Tokens are
// issued elsewhere.
type JWTConfig struct {
	SecretKey  string `json:"secret_key"`
	PublicKey  string `json:"public_key"`   // RSA public key in PEM format
	UseRSAKeys bool   `json:"use_rsa_keys"` // Whether to use RSA keys instead of secret key
	Issuer     string `json:"issuer"`
	Audience   string `json:"audience"`
}

// SMS provider names
const (
	SMSProviderMock   = "mock"
	SMSProviderHTTP   = "http"
	SMSProviderTwilio = "twilio"
)

type SMSConfig struct {
	Provider string `json:"provider"` // mock, http, twilio
	// TestMode simulates successful sends without calling the provider
	TestMode bool `json:"test_mode"`

	// http provider
	ProviderDomain string        `json:"provider_domain"`
	APIKey         string        `json:"api_key"`
	SourceNumber   string        `json:"source_number"`
	RetryCount     int           `json:"retry_count"`
	ValidityPeriod int           `json:"validity_period"`
	Timeout        time.Duration `json:"timeout"`

	// twilio provider
	TwilioAccountSID string `json:"twilio_account_sid"`
	TwilioAuthToken  string `json:"twilio_auth_token"`
	TwilioFromNumber string `json:"twilio_from_number"`

	// RatePerSecond throttles provider calls; zero disables throttling
	RatePerSecond float64 `json:"rate_per_second"`
	RateBurst     int     `json:"rate_burst"`
}

type LoggingConfig struct {
	Level        string `json:"level"`  // debug, info, warn, error
	Format       string `json:"format"` // json, console
	Output       string `json:"output"` // stdout, file, both
	FilePath     string `json:"file_path"`
	MaxSize      int    `json:"max_size"` // MB
	MaxBackups   int    `json:"max_backups"`
	MaxAge       int    `json:"max_age"` // days
	Compress     bool   `json:"compress"`
	EnableCaller bool   `json:"enable_caller"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool          `json:"enabled"`
	RedisURL    string        `json:"redis_url"`
	RedisDB     int           `json:"redis_db"`
	RedisPrefix string        `json:"redis_prefix"`
	DefaultTTL  time.Duration `json:"default_ttl"`
}

type DeploymentConfig struct {
	Environment string `json:"environment"`
	Version     string `json:"version"`
	CommitHash  string `json:"commit_hash"`
	BuildTime   string `json:"build_time"`
}

// IsProductionLike reports whether alerts should go out for this environment
func (c DeploymentConfig) IsProductionLike() bool {
	env := strings.ToLower(c.Environment)
	return env == "production" || env == "staging"
}

func (c DeploymentConfig) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// SchedulerConfig configures the background scheduler. Anonymization cannot be
// disabled; use a far-future schedule or a very large inactive duration instead.
type SchedulerConfig struct {
	SMSInterval           time.Duration `json:"sms_interval"`
	AnonymizationSchedule string        `json:"anonymization_schedule"`
	AnonymizationInactive time.Duration `json:"anonymization_inactive"`
	HeartbeatInterval     time.Duration `json:"heartbeat_interval"`
	Timezone              string        `json:"timezone"`
}

type ReminderConfig struct {
	Horizon           time.Duration `json:"horizon"`
	StaleThreshold    time.Duration `json:"stale_threshold"`
	BatchLimit        int           `json:"batch_limit"`
	DefaultMaxPerSlot int           `json:"default_max_per_slot"`
	// LocationCacheTTL bounds how long a capacity change made directly in the
	// database stays invisible to the validator. No write path here invalidates it.
	LocationCacheTTL  time.Duration `json:"location_cache_ttl"`
}

type AlertConfig struct {
	TelegramToken  string `json:"telegram_token"`
	TelegramChatID int64  `json:"telegram_chat_id"`
	AdminMobile    string `json:"admin_mobile"`
}

// envErrors collects parse failures of values that must not silently fall back
type envErrors []string

// LoadProductionConfig loads and validates configuration from environment variables
func LoadProductionConfig() (*ProductionConfig, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	var perr envErrors
	cfg := &ProductionConfig{
		Database: DatabaseConfig{
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "food_parcel"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "require"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 50),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
			SlowQueryLog:    getEnvBool("DB_SLOW_QUERY_LOG", true),
			SlowQueryTime:   getEnvDuration("DB_SLOW_QUERY_TIME", 1*time.Second),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 60*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 4*1024*1024), // 4MB
			TrustedProxies:  getEnvStringSlice("SERVER_TRUSTED_PROXIES", []string{"127.0.0.1"}),
			ProxyHeader:     getEnvString("SERVER_PROXY_HEADER", "X-Real-IP"),
		},
		Security: SecurityConfig{
			AllowedOrigins:   getEnvStringSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
			AllowedMethods:   getEnvStringSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders:   getEnvStringSlice("CORS_ALLOWED_HEADERS", []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}),
			AllowCredentials: getEnvBool("CORS_ALLOW_CREDENTIALS", true),
			CORSMaxAge:       getEnvInt("CORS_MAX_AGE", 86400),
			AdminRateLimit:   getEnvInt("ADMIN_RATE_LIMIT", 120),
			RateLimitWindow:  getEnvDuration("RATE_LIMIT_WINDOW", 1*time.Minute),
		},
		JWT: JWTConfig{
			SecretKey:  getEnvString("JWT_SECRET_KEY", ""),
			PublicKey:  getEnvString("JWT_PUBLIC_KEY", ""),
			UseRSAKeys: getEnvBool("JWT_USE_RSA_KEYS", false),
			Issuer:     getEnvString("JWT_ISSUER", "food-parcel"),
			Audience:   getEnvString("JWT_AUDIENCE", "food-parcel-admin"),
		},
		SMS: SMSConfig{
			Provider:         strings.ToLower(getEnvString("SMS_PROVIDER", SMSProviderMock)),
			TestMode:         getEnvBool("SMS_TEST_MODE", false),
			ProviderDomain:   getEnvString("SMS_PROVIDER_DOMAIN", ""),
			APIKey:           getEnvString("SMS_API_KEY", ""),
			SourceNumber:     getEnvString("SMS_SOURCE_NUMBER", ""),
			RetryCount:       getEnvInt("SMS_RETRY_COUNT", 0),
			ValidityPeriod:   getEnvInt("SMS_VALIDITY_PERIOD", 3600),
			Timeout:          getEnvDuration("SMS_TIMEOUT", 15*time.Second),
			TwilioAccountSID: getEnvString("TWILIO_ACCOUNT_SID", ""),
			TwilioAuthToken:  getEnvString("TWILIO_AUTH_TOKEN", ""),
			TwilioFromNumber: getEnvString("TWILIO_PHONE_NUMBER", ""),
			RatePerSecond:    getEnvFloat("SMS_RATE_PER_SECOND", 5),
			RateBurst:        getEnvInt("SMS_RATE_BURST", 5),
		},
		Logging: LoggingConfig{
			Level:        getEnvString("LOG_LEVEL", "info"),
			Format:       getEnvString("LOG_FORMAT", "json"),
			Output:       getEnvString("LOG_OUTPUT", "stdout"),
			FilePath:     getEnvString("LOG_FILE_PATH", "/var/log/food-parcel/app.log"),
			MaxSize:      getEnvInt("LOG_MAX_SIZE", 100),
			MaxBackups:   getEnvInt("LOG_MAX_BACKUPS", 10),
			MaxAge:       getEnvInt("LOG_MAX_AGE", 30),
			Compress:     getEnvBool("LOG_COMPRESS", true),
			EnableCaller: getEnvBool("LOG_ENABLE_CALLER", false),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", false),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "food-parcel:"),
			DefaultTTL:  getEnvDuration("CACHE_DEFAULT_TTL", 5*time.Minute),
		},
		Deployment: DeploymentConfig{
			Environment: getEnvString("APP_ENV", "development"),
			Version:     getEnvString("VERSION", "1.0.0"),
			CommitHash:  getEnvString("COMMIT_HASH", "unknown"),
			BuildTime:   getEnvString("BUILD_TIME", "unknown"),
		},
		Scheduler: SchedulerConfig{
			SMSInterval:           perr.humanDuration("SMS_JIT_INTERVAL", utils.DefaultSMSInterval),
			AnonymizationSchedule: getEnvString("ANONYMIZATION_SCHEDULE", utils.DefaultAnonymizationSchedule),
			AnonymizationInactive: perr.humanDuration("ANONYMIZATION_INACTIVE_DURATION", utils.DefaultInactivityDuration),
			HeartbeatInterval:     perr.humanDuration("HEARTBEAT_INTERVAL", utils.DefaultHeartbeatInterval),
			Timezone:              getEnvString("TIMEZONE", utils.DefaultTimezone),
		},
		Reminder: ReminderConfig{
			Horizon:           perr.humanDuration("REMINDER_HORIZON", utils.ReminderHorizon),
			StaleThreshold:    perr.humanDuration("REMINDER_STALE_THRESHOLD", utils.StaleSendThreshold),
			BatchLimit:        getEnvInt("REMINDER_BATCH_LIMIT", 500),
			DefaultMaxPerSlot: getEnvInt("DEFAULT_MAX_PARCELS_PER_SLOT", utils.DefaultMaxParcelsPerSlot),
			LocationCacheTTL:  getEnvDuration("LOCATION_CACHE_TTL", 5*time.Minute),
		},
		Alert: AlertConfig{
			TelegramToken:  getEnvString("ALERT_TELEGRAM_TOKEN", ""),
			TelegramChatID: getEnvInt64("ALERT_TELEGRAM_CHAT_ID", 0),
			AdminMobile:    getEnvString("ADMIN_MOBILE", ""),
		},
	}

	if len(perr) > 0 {
		return nil, fmt.Errorf("configuration parse failed: %s", strings.Join(perr, "; "))
	}

	if err := ValidateProductionConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadEnvFile loads environment variables from .env file if it exists.
// Variables already present in the environment win.
func loadEnvFile() error {
	envFile := getEnvString("ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return nil
}

// humanDuration parses values such as "5 minutes" or "1 year"; Go duration
// syntax ("5m") is accepted too. Invalid values are recorded, not defaulted.
func (e *envErrors) humanDuration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if parsed, err := utils.ParseDuration(value); err == nil {
		return parsed
	}
	if parsed, err := time.ParseDuration(value); err == nil && parsed > 0 {
		return parsed
	}
	*e = append(*e, fmt.Sprintf("%s: invalid duration %q", key, value))
	return defaultValue
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		var result []string
		for _, item := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(item); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultValue
}

// ValidateProductionConfig validates the production configuration
func ValidateProductionConfig(cfg *ProductionConfig) error {
	var errors []string

	// Validate database configuration
	if cfg.Database.Host == "" {
		errors = append(errors, "DB_HOST is required")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		errors = append(errors, "DB_PORT must be between 1 and 65535")
	}
	if cfg.Database.Name == "" {
		errors = append(errors, "DB_NAME is required")
	}
	if cfg.Database.User == "" {
		errors = append(errors, "DB_USER is required")
	}

	// Validate JWT configuration
	if cfg.JWT.UseRSAKeys {
		if cfg.JWT.PublicKey == "" {
			errors = append(errors, "JWT_PUBLIC_KEY is required when JWT_USE_RSA_KEYS is set")
		}
	} else if len(cfg.JWT.SecretKey) < 32 {
		errors = append(errors, "JWT_SECRET_KEY must be at least 32 characters long")
	}
	if cfg.JWT.Issuer == "" {
		errors = append(errors, "JWT_ISSUER is required")
	}
	if cfg.JWT.Audience == "" {
		errors = append(errors, "JWT_AUDIENCE is required")
	}

	// Validate server configuration
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errors = append(errors, "SERVER_PORT must be between 1 and 65535")
	}
	if cfg.Server.ReadTimeout <= 0 {
		errors = append(errors, "SERVER_READ_TIMEOUT must be positive")
	}
	if cfg.Server.WriteTimeout <= 0 {
		errors = append(errors, "SERVER_WRITE_TIMEOUT must be positive")
	}

	// Validate SMS configuration
	switch cfg.SMS.Provider {
	case SMSProviderMock:
	case SMSProviderHTTP:
		if cfg.SMS.ProviderDomain == "" {
			errors = append(errors, "SMS_PROVIDER_DOMAIN is required for the http SMS provider")
		}
		if cfg.SMS.APIKey == "" {
			errors = append(errors, "SMS_API_KEY is required for the http SMS provider")
		}
		if cfg.SMS.SourceNumber == "" {
			errors = append(errors, "SMS_SOURCE_NUMBER is required for the http SMS provider")
		}
	case SMSProviderTwilio:
		if cfg.SMS.TwilioAccountSID == "" || cfg.SMS.TwilioAuthToken == "" {
			errors = append(errors, "TWILIO_ACCOUNT_SID and TWILIO_AUTH_TOKEN are required for the twilio SMS provider")
		}
		if cfg.SMS.TwilioFromNumber == "" {
			errors = append(errors, "TWILIO_PHONE_NUMBER is required for the twilio SMS provider")
		}
	default:
		errors = append(errors, fmt.Sprintf("SMS_PROVIDER must be one of: %v", []string{SMSProviderMock, SMSProviderHTTP, SMSProviderTwilio}))
	}
	if cfg.SMS.RatePerSecond < 0 {
		errors = append(errors, "SMS_RATE_PER_SECOND must not be negative")
	}

	// Validate scheduler configuration
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		errors = append(errors, fmt.Sprintf("TIMEZONE is not a valid IANA zone: %v", err))
	}
	if _, err := cron.ParseStandard(cfg.Scheduler.AnonymizationSchedule); err != nil {
		errors = append(errors, fmt.Sprintf("ANONYMIZATION_SCHEDULE is not a valid cron expression: %v", err))
	}
	if cfg.Scheduler.SMSInterval <= 0 {
		errors = append(errors, "SMS_JIT_INTERVAL must be positive")
	}
	if cfg.Scheduler.AnonymizationInactive <= 0 {
		errors = append(errors, "ANONYMIZATION_INACTIVE_DURATION must be positive")
	}
	if cfg.Reminder.DefaultMaxPerSlot <= 0 {
		errors = append(errors, "DEFAULT_MAX_PARCELS_PER_SLOT must be positive")
	}

	// Validate logging configuration
	if cfg.Logging.Level != "" {
		validLevels := []string{"debug", "info", "warn", "error"}
		if !slices.Contains(validLevels, cfg.Logging.Level) {
			errors = append(errors, fmt.Sprintf("LOG_LEVEL must be one of: %v", validLevels))
		}
	}

	// Validate cache configuration if enabled
	if cfg.Cache.Enabled && cfg.Cache.RedisURL == "" {
		errors = append(errors, "CACHE_REDIS_URL is required when cache is enabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}
