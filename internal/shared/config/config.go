package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the service
type Config struct {
	// Server configuration
	Port           string
	GinMode        string
	APIVersion     string
	APIPrefix      string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int

	Database  DatabaseConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Kafka     KafkaConfig
	Stripe    StripeConfig
	Payments  PaymentsConfig
	Booking   BookingDefaults
	Jobs      JobsConfig

	// Logging
	LogLevel string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	SSLMode  string
	DSN      string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Addr     string

	PolicyCacheTTL time.Duration
	SweepLockTTL   time.Duration
}

// JWTConfig holds JWT configuration. Tokens are issued upstream; only the
// verification secret lives here.
type JWTConfig struct {
	Secret string
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool          `json:"enabled"`
	WindowDuration  time.Duration `json:"window_duration"`
	DefaultRequests int           `json:"default_requests"`
	CommandRequests int           `json:"command_requests"`
	ManagerRequests int           `json:"manager_requests"`
	AdminRequests   int           `json:"admin_requests"`
	WebhookRequests int           `json:"webhook_requests"`
	HealthRequests  int           `json:"health_requests"`
	WhitelistedIPs  []string      `json:"whitelisted_ips"`
}

// KafkaConfig holds the domain event producer configuration
type KafkaConfig struct {
	Enabled  bool
	Brokers  []string
	Topic    string
	ClientID string
}

// StripeConfig holds payment processor credentials
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
}

// PaymentsConfig controls retries against the payment processor
type PaymentsConfig struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// BookingDefaults are used when a location has no stored policy row
type BookingDefaults struct {
	CancellationPolicyHours      int
	AllowLateRequestCancellation bool
	GracePeriodHours             int
	PenaltyRate                  float64
	TaxRatePercent               float64
	CheckoutReviewWindowHours    int
	MinimumExtensionDays         int
	MinimumStorageDays           int
	PlatformFeePercent           float64
	PlatformFlatFeeCents         int64
}

// JobsConfig controls the in-process sweep scheduler
type JobsConfig struct {
	Enabled               bool
	OverstaySweepInterval time.Duration
	CheckoutSweepInterval time.Duration
	SweepBatchSize        int
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{
		// Server configuration
		Port:           getEnv("PORT", "8080"),
		GinMode:        getEnv("GIN_MODE", "debug"),
		APIVersion:     getEnv("API_VERSION", "v1"),
		APIPrefix:      getEnv("API_PREFIX", "/api"),
		ReadTimeout:    getDurationEnv("READ_TIMEOUT", 15*time.Second),
		WriteTimeout:   getDurationEnv("WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:    getDurationEnv("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes: getIntEnv("MAX_HEADER_BYTES", 1<<20), // 1 MB

		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			Name:            getEnv("DB_NAME", "kitchenhub_db"),
			User:            getEnv("DB_USER", "kitchenhub_user"),
			Password:        getEnv("DB_PASSWORD", "kitchenhub_password"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     getBoolEnv("DB_AUTO_MIGRATE", true),
		},

		Redis: RedisConfig{
			Host:           getEnv("REDIS_HOST", "localhost"),
			Port:           getEnv("REDIS_PORT", "6379"),
			Password:       getEnv("REDIS_PASSWORD", ""),
			DB:             getIntEnv("REDIS_DB", 0),
			PolicyCacheTTL: getDurationEnv("REDIS_POLICY_CACHE_TTL", 10*time.Minute),
			SweepLockTTL:   getDurationEnv("REDIS_SWEEP_LOCK_TTL", 2*time.Minute),
		},

		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-super-secret-jwt-key"),
		},

		RateLimit: RateLimitConfig{
			Enabled:         getBoolEnv("RATE_LIMIT_ENABLED", true),
			WindowDuration:  getDurationEnv("RATE_LIMIT_WINDOW_DURATION", 60*time.Second),
			DefaultRequests: getIntEnv("RATE_LIMIT_DEFAULT_REQUESTS", 60),
			CommandRequests: getIntEnv("RATE_LIMIT_COMMAND_REQUESTS", 20),
			ManagerRequests: getIntEnv("RATE_LIMIT_MANAGER_REQUESTS", 120),
			AdminRequests:   getIntEnv("RATE_LIMIT_ADMIN_REQUESTS", 200),
			WebhookRequests: getIntEnv("RATE_LIMIT_WEBHOOK_REQUESTS", 500),
			HealthRequests:  getIntEnv("RATE_LIMIT_HEALTH_REQUESTS", 300),
			WhitelistedIPs:  getStringSliceEnv("RATE_LIMIT_WHITELISTED_IPS", []string{}),
		},

		Kafka: KafkaConfig{
			Enabled:  getBoolEnv("KAFKA_ENABLED", false),
			Brokers:  getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:    getEnv("KAFKA_BOOKING_EVENTS_TOPIC", "kitchenhub.booking-events"),
			ClientID: getEnv("KAFKA_CLIENT_ID", "kitchenhub-backend"),
		},

		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
			Currency:      getEnv("STRIPE_CURRENCY", "cad"),
		},

		Payments: PaymentsConfig{
			MaxRetries:      uint64(getIntEnv("PAYMENT_MAX_RETRIES", 3)),
			InitialInterval: getDurationEnv("PAYMENT_RETRY_INITIAL_INTERVAL", 200*time.Millisecond),
			MaxInterval:     getDurationEnv("PAYMENT_RETRY_MAX_INTERVAL", 2*time.Second),
		},

		Booking: BookingDefaults{
			CancellationPolicyHours:      getIntEnv("CANCELLATION_POLICY_HOURS", 24),
			AllowLateRequestCancellation: getBoolEnv("ALLOW_LATE_REQUEST_CANCELLATION", false),
			GracePeriodHours:             getIntEnv("OVERSTAY_GRACE_PERIOD_HOURS", 24),
			PenaltyRate:                  getFloatEnv("OVERSTAY_PENALTY_RATE", 0.5),
			TaxRatePercent:               getFloatEnv("TAX_RATE_PERCENT", 13),
			CheckoutReviewWindowHours:    getIntEnv("CHECKOUT_REVIEW_WINDOW_HOURS", 48),
			MinimumExtensionDays:         getIntEnv("MINIMUM_EXTENSION_DAYS", 1),
			MinimumStorageDays:           getIntEnv("MINIMUM_STORAGE_DAYS", 1),
			PlatformFeePercent:           getFloatEnv("PLATFORM_FEE_PERCENT", 0.05),
			PlatformFlatFeeCents:         getInt64Env("PLATFORM_FLAT_FEE_CENTS", 30),
		},

		Jobs: JobsConfig{
			Enabled:               getBoolEnv("JOBS_ENABLED", true),
			OverstaySweepInterval: getDurationEnv("OVERSTAY_SWEEP_INTERVAL", 1*time.Hour),
			CheckoutSweepInterval: getDurationEnv("CHECKOUT_SWEEP_INTERVAL", 15*time.Minute),
			SweepBatchSize:        getIntEnv("SWEEP_BATCH_SIZE", 200),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "debug"),
	}

	// Build composite values
	cfg.Database.DSN = buildDatabaseDSN(cfg.Database)
	cfg.Redis.Addr = cfg.Redis.Host + ":" + cfg.Redis.Port

	return cfg
}

// buildDatabaseDSN builds the database connection string
func buildDatabaseDSN(db DatabaseConfig) string {
	return "host=" + db.Host +
		" port=" + db.Port +
		" user=" + db.User +
		" password=" + db.Password +
		" dbname=" + db.Name +
		" sslmode=" + db.SSLMode
}

// getEnv gets an environment variable with a fallback value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getIntEnv gets an integer environment variable with a fallback value
func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return fallback
}

// getInt64Env gets an int64 environment variable with a fallback value
func getInt64Env(key string, fallback int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return fallback
}

// getFloatEnv gets a float64 environment variable with a fallback value
func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

// getDurationEnv gets a duration environment variable with a fallback value
func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return fallback
}

// getBoolEnv gets a boolean environment variable with a fallback value
func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return fallback
}

// getStringSliceEnv gets a comma-separated string environment variable as a slice
func getStringSliceEnv(key string, fallback []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		var result []string
		for _, part := range parts {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}

// IsProduction returns true if the application is running in production mode
func (c *Config) IsProduction() bool {
	return c.GinMode == "release"
}

// IsDevelopment returns true if the application is running in development mode
func (c *Config) IsDevelopment() bool {
	return c.GinMode == "debug"
}

// GetServerAddress returns the full server address
func (c *Config) GetServerAddress() string {
	return ":" + c.Port
}

// GetAPIBasePath returns the API base path
func (c *Config) GetAPIBasePath() string {
	return c.APIPrefix + "/" + c.APIVersion
}

// UseSandboxPayments reports whether the in-memory processor should replace Stripe
func (c *Config) UseSandboxPayments() bool {
	return c.Stripe.SecretKey == ""
}
