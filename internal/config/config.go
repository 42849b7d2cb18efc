package config

import (
	"os"
	"strconv"
)

// Config holds all runtime configuration, sourced from environment
// variables with development-friendly defaults.
type Config struct {
	Port        string
	Environment string

	DatabaseURL string
	RedisURL    string

	JWTSecret     string
	JWTExpiryDays int

	// Model routing
	DefaultModel     string
	ModelsDir        string
	ModelsConfigPath string
	ModelRuntimeURL  string
	StreamStallLimit int

	// Rate limiting (messages per day per tier)
	RateLimitFree    int
	RateLimitPremium int
	RateLimitAdmin   int
	RateLimitEnforce bool

	// Payments
	PaymentServerKey   string
	PaymentClientKey   string
	PaymentBaseURL     string
	PaymentEnvironment string
	PremiumPriceIDR    float64
	PremiumDays        int
}

// Load reads configuration from the environment
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8000"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DatabaseURL: getEnv("DATABASE_URL", "sqlite://./aiplatform.db"),
		RedisURL:    getEnv("REDIS_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", "dev-secret-change-in-production"),
		JWTExpiryDays: getIntEnv("JWT_EXPIRY_DAYS", 7),

		DefaultModel:     getEnv("DEFAULT_MODEL", "mistral"),
		ModelsDir:        getEnv("MODELS_PATH", "./models"),
		ModelsConfigPath: getEnv("MODELS_CONFIG", "./models.yaml"),
		ModelRuntimeURL:  getEnv("MODEL_RUNTIME_URL", "http://localhost:8080"),
		StreamStallLimit: getIntEnv("STREAM_STALL_LIMIT", 5),

		RateLimitFree:    getIntEnv("RATE_LIMIT_FREE_TIER", 10),
		RateLimitPremium: getIntEnv("RATE_LIMIT_PREMIUM_TIER", 100),
		RateLimitAdmin:   getIntEnv("RATE_LIMIT_ADMIN_TIER", 1000),
		RateLimitEnforce: getBoolEnv("RATE_LIMIT_ENFORCE", false),

		PaymentServerKey:   getEnv("PAYMENT_SERVER_KEY", ""),
		PaymentClientKey:   getEnv("PAYMENT_CLIENT_KEY", ""),
		PaymentBaseURL:     getEnv("PAYMENT_BASE_URL", "https://api.sandbox.midtrans.com"),
		PaymentEnvironment: getEnv("PAYMENT_ENVIRONMENT", "sandbox"),
		PremiumPriceIDR:    getFloatEnv("PREMIUM_PRICE_IDR", 50000),
		PremiumDays:        getIntEnv("PREMIUM_DURATION_DAYS", 30),
	}
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
