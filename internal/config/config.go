package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Environment
	RunMode string // Set via flag, not env

	// MongoDB
	MongoURI    string
	MongoDbName string

	// Redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// JWT
	JwtSecret string
	JwtTTL    time.Duration

	// Server
	ApiPort        string
	ServiceApiPort string

	// Billing
	DefaultCurrency    string
	BillingTimezone    string // IANA name; daily runs are anchored to this zone's calendar
	LateFeeGraceDays   int
	ReminderDaysBefore int

	// Payment gateways
	MtnMomoBaseURL         string
	MtnMomoSubscriptionKey string
	MtnMomoAPIUser         string
	MtnMomoAPIKey          string
	MtnMomoTargetEnv       string
	AirtelBaseURL          string
	AirtelClientID         string
	AirtelClientSecret     string
	GatewayTimeout         time.Duration

	// Email
	SmtpHost        string
	SmtpPort        int
	SmtpUsername    string
	SmtpPassword    string
	SmtpFromAddress string

	// AWS S3
	AwsAccessKeyID     string
	AwsSecretAccessKey string
	AwsRegion          string
	AwsS3Bucket        string
	StatementKeyPrefix string

	// App Defaults
	AppName string

	// Rate Limiting Defaults
	RateLimitSoftBucketSize int
	RateLimitSoftRefillRate int // tokens per second
	RateLimitHardBucketSize int
	RateLimitHardRefillRate int // tokens per second
}

// Load configuration from environment variables.
// RunMode needs to be passed in as it comes from command-line flags.
func Load(runMode string) (*Config, error) {
	// Load .env file, ignoring errors if it doesn't exist
	godotenv.Load()

	cfg := &Config{
		RunMode: runMode, // Set from flag
	}

	var err error

	// Helper function to get env var or default
	getEnv := func(key, defaultValue string) string {
		if value, exists := os.LookupEnv(key); exists {
			return value
		}
		return defaultValue
	}

	// Helper function to get required env var
	getRequiredEnv := func(key string) (string, error) {
		value, exists := os.LookupEnv(key)
		if !exists {
			return "", fmt.Errorf("missing required environment variable: %s", key)
		}
		return value, nil
	}

	// Load basic string values
	cfg.MongoURI, err = getRequiredEnv("MONGO_URI")
	if err != nil {
		return nil, err
	}
	cfg.MongoDbName = getEnv("MONGO_DB_NAME", "rentpay")
	cfg.RedisAddr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")
	cfg.JwtSecret, err = getRequiredEnv("JWT_SECRET")
	if err != nil {
		return nil, err
	}
	cfg.ApiPort = getEnv("API_PORT", "8080")
	cfg.ServiceApiPort = getEnv("SERVICE_API_PORT", "12345")

	cfg.DefaultCurrency = getEnv("DEFAULT_CURRENCY", "UGX")
	cfg.BillingTimezone = getEnv("BILLING_TIMEZONE", "Africa/Kampala")

	cfg.MtnMomoBaseURL = getEnv("MTN_MOMO_BASE_URL", "https://sandbox.momodeveloper.mtn.com")
	cfg.MtnMomoSubscriptionKey = getEnv("MTN_MOMO_SUBSCRIPTION_KEY", "")
	cfg.MtnMomoAPIUser = getEnv("MTN_MOMO_API_USER", "")
	cfg.MtnMomoAPIKey = getEnv("MTN_MOMO_API_KEY", "")
	cfg.MtnMomoTargetEnv = getEnv("MTN_MOMO_TARGET_ENV", "sandbox")
	cfg.AirtelBaseURL = getEnv("AIRTEL_BASE_URL", "https://openapiuat.airtel.africa")
	cfg.AirtelClientID = getEnv("AIRTEL_CLIENT_ID", "")
	cfg.AirtelClientSecret = getEnv("AIRTEL_CLIENT_SECRET", "")

	cfg.SmtpHost = getEnv("SMTP_HOST", "")
	cfg.SmtpUsername = getEnv("SMTP_USERNAME", "")
	cfg.SmtpPassword = getEnv("SMTP_PASSWORD", "")
	cfg.SmtpFromAddress = getEnv("SMTP_FROM_ADDRESS", "billing@rentpay.example.com")

	cfg.AwsAccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	cfg.AwsSecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
	cfg.AwsRegion = getEnv("AWS_REGION", "")
	cfg.AwsS3Bucket = getEnv("AWS_S3_BUCKET", "")
	cfg.StatementKeyPrefix = getEnv("STATEMENT_KEY_PREFIX", "statements")

	cfg.AppName = getEnv("APP_NAME", "RentPay")

	// Load numeric and time duration values with defaults and parsing
	cfg.RedisDB, err = strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	jwtTTLSeconds, err := strconv.ParseInt(getEnv("JWT_TTL_SECONDS", "3600"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid JWT_TTL_SECONDS: %w", err)
	}
	cfg.JwtTTL = time.Duration(jwtTTLSeconds) * time.Second

	cfg.SmtpPort, err = strconv.Atoi(getEnv("SMTP_PORT", "587"))
	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	cfg.LateFeeGraceDays, err = strconv.Atoi(getEnv("LATE_FEE_GRACE_DAYS", "5"))
	if err != nil {
		return nil, fmt.Errorf("invalid LATE_FEE_GRACE_DAYS: %w", err)
	}

	cfg.ReminderDaysBefore, err = strconv.Atoi(getEnv("REMINDER_DAYS_BEFORE", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid REMINDER_DAYS_BEFORE: %w", err)
	}

	gatewayTimeoutSeconds, err := strconv.ParseInt(getEnv("GATEWAY_TIMEOUT_SECONDS", "15"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS: %w", err)
	}
	cfg.GatewayTimeout = time.Duration(gatewayTimeoutSeconds) * time.Second

	// Rate Limiting
	cfg.RateLimitSoftBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_BUCKET_SIZE", "2"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitSoftRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_SOFT_REFILL_RATE", "1"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_SOFT_REFILL_RATE: %w", err)
	}
	cfg.RateLimitHardBucketSize, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_BUCKET_SIZE", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_BUCKET_SIZE: %w", err)
	}
	cfg.RateLimitHardRefillRate, err = strconv.Atoi(getEnv("RATE_LIMIT_HARD_REFILL_RATE", "4"))
	if err != nil {
		return nil, fmt.Errorf("invalid RATE_LIMIT_HARD_REFILL_RATE: %w", err)
	}

	return cfg, nil
}
