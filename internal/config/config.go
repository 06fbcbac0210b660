package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// CORS configuration
	CORS CORSConfig

	// Booking lifecycle and reaper configuration
	Booking BookingConfig

	// Payment provider configuration
	Payment PaymentConfig

	// Redis (optional, used for the reaper leader lock)
	Redis RedisConfig

	// Kafka (optional, used for outbound booking/payment events)
	Kafka KafkaConfig

	// Ticket document configuration
	Tickets TicketConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	TxMaxAttempts      int // attempts for a transaction that hits serialization/deadlock errors
}

// JWTConfig holds JWT-related configuration.
// Tokens are issued by the identity service; this service only validates them.
type JWTConfig struct {
	Secret string
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds booking lifecycle configuration
type BookingConfig struct {
	Currency              string
	PendingPaymentTimeout time.Duration // unpaid bookings older than this are reaped
	ReaperInterval        time.Duration
	ReaperBatchSize       int
	TripStatusCronSpec    string // robfig/cron spec (with seconds) for the trip status sweep
}

// PaymentConfig holds payment provider configuration
type PaymentConfig struct {
	Stripe  StripeConfig
	PAYable PAYableConfig
}

// StripeConfig holds Stripe Checkout configuration
type StripeConfig struct {
	SecretKey     string // SECRET - never expose to client
	WebhookSecret string // shared secret for Stripe-Signature verification
	APIBaseURL    string
	SuccessURL    string
	CancelURL     string
}

// PAYableConfig holds PAYable IPG configuration
type PAYableConfig struct {
	Environment   string // "sandbox" or "production"
	MerchantKey   string
	MerchantToken string // SECRET - never expose to client
	LogoURL       string
	ReturnURL     string
	WebhookURL    string
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// KafkaConfig holds Kafka producer settings
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// TicketConfig holds settings for rendered ticket documents
type TicketConfig struct {
	OutputDir string
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
			TxMaxAttempts:      getEnvAsInt("DATABASE_TX_MAX_ATTEMPTS", 3),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", ""),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "Stripe-Signature"}),
		},
		Booking: BookingConfig{
			Currency:              getEnv("BOOKING_CURRENCY", "RWF"),
			PendingPaymentTimeout: time.Duration(getEnvAsInt("PENDING_PAYMENT_TIMEOUT_MINUTES", 5)) * time.Minute,
			ReaperInterval:        time.Duration(getEnvAsInt("REAPER_INTERVAL_SECONDS", 60)) * time.Second,
			ReaperBatchSize:       getEnvAsInt("REAPER_BATCH_SIZE", 100),
			TripStatusCronSpec:    getEnv("TRIP_STATUS_CRON", "0 0 * * * *"), // top of every hour
		},
		Payment: PaymentConfig{
			Stripe: StripeConfig{
				SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
				WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
				APIBaseURL:    getEnv("STRIPE_API_BASE_URL", "https://api.stripe.com"),
				SuccessURL:    getEnv("STRIPE_SUCCESS_URL", "http://localhost:3000/payment/success"),
				CancelURL:     getEnv("STRIPE_CANCEL_URL", "http://localhost:3000/payment/cancel"),
			},
			PAYable: PAYableConfig{
				Environment:   getEnv("PAYABLE_ENVIRONMENT", "sandbox"),
				MerchantKey:   getEnv("PAYABLE_MERCHANT_KEY", ""),
				MerchantToken: getEnv("PAYABLE_MERCHANT_TOKEN", ""),
				LogoURL:       getEnv("PAYABLE_LOGO_URL", ""),
				ReturnURL:     getEnv("PAYABLE_RETURN_URL", ""),
				WebhookURL:    getEnv("PAYABLE_WEBHOOK_URL", ""),
			},
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvAsSlice("KAFKA_BROKERS", nil),
			Topic:   getEnv("KAFKA_TOPIC", "ticketing.events"),
		},
		Tickets: TicketConfig{
			OutputDir: getEnv("TICKETS_OUTPUT_DIR", "tickets"),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.Database.TxMaxAttempts < 1 {
		return fmt.Errorf("DATABASE_TX_MAX_ATTEMPTS must be at least 1")
	}

	if c.Booking.PendingPaymentTimeout <= 0 {
		return fmt.Errorf("PENDING_PAYMENT_TIMEOUT_MINUTES must be positive")
	}

	if c.Booking.ReaperInterval <= 0 {
		return fmt.Errorf("REAPER_INTERVAL_SECONDS must be positive")
	}

	// A webhook secret without an API key (or the reverse) means a half-configured provider
	if (c.Payment.Stripe.SecretKey == "") != (c.Payment.Stripe.WebhookSecret == "") {
		return fmt.Errorf("STRIPE_SECRET_KEY and STRIPE_WEBHOOK_SECRET must be set together")
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		trimmed := strings.TrimSpace(v)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
