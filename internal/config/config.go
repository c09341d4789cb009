package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	PublicBaseURL string
	Timezone      string

	// Session state machine
	SessionBackend       string
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration
	StrictTransitions    bool

	// Per-session rate limiting
	RateLimitWindow time.Duration
	RateLimitMax    int

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Appointment datastore
	DatastoreBackend      string
	DatastoreTimeout      time.Duration
	AirtableBaseURL       string
	AirtableAPIKey        string
	AirtableBaseID        string
	AirtableTable         string
	AirtableDoctorsTable  string
	AirtablePatientsTable string
	DatabaseURL           string

	// Completion service
	CompletionProvider string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	BedrockModelID     string
	GeminiAPIKey       string
	GeminiModelID      string

	// Notifications
	EmailProvider  string
	SendGridAPIKey string
	EmailFrom      string
	EmailFromName  string

	// Payment handoff
	PaymentProvider     string
	StripeSecretKey     string
	StripeWebhookSecret string
	StripeDryRun        bool
	PaymentSuccessURL   string
	PaymentCancelURL    string
	AppointmentPriceCLP int

	CORSAllowedOrigins []string

	// Public route flood guard, per client IP
	IPRateLimitPerSecond float64
	IPRateLimitBurst     int

	// Booking audit trail
	AuditBackend       string
	AuditArchiveBucket string
	AuditArchivePrefix string
	AdminJWTSecret     string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is honored when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		Timezone:      getEnv("TIMEZONE", "America/Santiago"),

		SessionBackend:       strings.ToLower(getEnv("SESSION_BACKEND", "memory")),
		SessionIdleTimeout:   getEnvAsDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval: getEnvAsDuration("SESSION_SWEEP_INTERVAL", 10*time.Minute),
		StrictTransitions:    getEnvAsBool("STRICT_TRANSITIONS", false),

		RateLimitWindow: getEnvAsDuration("RATE_LIMIT_WINDOW", 60*time.Second),
		RateLimitMax:    getEnvAsInt("RATE_LIMIT_MAX", 20),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DatastoreBackend:      strings.ToLower(getEnv("DATASTORE_BACKEND", "memory")),
		DatastoreTimeout:      getEnvAsDuration("DATASTORE_TIMEOUT", 8*time.Second),
		AirtableBaseURL:       getEnv("AIRTABLE_BASE_URL", "https://api.airtable.com/v0"),
		AirtableAPIKey:        getEnv("AIRTABLE_API_KEY", ""),
		AirtableBaseID:        getEnv("AIRTABLE_BASE_ID", ""),
		AirtableTable:         getEnv("AIRTABLE_TABLE", "Sobrecupos"),
		AirtableDoctorsTable:  getEnv("AIRTABLE_DOCTORS_TABLE", "Doctors"),
		AirtablePatientsTable: getEnv("AIRTABLE_PATIENTS_TABLE", "Patients"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),

		CompletionProvider: strings.ToLower(getEnv("COMPLETION_PROVIDER", "none")),
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		BedrockModelID:     getEnv("BEDROCK_MODEL_ID", ""),
		GeminiAPIKey:       getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:      getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),

		EmailProvider:  strings.ToLower(getEnv("EMAIL_PROVIDER", "stub")),
		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:      getEnv("EMAIL_FROM", ""),
		EmailFromName:  getEnv("EMAIL_FROM_NAME", "Sobrecupos"),

		PaymentProvider:     strings.ToLower(getEnv("PAYMENT_PROVIDER", "fake")),
		StripeSecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeDryRun:        getEnvAsBool("STRIPE_DRY_RUN", false),
		PaymentSuccessURL:   getEnv("PAYMENT_SUCCESS_URL", ""),
		PaymentCancelURL:    getEnv("PAYMENT_CANCEL_URL", ""),
		AppointmentPriceCLP: getEnvAsInt("APPOINTMENT_PRICE_CLP", 2990),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		IPRateLimitPerSecond: getEnvAsFloat("IP_RATE_LIMIT_PER_SECOND", 5),
		IPRateLimitBurst:     getEnvAsInt("IP_RATE_LIMIT_BURST", 20),

		AuditBackend:       strings.ToLower(getEnv("AUDIT_BACKEND", "memory")),
		AuditArchiveBucket: getEnv("AUDIT_ARCHIVE_BUCKET", ""),
		AuditArchivePrefix: getEnv("AUDIT_ARCHIVE_PREFIX", "audit/v1"),
		AdminJWTSecret:     getEnv("ADMIN_JWT_SECRET", ""),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil && value >= 0 {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
