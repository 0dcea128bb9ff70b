// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// RedisConfig provides settings for the Redis-backed booking lock and queue.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq delivery queue.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// JWTConfig provides reviewer token validation settings for middleware.
type JWTConfig interface {
	GetJWTReviewerSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetMessageRateLimit() float64
	GetMessageRateBurst() int
}

// NLUConfig provides settings for the intent/entity detection provider.
type NLUConfig interface {
	GetNLUProvider() string
	GetMoonshotAPIKey() string
	GetNLUModel() string
	GetNLUTimeout() time.Duration
}

// ConversationConfig provides settings for the turn engine.
type ConversationConfig interface {
	GetPolicyFile() string
	GetChoiceTTL() time.Duration
	GetLockTTL() time.Duration
	GetHILLateStepReview() bool
}

// EmailConfig provides settings for outbound reply delivery over SMTP.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env               string
	HTTPAddr          string
	DatabaseURL       string
	RedisURL          string
	RedisTLSInsecure  bool
	AsynqQueueName    string
	AsynqConcurrency  int
	// DeliveryInProcess runs the delivery worker inside the API binary.
	DeliveryInProcess bool
	JWTReviewerSecret string
	CORSAllowAll      bool
	CORSOrigins       []string
	MessageRateLimit  float64
	MessageRateBurst  int
	NLUProvider       string
	MoonshotAPIKey    string
	NLUModel          string
	NLUTimeout        time.Duration
	PolicyFile        string
	ChoiceTTL         time.Duration
	LockTTL           time.Duration
	HILLateStepReview bool
	SMTPHost          string
	SMTPPort          int
	SMTPUsername      string
	SMTPPassword      string
	EmailFromName     string
	EmailFromAddress  string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// RedisConfig / SchedulerConfig implementation
func (c *Config) GetRedisURL() string        { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool  { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string  { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int   { return c.AsynqConcurrency }

// JWTConfig implementation
func (c *Config) GetJWTReviewerSecret() string { return c.JWTReviewerSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string          { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool        { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string     { return c.CORSOrigins }
func (c *Config) GetMessageRateLimit() float64 { return c.MessageRateLimit }
func (c *Config) GetMessageRateBurst() int     { return c.MessageRateBurst }

// NLUConfig implementation
func (c *Config) GetNLUProvider() string         { return c.NLUProvider }
func (c *Config) GetMoonshotAPIKey() string      { return c.MoonshotAPIKey }
func (c *Config) GetNLUModel() string            { return c.NLUModel }
func (c *Config) GetNLUTimeout() time.Duration   { return c.NLUTimeout }

// ConversationConfig implementation
func (c *Config) GetPolicyFile() string          { return c.PolicyFile }
func (c *Config) GetChoiceTTL() time.Duration    { return c.ChoiceTTL }
func (c *Config) GetLockTTL() time.Duration      { return c.LockTTL }
func (c *Config) GetHILLateStepReview() bool     { return c.HILLateStepReview }

// EmailConfig implementation
func (c *Config) GetEmailEnabled() bool       { return c.SMTPHost != "" && c.EmailFromAddress != "" }
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))

	cfg := &Config{
		Env:               getEnv("APP_ENV", "development"),
		HTTPAddr:          getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", ""),
		RedisTLSInsecure:  strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:    getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:  int(mustInt64(getEnv("ASYNQ_CONCURRENCY", "10"))),
		DeliveryInProcess: strings.EqualFold(getEnv("DELIVERY_WORKER_INPROCESS", "false"), "true"),
		JWTReviewerSecret: getEnv("JWT_REVIEWER_SECRET", ""),
		CORSAllowAll:      containsWildcard(corsOrigins),
		CORSOrigins:       corsOrigins,
		MessageRateLimit:  mustFloat(getEnv("MESSAGE_RATE_LIMIT", "2")),
		MessageRateBurst:  int(mustInt64(getEnv("MESSAGE_RATE_BURST", "10"))),
		NLUProvider:       strings.ToLower(getEnv("NLU_PROVIDER", "rules")),
		MoonshotAPIKey:    getEnv("MOONSHOT_API_KEY", ""),
		NLUModel:          getEnv("NLU_MODEL", "kimi-k2.5"),
		NLUTimeout:        mustDuration(getEnv("NLU_TIMEOUT", "8s")),
		PolicyFile:        getEnv("POLICY_FILE", ""),
		ChoiceTTL:         mustDuration(getEnv("CHOICE_TTL", "30m")),
		LockTTL:           mustDuration(getEnv("BOOKING_LOCK_TTL", "45s")),
		HILLateStepReview: strings.EqualFold(getEnv("HIL_LATE_STEP_REVIEW", "false"), "true"),
		SMTPHost:          getEnv("SMTP_HOST", ""),
		SMTPPort:          int(mustInt64(getEnv("SMTP_PORT", "587"))),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		EmailFromName:     getEnv("EMAIL_FROM_NAME", "Venue Bookings"),
		EmailFromAddress:  getEnv("EMAIL_FROM_ADDRESS", ""),
	}

	if cfg.JWTReviewerSecret == "" {
		return nil, fmt.Errorf("JWT_REVIEWER_SECRET is required")
	}
	if cfg.NLUProvider != "rules" && cfg.NLUProvider != "llm" {
		return nil, fmt.Errorf("NLU_PROVIDER must be rules or llm, got %q", cfg.NLUProvider)
	}
	if cfg.NLUProvider == "llm" && cfg.MoonshotAPIKey == "" {
		return nil, fmt.Errorf("MOONSHOT_API_KEY is required when NLU_PROVIDER is llm")
	}
	if cfg.NLUTimeout <= 0 {
		return nil, fmt.Errorf("NLU_TIMEOUT must be a positive duration")
	}
	if cfg.ChoiceTTL <= 0 {
		cfg.ChoiceTTL = 30 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 45 * time.Second
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
