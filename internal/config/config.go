// Package config provides environment configuration for the support desk
// backend and terminal client.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Client settings
	APIURL         string
	SessionFile    string
	LogFile        string
	RequestTimeout time.Duration
	AIName         string

	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSAllowedOrigins []string

	// Storage
	DatabaseDSN   string
	SeedDemoData  bool
	AIAgentID     int64
	AssignableIDs []int64
	FAQFile       string

	// NATS settings
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret     string
	JWTExpiration time.Duration

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	DefaultLLM      string
	LLMModel        string
	LLMBaseURL      string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
	Env      string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from an optional .env file and the environment.
// Variables already set in the environment win over the .env file.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		// Client
		APIURL:         strings.TrimRight(getEnv("SUPPORTDESK_API_URL", "http://127.0.0.1:5000"), "/"),
		SessionFile:    getEnv("SUPPORTDESK_SESSION_FILE", defaultSessionFile()),
		LogFile:        getEnv("SUPPORTDESK_LOG_FILE", "supportdesk.log"),
		RequestTimeout: getDurationEnv("SUPPORTDESK_REQUEST_TIMEOUT", 0),
		AIName:         getEnv("SUPPORTDESK_AI_NAME", "Ruri AI"),

		// Server
		ServerPort:         getEnv("PORT", "5000"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSAllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://127.0.0.1:3000"}),

		// Storage
		DatabaseDSN:   getEnv("DATABASE_DSN", ""),
		SeedDemoData:  getBoolEnv("SEED_DEMO_DATA", true),
		AIAgentID:     int64(getIntEnv("AI_AGENT_ID", 10)),
		AssignableIDs: getInt64ListEnv("ASSIGNABLE_EMPLOYEE_IDS", []int64{1, 2, 13, 14, 15}),
		FAQFile:       getEnv("FAQ_FILE", ""),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret:     getEnv("JWT_SECRET", "development-secret-change-in-production"),
		JWTExpiration: getDurationEnv("JWT_EXPIRATION", 12*time.Hour),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMBaseURL:      getEnv("LLM_BASE_URL", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func defaultSessionFile() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return ".supportdesk-session.json"
	}
	return dir + string(os.PathSeparator) + "supportdesk" + string(os.PathSeparator) + "session.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
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

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getInt64ListEnv parses a comma separated id list. Any malformed entry
// discards the whole value in favor of the default.
func getInt64ListEnv(key string, defaultValue []int64) []int64 {
	parts := getListEnv(key, nil)
	if parts == nil {
		return defaultValue
	}
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return defaultValue
		}
		out = append(out, id)
	}
	return out
}
