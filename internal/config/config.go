package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	BackendSupabase = "supabase"
	BackendSQLite   = "sqlite"
)

// DevJWTSecret is the JWT_SECRET fallback. It is public, so it is only
// accepted while auth is disabled.
const DevJWTSecret = "pdv-default-dev-secret-change-me"

// Config holds all application configuration.
// Values are loaded from environment variables with sensible defaults.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// External services
	ClassifierAPIURL  string // classificador de comandos (POST /v1/commands/classify)
	TranscriberAPIURL string // speech-to-text (POST /v1/transcribe); vazio desliga a voz
	ChatAgentURL      string // URL do Agent Python para o chat (POST /v1/chat)

	// HTTP client
	HTTPTimeout time.Duration

	// Classifier retry: fixed delay, bounded attempts
	ClassifierMaxRetries int
	ClassifierRetryDelay time.Duration

	// Resilience (store and chat agent)
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Capture sessions
	SessionTTL          time.Duration
	SuccessDismissDelay time.Duration
	SpeechStartTimeout  time.Duration
	SpeechBlockedWindow time.Duration
	VoiceCaptureTimeout time.Duration

	// Observability
	OTLPEndpoint string

	// Persistence
	StoreBackend       string
	SQLitePath         string
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// JWT / Auth
	JWTSecret    string
	AuthEnabled  bool
	DefaultStore string // loja usada quando AUTH_ENABLED=false
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	return &Config{
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		ClassifierAPIURL:  getEnv("CLASSIFIER_API_URL", "http://localhost:8090"),
		TranscriberAPIURL: getEnv("TRANSCRIBER_API_URL", ""),
		ChatAgentURL:      getEnv("CHAT_AGENT_URL", ""),

		HTTPTimeout: getEnvDuration("HTTP_TIMEOUT", 10*time.Second),

		ClassifierMaxRetries: getEnvInt("CLASSIFIER_MAX_RETRIES", 2),
		ClassifierRetryDelay: getEnvDuration("CLASSIFIER_RETRY_DELAY", time.Second),

		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		InitialBackoff: getEnvDuration("INITIAL_BACKOFF", 100*time.Millisecond),
		MaxConcurrency: getEnvInt("MAX_CONCURRENCY", 50),

		SessionTTL:          getEnvDuration("SESSION_TTL", 30*time.Minute),
		SuccessDismissDelay: getEnvDuration("SUCCESS_DISMISS_DELAY", 1500*time.Millisecond),
		SpeechStartTimeout:  getEnvDuration("SPEECH_START_TIMEOUT", 8*time.Second),
		SpeechBlockedWindow: getEnvDuration("SPEECH_BLOCKED_WINDOW", 500*time.Millisecond),
		VoiceCaptureTimeout: getEnvDuration("VOICE_CAPTURE_TIMEOUT", 30*time.Second),

		OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),

		StoreBackend:       strings.ToLower(getEnv("STORE_BACKEND", BackendSQLite)),
		SQLitePath:         getEnv("SQLITE_PATH", "data/pdv.db"),
		SupabaseURL:        getEnv("SUPABASE_URL", ""),
		SupabaseAnonKey:    getEnv("SUPABASE_ANON_KEY", ""),
		SupabaseServiceKey: getEnv("SUPABASE_SERVICE_ROLE_KEY", ""),

		JWTSecret:    getEnv("JWT_SECRET", DevJWTSecret),
		AuthEnabled:  getEnvBool("AUTH_ENABLED", false),
		DefaultStore: getEnv("DEFAULT_STORE_ID", "local"),
	}
}

// Validate reports settings the service must not start with.
func (c *Config) Validate() error {
	if c.AuthEnabled && (c.JWTSecret == "" || c.JWTSecret == DevJWTSecret) {
		return errors.New("AUTH_ENABLED=true requires JWT_SECRET to be set to a private value")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
