package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	BackendFirestore = "firestore"
	BackendSQLite    = "sqlite"
)

type Config struct {
	HTTPPort string
	LogLevel string

	JWTSecret string
	TokenTTL  time.Duration
	DevLogin  bool

	Backend            string
	FirestoreProjectID string
	CredentialsFile    string
	DatabaseURL        string
	PollInterval       time.Duration

	RedisURL         string
	LastSeenThrottle time.Duration

	DisplayTimezone string
}

var AppConfig Config

func LoadConfig() {
	err := godotenv.Load() // Load .env file if it exists
	if err != nil {
		log.Info().Msg("No .env file found, relying on environment variables")
	}

	AppConfig = Config{
		HTTPPort:           getEnv("HTTP_PORT", "8080"),
		LogLevel:           getEnv("LOG_LEVEL", "INFO"),
		JWTSecret:          getEnv("JWT_SECRET", ""),
		TokenTTL:           getEnvAsDuration("TOKEN_TTL", 24*time.Hour),
		DevLogin:           getEnvAsBool("DEV_LOGIN", false),
		Backend:            strings.ToLower(getEnv("BACKEND", BackendFirestore)),
		FirestoreProjectID: getEnv("FIRESTORE_PROJECT_ID", ""),
		CredentialsFile:    getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		DatabaseURL:        getEnv("DATABASE_URL", "firechat.db"),
		PollInterval:       getEnvAsDuration("POLL_INTERVAL", 500*time.Millisecond),
		RedisURL:           getEnv("REDIS_URL", ""),
		LastSeenThrottle:   getEnvAsDuration("LAST_SEEN_THROTTLE", 0),
		DisplayTimezone:    getEnv("DISPLAY_TIMEZONE", "Local"),
	}

	if AppConfig.JWTSecret == "" {
		log.Fatal().Msg("JWT_SECRET environment variable is required")
	}

	switch AppConfig.Backend {
	case BackendFirestore:
		if AppConfig.FirestoreProjectID == "" {
			log.Fatal().Msg("FIRESTORE_PROJECT_ID environment variable is required for the firestore backend")
		}
	case BackendSQLite:
	default:
		log.Fatal().Str("backend", AppConfig.Backend).Msg("BACKEND must be one of firestore, sqlite")
	}
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsDuration accepts Go durations ("90s") or a bare number of seconds.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(valueStr); err == nil {
		return time.Duration(secs) * time.Second
	}
	log.Warn().Str("key", key).Str("value", valueStr).Msg("Invalid duration, using default")
	return defaultValue
}
