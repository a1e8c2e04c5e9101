package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
)

var (
	// Core service settings
	DatabaseURL   = getEnvWithDefault("DATABASE_URL", "file:reframe.db")
	BrokerURL     = getEnvWithDefault("BROKER_URL", "redis://localhost:6379/0")
	ResultBackend = getEnvWithDefault("RESULT_BACKEND", "")
	MediaRoot     = getEnvWithDefault("MEDIA_ROOT", "./media")
	APITitle      = getEnvWithDefault("API_TITLE", "Reframe API")
	APIVersion    = getEnvWithDefault("API_VERSION", "0.1.0")

	// Logging
	LogFormat = getEnvWithDefault("LOG_FORMAT", "json") // "json" or "plain"
	LogLevel  = getEnvWithDefault("LOG_LEVEL", "info")

	// Request limits
	RateLimitRequests      = getEnvInt("RATE_LIMIT_REQUESTS", 60)
	RateLimitWindowSeconds = getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)
	MaxUploadBytes         = getEnvInt64("MAX_UPLOAD_BYTES", 0) // 0 disables the cap

	// Tmp cleanup
	CleanupTTLHours        = getEnvInt("CLEANUP_TTL_HOURS", 24)
	CleanupIntervalSeconds = getEnvInt("CLEANUP_INTERVAL_SECONDS", 3600)

	// Storage backend selection: "local", "s3" or "r2"
	StorageBackend = getEnvWithDefault("STORAGE_BACKEND", "local")

	// S3/R2 configuration
	S3Bucket                = os.Getenv("S3_BUCKET")
	S3Prefix                = os.Getenv("S3_PREFIX")
	S3Region                = getEnvWithDefault("S3_REGION", "auto")
	S3EndpointURL           = os.Getenv("S3_ENDPOINT_URL")
	S3PublicBaseURL         = os.Getenv("S3_PUBLIC_BASE_URL")
	S3PresignExpiresSeconds = getEnvInt("S3_PRESIGN_EXPIRES_SECONDS", 604800)
	S3AccessKeyID           = os.Getenv("S3_ACCESS_KEY_ID")
	S3SecretAccessKey       = os.Getenv("S3_SECRET_ACCESS_KEY")
	S3SessionToken          = os.Getenv("S3_SESSION_TOKEN")

	// Pipeline retry policy
	JobRetryMaxAttempts      = getEnvInt("JOB_RETRY_MAX_ATTEMPTS", 3)
	JobRetryBaseDelaySeconds = getEnvFloat("JOB_RETRY_BASE_DELAY_SECONDS", 1.0)
)

// OfflineMode reports whether outbound network calls are forbidden.
// Any truthy value of OFFLINE_MODE enables it.
func OfflineMode() bool {
	return truthy(os.Getenv("OFFLINE_MODE"))
}

// ResolveResultBackend returns RESULT_BACKEND, falling back to BROKER_URL.
func ResolveResultBackend() string {
	if ResultBackend != "" {
		return ResultBackend
	}
	return BrokerURL
}

// SlogLevel maps LOG_LEVEL to a slog level.
func SlogLevel() slog.Level {
	switch strings.ToLower(LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Reload re-reads every setting from the environment. Tests call this after
// mutating env vars.
func Reload() {
	DatabaseURL = getEnvWithDefault("DATABASE_URL", "file:reframe.db")
	BrokerURL = getEnvWithDefault("BROKER_URL", "redis://localhost:6379/0")
	ResultBackend = getEnvWithDefault("RESULT_BACKEND", "")
	MediaRoot = getEnvWithDefault("MEDIA_ROOT", "./media")
	APITitle = getEnvWithDefault("API_TITLE", "Reframe API")
	APIVersion = getEnvWithDefault("API_VERSION", "0.1.0")
	LogFormat = getEnvWithDefault("LOG_FORMAT", "json")
	LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	RateLimitRequests = getEnvInt("RATE_LIMIT_REQUESTS", 60)
	RateLimitWindowSeconds = getEnvInt("RATE_LIMIT_WINDOW_SECONDS", 60)
	MaxUploadBytes = getEnvInt64("MAX_UPLOAD_BYTES", 0)
	CleanupTTLHours = getEnvInt("CLEANUP_TTL_HOURS", 24)
	CleanupIntervalSeconds = getEnvInt("CLEANUP_INTERVAL_SECONDS", 3600)
	StorageBackend = getEnvWithDefault("STORAGE_BACKEND", "local")
	S3Bucket = os.Getenv("S3_BUCKET")
	S3Prefix = os.Getenv("S3_PREFIX")
	S3Region = getEnvWithDefault("S3_REGION", "auto")
	S3EndpointURL = os.Getenv("S3_ENDPOINT_URL")
	S3PublicBaseURL = os.Getenv("S3_PUBLIC_BASE_URL")
	S3PresignExpiresSeconds = getEnvInt("S3_PRESIGN_EXPIRES_SECONDS", 604800)
	S3AccessKeyID = os.Getenv("S3_ACCESS_KEY_ID")
	S3SecretAccessKey = os.Getenv("S3_SECRET_ACCESS_KEY")
	S3SessionToken = os.Getenv("S3_SESSION_TOKEN")
	JobRetryMaxAttempts = getEnvInt("JOB_RETRY_MAX_ATTEMPTS", 3)
	JobRetryBaseDelaySeconds = getEnvFloat("JOB_RETRY_BASE_DELAY_SECONDS", 1.0)
}

func truthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

func getEnvWithDefault(key, defaultValue string) string {
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
