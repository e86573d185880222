package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// App holds the runtime configuration loaded from environment variables.
type App struct {
	Env              string
	HTTPPort         string
	APIBaseURL       string
	GatewayTimeout   time.Duration
	NotifyTimeout    time.Duration
	SessionIdleTTL   time.Duration
	RateLimitPerMin  int
	RateLimitBackend string
	RedisAddr        string
	LogLevel         string

	CloudinaryCloudName string
	CloudinaryAPIKey    string
	CloudinaryAPISecret string
	CloudinaryFolder    string
}

// Load reads .env when present and returns config populated from environment
// variables with sensible defaults. Variables already set win over .env.
// Problems with individual values fall back to the default and are returned
// as warnings for the caller to log.
func Load() (App, []string) {
	var l loader
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.warn("ignoring .env: %v", err)
	}
	cfg := App{
		Env:              getEnv("APP_ENV", "dev"),
		HTTPPort:         getEnv("HTTP_PORT", "8081"),
		APIBaseURL:       getEnv("API_BASE_URL", "https://birthdayflutter-backend.onrender.com"),
		GatewayTimeout:   l.durationEnv("GATEWAY_TIMEOUT", 30*time.Second),
		NotifyTimeout:    l.durationEnv("NOTIFY_TIMEOUT", 6*time.Second),
		SessionIdleTTL:   l.durationEnv("SESSION_IDLE_TTL", 30*time.Minute),
		RateLimitPerMin:  l.intEnv("RATE_LIMIT_PER_MIN", 120),
		RateLimitBackend: getEnv("RATE_LIMIT_BACKEND", "memory"),
		RedisAddr:        getEnv("REDIS_ADDR", "localhost:6379"),
		LogLevel:         getEnv("LOG_LEVEL", "info"),

		CloudinaryCloudName: os.Getenv("CLOUDINARY_CLOUD_NAME"),
		CloudinaryAPIKey:    os.Getenv("CLOUDINARY_API_KEY"),
		CloudinaryAPISecret: os.Getenv("CLOUDINARY_API_SECRET"),
		CloudinaryFolder:    getEnv("CLOUDINARY_FOLDER", "birthdays"),
	}
	return cfg, l.warnings
}

// Production reports whether gin should run in release mode.
func (a App) Production() bool {
	return a.Env == "production" || a.Env == "prod"
}

// CloudinaryConfigured reports whether every Cloudinary credential is set.
func (a App) CloudinaryConfigured() bool {
	return a.CloudinaryCloudName != "" && a.CloudinaryAPIKey != "" && a.CloudinaryAPISecret != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

// loader collects warnings until a logger exists.
type loader struct {
	warnings []string
}

func (l *loader) warn(format string, args ...any) {
	l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
}

func (l *loader) durationEnv(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil || d <= 0 {
			l.warn("invalid duration for %s: %q, using fallback %s", key, val, fallback)
			return fallback
		}
		return d
	}
	return fallback
}

func (l *loader) intEnv(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
		l.warn("invalid int for %s: %q, using fallback %d", key, val, fallback)
	}
	return fallback
}
