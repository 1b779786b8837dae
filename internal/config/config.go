package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// API
	APIURL     string
	APITimeout time.Duration

	// Outgoing rate limit; zero RPS disables it
	RateLimitRPS   int
	RateLimitBurst int

	// Session persistence: sqlite file path or postgres:// DSN
	SessionDSN  string
	Environment string

	// Admin console
	AdminDenyDelay        time.Duration
	AdminDialogCloseDelay time.Duration
	ReloadDelay           time.Duration
	BackupDir             string

	// Chats
	ParticipantConcurrency int
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		APIURL:                 getEnv("API_URL", "http://localhost:8000"),
		APITimeout:             time.Duration(getEnvInt("API_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitRPS:           getEnvInt("RATE_LIMIT_RPS", 0),
		RateLimitBurst:         getEnvInt("RATE_LIMIT_BURST", 10),
		SessionDSN:             getEnv("SESSION_DSN", defaultSessionPath()),
		Environment:            getEnv("ENVIRONMENT", "development"),
		AdminDenyDelay:         time.Duration(getEnvInt("ADMIN_DENY_DELAY_MS", 3000)) * time.Millisecond,
		AdminDialogCloseDelay:  time.Duration(getEnvInt("ADMIN_DIALOG_CLOSE_DELAY_MS", 2000)) * time.Millisecond,
		ReloadDelay:            time.Duration(getEnvInt("RELOAD_DELAY_MS", 2000)) * time.Millisecond,
		BackupDir:              getEnv("BACKUP_DIR", "."),
		ParticipantConcurrency: getEnvInt("PARTICIPANT_CONCURRENCY", 4),
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("API_URL must be an absolute URL, got %q", cfg.APIURL)
	}
	if cfg.ParticipantConcurrency < 1 {
		return nil, fmt.Errorf("PARTICIPANT_CONCURRENCY must be positive")
	}

	return cfg, nil
}

func defaultSessionPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "chatctl-session.db"
	}
	return dir + string(os.PathSeparator) + "chatctl" + string(os.PathSeparator) + "session.db"
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}
