package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL        string
	ListenAddr         string
	JWTSecret          string
	GoogleClientID     string
	GoogleClientSecret string
	SyncStartDate      time.Time     // epoch for period selection
	ExecutionBudget    time.Duration // wall-clock budget per sync invocation
	WatcherEnabled     bool
	PollInterval       int // seconds
	ShutdownTimeout    int // seconds
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error in production)
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	googleClientID := os.Getenv("GOOGLE_CLIENT_ID")
	googleClientSecret := os.Getenv("GOOGLE_CLIENT_SECRET")
	if googleClientID == "" || googleClientSecret == "" {
		fmt.Println("Warning: GOOGLE_CLIENT_ID or GOOGLE_CLIENT_SECRET not set, Google API will not work")
	}

	listenAddr := os.Getenv("LISTEN_ADDR")
	if listenAddr == "" {
		listenAddr = ":8080"
	}

	syncStart := os.Getenv("SYNC_START_DATE")
	if syncStart == "" {
		syncStart = "2024-01-01"
	}
	epoch, err := time.Parse("2006-01-02", syncStart)
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_START_DATE %q: %w", syncStart, err)
	}

	budget := 108 * time.Second // stay under the host execution limit
	if v := os.Getenv("EXECUTION_BUDGET_SECONDS"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid EXECUTION_BUDGET_SECONDS %q", v)
		}
		budget = time.Duration(secs) * time.Second
	}

	return &Config{
		DatabaseURL:        dbURL,
		ListenAddr:         listenAddr,
		JWTSecret:          jwtSecret,
		GoogleClientID:     googleClientID,
		GoogleClientSecret: googleClientSecret,
		SyncStartDate:      epoch,
		ExecutionBudget:    budget,
		WatcherEnabled:     os.Getenv("WATCHER_ENABLED") != "false",
		PollInterval:       30, // poll every 30 seconds
		ShutdownTimeout:    30,
	}, nil
}
