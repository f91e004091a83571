package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the service, loaded from the
// environment (with an optional .env file for local development).
type Config struct {
	DatabaseURL  string
	JWTSecretKey string
	ServerPort   int

	// External collaborators.
	EngineBaseURL   string
	RegistryBaseURL string
	EngineTimeout   time.Duration

	// Per-game retry policy of the match executor.
	GameMaxAttempts  int
	GameRetryBackoff time.Duration

	// Replay archive, optional. Archiving is disabled when the R2 settings
	// are absent.
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
	ArchiveInterval   time.Duration
}

func Load() (*Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	engineURL := os.Getenv("ENGINE_BASE_URL")
	if engineURL == "" {
		return nil, fmt.Errorf("ENGINE_BASE_URL environment variable is not set")
	}
	registryURL := os.Getenv("REGISTRY_BASE_URL")
	if registryURL == "" {
		return nil, fmt.Errorf("REGISTRY_BASE_URL environment variable is not set")
	}

	port, err := intEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	engineTimeout, err := durationEnv("ENGINE_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := intEnv("GAME_MAX_ATTEMPTS", 3)
	if err != nil {
		return nil, err
	}
	retryBackoff, err := durationEnv("GAME_RETRY_BACKOFF", 2*time.Second)
	if err != nil {
		return nil, err
	}
	archiveInterval, err := durationEnv("ARCHIVE_INTERVAL", 12*time.Hour)
	if err != nil {
		return nil, err
	}

	return &Config{
		DatabaseURL:  dbURL,
		JWTSecretKey: jwtKey,
		ServerPort:   port,

		EngineBaseURL:   engineURL,
		RegistryBaseURL: registryURL,
		EngineTimeout:   engineTimeout,

		GameMaxAttempts:  maxAttempts,
		GameRetryBackoff: retryBackoff,

		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
		ArchiveInterval:   archiveInterval,
	}, nil
}

// ArchiveEnabled reports whether the replay archive is fully configured.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" &&
		c.R2SecretAccessKey != "" && c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

func intEnv(name string, fallback int) (int, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}

func durationEnv(name string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", name, err)
	}
	return v, nil
}
