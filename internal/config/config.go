// Package config loads the server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	// DriverSQLite3 is github.com/mattn/go-sqlite3 (cgo).
	DriverSQLite3 = "sqlite3"
	// DriverSQLite is modernc.org/sqlite (pure Go).
	DriverSQLite = "sqlite"

	minJWTSecretLen = 32
)

type Config struct {
	DBDriver         string
	DSN              string
	ServerPort       string
	JWTSecret        string
	JWTTTL           time.Duration
	AdminInviteToken string
	UploadDir        string
}

// Load reads .env when it exists and builds the Config from the environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("loading .env file: %w", err)
		}
	}
	return FromEnv()
}

func FromEnv() (*Config, error) {
	cfg := &Config{
		DBDriver:         getenv("DB_DRIVER", DriverPostgres),
		ServerPort:       os.Getenv("SERVER_PORT"),
		JWTSecret:        os.Getenv("JWT_SECRET"),
		AdminInviteToken: os.Getenv("ADMIN_INVITE_TOKEN"),
		UploadDir:        getenv("UPLOAD_DIR", "uploads"),
	}

	required := []string{"SERVER_PORT", "JWT_SECRET"}
	switch cfg.DBDriver {
	case DriverPostgres:
		required = append(required,
			"POSTGRES_USER", "POSTGRES_PASSWORD", "POSTGRES_DB",
			"POSTGRES_HOST", "POSTGRES_PORT")
	case DriverSQLite3, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	for _, env := range required {
		if os.Getenv(env) == "" {
			return nil, fmt.Errorf("environment variable %s must be set", env)
		}
	}
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return nil, errors.New("JWT_SECRET must be at least 32 characters")
	}

	ttl, err := time.ParseDuration(getenv("JWT_TTL", "24h"))
	if err != nil || ttl <= 0 {
		return nil, fmt.Errorf("invalid JWT_TTL %q", os.Getenv("JWT_TTL"))
	}
	cfg.JWTTTL = ttl

	if cfg.DBDriver == DriverPostgres {
		cfg.DSN = fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
			os.Getenv("POSTGRES_HOST"), os.Getenv("POSTGRES_USER"),
			os.Getenv("POSTGRES_PASSWORD"), os.Getenv("POSTGRES_DB"),
			os.Getenv("POSTGRES_PORT"))
	} else {
		cfg.DSN = getenv("SQLITE_PATH", "task-manager.db")
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
