package config

import (
	"strings"
	"testing"
	"time"
)

const testSecret = "test-secret-32-bytes-long-1234567890"

func setPostgresEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "")
	t.Setenv("POSTGRES_USER", "tm")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DB", "tasks")
	t.Setenv("POSTGRES_HOST", "db")
	t.Setenv("POSTGRES_PORT", "5432")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_TTL", "")
	t.Setenv("UPLOAD_DIR", "")
}

func TestFromEnv_Postgres(t *testing.T) {
	setPostgresEnv(t)

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DBDriver != DriverPostgres {
		t.Errorf("DBDriver = %q, want %q", cfg.DBDriver, DriverPostgres)
	}
	want := "host=db user=tm password=secret dbname=tasks port=5432 sslmode=disable"
	if cfg.DSN != want {
		t.Errorf("DSN = %q, want %q", cfg.DSN, want)
	}
	if cfg.JWTTTL != 24*time.Hour {
		t.Errorf("JWTTTL = %v, want 24h", cfg.JWTTTL)
	}
	if cfg.UploadDir != "uploads" {
		t.Errorf("UploadDir = %q, want uploads", cfg.UploadDir)
	}
}

func TestFromEnv_SQLite(t *testing.T) {
	t.Setenv("DB_DRIVER", DriverSQLite)
	t.Setenv("SQLITE_PATH", "/tmp/tm.db")
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("JWT_TTL", "2h")

	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.DSN != "/tmp/tm.db" {
		t.Errorf("DSN = %q", cfg.DSN)
	}
	if cfg.JWTTTL != 2*time.Hour {
		t.Errorf("JWTTTL = %v, want 2h", cfg.JWTTTL)
	}
}

func TestFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"missing postgres host", "POSTGRES_HOST", "", "POSTGRES_HOST must be set"},
		{"missing server port", "SERVER_PORT", "", "SERVER_PORT must be set"},
		{"short secret", "JWT_SECRET", "short", "at least 32 characters"},
		{"bad driver", "DB_DRIVER", "mysql", "unsupported DB_DRIVER"},
		{"bad ttl", "JWT_TTL", "forever", "invalid JWT_TTL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setPostgresEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := FromEnv()
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
