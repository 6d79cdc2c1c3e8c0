// Package testutil provides an in-memory database and fixtures for package tests.
package testutil

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB opens a migrated in-memory SQLite database that is closed with the test.
func NewTestDB(t testing.TB) *sql.DB {
	t.Helper()
	dbx, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// every connection to :memory: is a new database
	dbx.SetMaxOpenConns(1)
	if err := db.Migrate(context.Background(), dbx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { dbx.Close() })
	return dbx
}

// CreateUser stores a user whose password is "strongpass".
func CreateUser(t testing.TB, dbx *sql.DB, name, email string, role models.Role) *models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("strongpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	now := time.Now().UTC()
	user := &models.User{
		ID:           uuid.New(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := db.NewUserRepository(dbx).Create(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}
