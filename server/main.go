package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chepyr/task-manager/internal/config"
	"github.com/chepyr/task-manager/internal/db"
	"github.com/chepyr/task-manager/internal/handlers"
	"github.com/chepyr/task-manager/internal/service"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dbConn := initDB(cfg)
	defer dbConn.Close()

	handler := initHandler(cfg, dbConn)
	defer handler.RateLimiter.Close()
	server := initServer(cfg, handler)
	startServer(server)
}

func initDB(cfg *config.Config) *sql.DB {
	dbConn, err := db.Connect(cfg.DBDriver, cfg.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.Migrate(ctx, dbConn); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Printf("Connected to %s database", cfg.DBDriver)
	return dbConn
}

func initHandler(cfg *config.Config, dbConn *sql.DB) *handlers.Handler {
	users := db.NewUserRepository(dbConn)
	tasks := db.NewTaskRepository(dbConn)
	return &handlers.Handler{
		Tasks:            service.NewTaskService(tasks, users),
		Reports:          service.NewReportService(tasks, users),
		UserRepo:         users,
		RateLimiter:      handlers.NewRateLimiter(10, time.Minute),
		JWTSecret:        []byte(cfg.JWTSecret),
		TokenTTL:         cfg.JWTTTL,
		AdminInviteToken: cfg.AdminInviteToken,
		UploadDir:        cfg.UploadDir,
	}
}

func initServer(cfg *config.Config, handler *handlers.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func startServer(server *http.Server) {
	log.Printf("Starting task manager on %s", server.Addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server shutdown failed: %v", err)
	}
	log.Println("Server stopped")
}
