package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/emberhold-oss/keep/internal/config"
	"github.com/emberhold-oss/keep/internal/database"
	"github.com/emberhold-oss/keep/internal/router"
)

func main() {
	log.Printf("Starting Keep")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Keep Configuration:")
	log.Printf("  Host:     %s", cfg.Host)
	log.Printf("  Port:     %s", cfg.Port)
	log.Printf("  Database: %s", cfg.DatabaseURL)

	ctx := context.Background()

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	if err := database.Seed(ctx, db, cfg.AdminPassword, cfg.FounderUsername); err != nil {
		log.Fatalf("Failed to seed database: %v", err)
	}

	r := router.Setup(db, []byte(cfg.JWTSecret), cfg.TokenTTL)

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: r,
	}

	go func() {
		log.Printf("Keep listening on %s", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("Shutting down Keep...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Printf("Keep stopped")
}
