package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/go-notify-engine/internal/app"
	"github.com/go-notify-engine/internal/config"
	jwtinfra "github.com/go-notify-engine/internal/infrastructure/jwt"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, reading from environment")
	}

	cfg := config.Load()
	logger := app.NewLogger(cfg)

	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer a.Close()

	// Creates DynamoDB tables or migrates the SQL schema; existing tables are kept.
	if err := a.Stores.Bootstrap(context.Background()); err != nil {
		log.Fatalf("bootstrap store: %v", err)
	}

	// JWT provider (optional; without it every authenticated route answers 401).
	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		log.Printf("WARN: JWT provider not available: %v", err)
	}
	if cfg.CronSecret == "" {
		log.Println("WARN: CRON_SECRET is empty, the dispatch trigger rejects every request")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      a.Router(jwtProvider),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute, // a dispatch pass answers only when it finishes
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server starting on :%s (env=%s, store=%s)", cfg.AppPort, cfg.AppEnv, a.Stores.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Println("Server stopped")
}
