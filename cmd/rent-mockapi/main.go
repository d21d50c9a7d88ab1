// Package main runs the in-memory marketplace backend for local development.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/rentvehical/rent-compass/internal/logging"
	"github.com/rentvehical/rent-compass/internal/mockapi"
)

// Config is read from the environment
type Config struct {
	Host     string
	Port     string
	Secret   string
	Quota    int
	TokenTTL time.Duration
	LogLevel logging.LogLevel
	// LogJSON switches the console log to one JSON object per line
	LogJSON  bool
}

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	dotenvErr := godotenv.Load()

	config, err := loadConfig(os.Getenv)
	if err != nil {
		return err
	}

	logger := logging.New(os.Stderr, config.LogLevel)
	if config.LogJSON {
		logger = logging.NewJSON(os.Stderr, config.LogLevel)
	}
	if dotenvErr != nil {
		logger.Debug().Msg("No .env file found, using environment variables")
	}

	server := mockapi.New(
		mockapi.WithSecret([]byte(config.Secret)),
		mockapi.WithQuota(config.Quota),
		mockapi.WithLogger(logger),
	)
	demo, err := mockapi.Seed(server)
	if err != nil {
		return err
	}
	if err := printTokens(logger, server, demo, config.TokenTTL); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:         config.Host + ":" + config.Port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("address", srv.Addr).Msg("Mock marketplace API starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info().Msg("Server exited gracefully")
	return nil
}

func printTokens(logger zerolog.Logger, server *mockapi.Server, demo mockapi.Demo, ttl time.Duration) error {
	for _, u := range []mockapi.User{demo.Owner, demo.Renter} {
		token, err := server.IssueToken(u.ID, ttl)
		if err != nil {
			return err
		}
		logger.Info().Str("user", u.Name).Str("user_id", u.ID).Msg("Demo account")
		_, _ = fmt.Fprintf(os.Stdout, "%s: %s\n", u.Email, token)
	}
	return nil
}

// loadConfig loads configuration from environment variables
func loadConfig(getenv func(string) string) (*Config, error) {
	quota, err := strconv.Atoi(getEnv(getenv, "MOCKAPI_QUOTA", strconv.Itoa(mockapi.DefaultQuota)))
	if err != nil || quota < 0 {
		return nil, fmt.Errorf("invalid MOCKAPI_QUOTA value: %s", getenv("MOCKAPI_QUOTA"))
	}
	ttl, err := time.ParseDuration(getEnv(getenv, "MOCKAPI_TOKEN_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid MOCKAPI_TOKEN_TTL value: %w", err)
	}
	level, err := logging.ParseLogLevel(getEnv(getenv, "MOCKAPI_LOG_LEVEL", "info"))
	if err != nil {
		return nil, err
	}
	format := getEnv(getenv, "MOCKAPI_LOG_FORMAT", "console")
	if format != "console" && format != "json" {
		return nil, fmt.Errorf("invalid MOCKAPI_LOG_FORMAT value: %s (must be console or json)", format)
	}

	return &Config{
		Host:     getEnv(getenv, "MOCKAPI_HOST", "127.0.0.1"),
		Port:     getEnv(getenv, "MOCKAPI_PORT", "8080"),
		Secret:   getEnv(getenv, "MOCKAPI_SECRET", "rent-compass-mock-secret"),
		Quota:    quota,
		TokenTTL: ttl,
		LogLevel: level,
		LogJSON:  format == "json",
	}, nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(getenv func(string) string, key, defaultValue string) string {
	if value := getenv(key); value != "" {
		return value
	}
	return defaultValue
}
