package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/dhernos/vestri-auth/internal/config"
	"github.com/dhernos/vestri-auth/internal/database"
	"github.com/dhernos/vestri-auth/internal/logging"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	migrationsDir := os.Getenv("MIGRATIONS_DIR")
	if migrationsDir == "" {
		migrationsDir = "./migrations"
	}

	logger, flush, err := logging.New(config.LogConfig{Level: "info"})
	if err != nil {
		return fmt.Errorf("log setup error: %w", err)
	}
	defer flush()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := database.Connect(ctx, databaseURL)
	if err != nil {
		logger.Error("database connection failed", zap.Error(err))
		return err
	}
	defer db.Close()

	if err := database.ApplyMigrations(ctx, db, migrationsDir, logger); err != nil {
		logger.Error("migration failed", zap.Error(err))
		return err
	}

	logger.Info("migrations applied", zap.String("dir", migrationsDir))
	return nil
}
