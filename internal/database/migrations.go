package database

import (
	"database/sql"
	"fmt"

	"storefront/migrations"

	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

func configureGoose() error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return nil
}

// RunMigrations executes all pending embedded migrations
func RunMigrations(db *sql.DB, logger *zap.Logger) error {
	if err := configureGoose(); err != nil {
		return err
	}

	logger.Info("Checking for pending migrations...")

	if err := goose.Up(db, "."); err != nil {
		logger.Error("Failed to run migrations", zap.Error(err))
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Migrations completed successfully")
	return nil
}

// GetMigrationStatus prints the current migration status
func GetMigrationStatus(db *sql.DB) error {
	if err := configureGoose(); err != nil {
		return err
	}

	return goose.Status(db, ".")
}
