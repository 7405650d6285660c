package database

import (
	"fmt"

	"trade-signal-engine-go/internal/config"
	"trade-signal-engine-go/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AutoMigrate creates or updates the schema for all engine models.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Signal{},
		&models.TakeProfitUpdate{},
		&models.UserTrade{},
		&models.UserTradeTakeProfitUpdate{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}
