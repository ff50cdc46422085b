package db

import (
	"github.com/vanityapp123/vanityapp/internal/domain"   // Importing domain models
	"github.com/vanityapp123/vanityapp/internal/settings" // Default setting values

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{TranslateError: true}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err = db.AutoMigrate(
		&domain.Account{},
		&domain.LedgerEntry{},
		&domain.Product{},
		&domain.Order{},
		&domain.Setting{},
		&domain.CheckoutReceipt{},
	)
	if err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	// Seed default settings so the storefront works out of the box
	if err := settings.Seed(db); err != nil {
		logrus.Fatalf("settings seed failed: %v", err)
	}
	logrus.Info("Migration completed.") // Log successful migration
}
