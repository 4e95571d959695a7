package database

import (
	"fmt"
	"log"
	"time"

	"case-tracker/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Initialize opens the MySQL database, tunes the connection pool and runs
// schema migrations.
func Initialize(databaseURL string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(databaseURL), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.Println("Database initialized successfully")
	return db, nil
}

// Migrate creates or updates the tracker schema. Exposed separately so tests
// can run it against an in-memory database.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Item{},
		&models.UserItem{},
		&models.Update{},
		&models.ItemPrice{},
		&models.CurrencyRate{},
	)
}
