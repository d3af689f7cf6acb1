package repository

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"jira-sync/models"
)

// Open connects to the sqlite database at path and migrates every table.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs AutoMigrate for all tables in order.
func Migrate(db *gorm.DB) error {
	tables := models.All()
	for i, table := range tables {
		if err := db.AutoMigrate(table); err != nil {
			return fmt.Errorf("migrating table %d/%d (%T): %w", i+1, len(tables), table, err)
		}
	}
	log.Printf("database migrated: tables=%d", len(tables))
	return nil
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
