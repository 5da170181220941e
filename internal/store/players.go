// Package store persists the display names players have joined with.
// The game itself never reads it back; it only feeds the site's list of
// returning names.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Players interface {
	Save(ctx context.Context, username string) error
}

// Noop keeps the server fully functional without a database.
type Noop struct{}

func (Noop) Save(context.Context, string) error { return nil }

type PlayerRecord struct {
	ID        string `gorm:"primaryKey"`
	Username  string `gorm:"index"`
	CreatedAt time.Time
}

type DB struct {
	db *gorm.DB
}

func Open(dsn string) (*DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.AutoMigrate(&PlayerRecord{}); err != nil {
		return nil, fmt.Errorf("migrate players: %w", err)
	}
	return &DB{db: db}, nil
}

func (d *DB) Save(ctx context.Context, username string) error {
	rec := PlayerRecord{ID: uuid.NewString(), Username: username}
	if err := d.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("save player: %w", err)
	}
	return nil
}
