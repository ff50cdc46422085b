package settings

import (
	"context" // Context for DB operations
	"errors"  // Sentinel error checks

	"github.com/vanityapp123/vanityapp/internal/domain" // Importing domain models

	"github.com/shopspring/decimal" // Decimal-valued settings
	"gorm.io/gorm"                  // GORM ORM library
	"gorm.io/gorm/clause"           // Upsert support
)

// Store reads and writes runtime-tunable key/value settings.
type Store struct {
	db *gorm.DB
}

// New creates a settings store.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Get returns the value for key, or def when unset.
func (s *Store) Get(ctx context.Context, key, def string) string {
	var setting domain.Setting
	err := s.db.WithContext(ctx).First(&setting, "`key` = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || err != nil {
		return def
	}
	return setting.Value
}

// Decimal returns the value for key parsed as a decimal, or def when unset
// or unparsable.
func (s *Store) Decimal(ctx context.Context, key string, def decimal.Decimal) decimal.Decimal {
	raw := s.Get(ctx, key, "")
	if raw == "" {
		return def
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return def
	}
	return v
}

// Set upserts a setting value.
func (s *Store) Set(ctx context.Context, key, value string) error {
	setting := domain.Setting{Key: key, Value: value}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
		}).
		Create(&setting).Error
}

// All returns every setting, for the admin panel.
func (s *Store) All(ctx context.Context) ([]domain.Setting, error) {
	var all []domain.Setting
	err := s.db.WithContext(ctx).Order("`key`").Find(&all).Error
	return all, err
}

// Seed inserts default values for settings that do not exist yet.
func Seed(db *gorm.DB) error {
	defaults := []domain.Setting{
		{Key: domain.SettingMinDeposit, Value: "0.001"},
		{Key: domain.SettingSupportLink, Value: "https://t.me/vanitysupport"},
	}
	for _, d := range defaults {
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&d).Error; err != nil {
			return err
		}
	}
	return nil
}
