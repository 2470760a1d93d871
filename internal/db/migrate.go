package db

import (
	"fmt"

	"github.com/zulandar/groupyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.Target{},
		&models.Campaign{},
		&models.AccountPhone{},
		&models.Template{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// DefaultTemplates are the message templates seeded on init.
func DefaultTemplates() []models.Template {
	return []models.Template{
		{
			Name:     "Welcome",
			Message:  "Hello! 👋\n\nWelcome to the group. We're happy to have you here.",
			Category: "general",
		},
		{
			Name:     "Promotion",
			Message:  "🎉 SPECIAL OFFER 🎉\n\n50% off everything this week.\n\nDon't miss it!",
			Category: "marketing",
		},
		{
			Name:     "Reminder",
			Message:  "⏰ Reminder:\n\nDon't forget [EVENT] on [DATE] at [TIME].\n\nSee you there!",
			Category: "events",
		},
	}
}

// SeedTemplates inserts the default templates, leaving existing rows with
// the same name untouched. Returns the number of rows inserted.
func SeedTemplates(db *gorm.DB, templates []models.Template) (int, error) {
	if len(templates) == 0 {
		return 0, nil
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&templates)
	if result.Error != nil {
		return 0, fmt.Errorf("db: seed templates: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}

// SeedAccounts registers account phone numbers, ignoring ones already known.
func SeedAccounts(db *gorm.DB, phones []string) (int, error) {
	if len(phones) == 0 {
		return 0, nil
	}
	rows := make([]models.AccountPhone, 0, len(phones))
	for _, p := range phones {
		rows = append(rows, models.AccountPhone{PhoneNumber: p})
	}
	result := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone_number"}},
		DoNothing: true,
	}).Create(&rows)
	if result.Error != nil {
		return 0, fmt.Errorf("db: seed accounts: %w", result.Error)
	}
	return int(result.RowsAffected), nil
}
