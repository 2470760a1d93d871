package store

import (
	"fmt"
	"time"

	"github.com/zulandar/groupyard/internal/models"
	"gorm.io/gorm/clause"
)

// AddAccount registers an account phone number. Returns false if it was
// already known.
func (s *Store) AddAccount(phone, label string) (bool, error) {
	row := models.AccountPhone{PhoneNumber: phone, Label: label}
	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone_number"}},
		DoNothing: true,
	}).Create(&row)
	if result.Error != nil {
		return false, fmt.Errorf("store: add account %s: %w", phone, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListAccounts returns every registered account, newest first.
func (s *Store) ListAccounts() ([]models.AccountPhone, error) {
	var out []models.AccountPhone
	if err := s.db.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list accounts: %w", err)
	}
	return out, nil
}

// SetHasSession records whether the account has authenticated credentials,
// registering the account if it is not known yet.
func (s *Store) SetHasSession(phone string, hasSession bool) error {
	row := models.AccountPhone{PhoneNumber: phone, HasSession: hasSession}
	result := s.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "phone_number"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"has_session": hasSession,
			"updated_at":  time.Now(),
		}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("store: set has_session for %s: %w", phone, result.Error)
	}
	return nil
}
