package store

import (
	"fmt"

	"github.com/zulandar/groupyard/internal/models"
)

// CreateTemplate inserts a message template.
func (s *Store) CreateTemplate(t *models.Template) error {
	if t.Name == "" || t.Message == "" {
		return fmt.Errorf("store: create template: name and message are required")
	}
	if t.Category == "" {
		t.Category = "general"
	}
	if err := s.db.Create(t).Error; err != nil {
		return fmt.Errorf("store: create template %q: %w", t.Name, err)
	}
	return nil
}

// ListTemplates returns templates ordered by category then name, filtered
// to one category when given.
func (s *Store) ListTemplates(category string) ([]models.Template, error) {
	q := s.db.Model(&models.Template{})
	if category != "" {
		q = q.Where("category = ?", category)
	}
	var out []models.Template
	if err := q.Order("category ASC").Order("name ASC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list templates: %w", err)
	}
	return out, nil
}

// GetTemplate loads a template by ID.
func (s *Store) GetTemplate(id uint) (*models.Template, error) {
	var t models.Template
	if err := s.db.First(&t, id).Error; err != nil {
		return nil, fmt.Errorf("store: get template %d: %w", id, notFound(err))
	}
	return &t, nil
}

// UpdateTemplate replaces a template's fields.
func (s *Store) UpdateTemplate(id uint, name, message, category string) error {
	result := s.db.Model(&models.Template{}).Where("id = ?", id).Updates(map[string]interface{}{
		"name":     name,
		"message":  message,
		"category": category,
	})
	if result.Error != nil {
		return fmt.Errorf("store: update template %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: update template %d: %w", id, ErrNotFound)
	}
	return nil
}

// DeleteTemplate removes a template.
func (s *Store) DeleteTemplate(id uint) error {
	result := s.db.Delete(&models.Template{}, id)
	if result.Error != nil {
		return fmt.Errorf("store: delete template %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("store: delete template %d: %w", id, ErrNotFound)
	}
	return nil
}

// Categories returns the distinct template categories, sorted.
func (s *Store) Categories() ([]string, error) {
	var out []string
	err := s.db.Model(&models.Template{}).Distinct("category").Order("category ASC").Pluck("category", &out).Error
	if err != nil {
		return nil, fmt.Errorf("store: template categories: %w", err)
	}
	return out, nil
}
