// Package store is the sole reader and writer of persisted targets,
// campaigns, accounts and templates. Every mutation is a named operation
// that enforces the lifecycle rules of the row it touches.
package store

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrCampaignFinal is returned when mutating a completed or failed campaign.
	ErrCampaignFinal = errors.New("store: campaign is completed or failed")
	// ErrCampaignRunning is returned when deleting a campaign that is running.
	ErrCampaignRunning = errors.New("store: campaign is running")
)

// Store wraps a GORM handle.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an already-migrated database.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *gorm.DB { return s.db }

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
