package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/zulandar/groupyard/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TargetStats aggregates target rows by status.
type TargetStats struct {
	Total      int64 `json:"total"`
	Successful int64 `json:"successful"`
	Failed     int64 `json:"failed"`
	Pending    int64 `json:"pending"`
}

// InsertTargets adds new targets, silently skipping links that already
// exist or are blank. Returns the number of rows actually inserted, so
// re-ingesting the same source is a no-op.
func (s *Store) InsertTargets(targets []models.Target) (int, error) {
	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		for _, t := range targets {
			link := strings.TrimSpace(t.Link)
			if link == "" {
				continue
			}
			row := models.Target{
				Link:            link,
				Name:            t.Name,
				Country:         t.Country,
				CountryOrigin:   t.CountryOrigin,
				Members:         t.Members,
				AdminPermission: t.AdminPermission,
				Status:          models.TargetPending,
			}
			result := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "link"}},
				DoNothing: true,
			}).Create(&row)
			if result.Error != nil {
				return fmt.Errorf("insert %s: %w", link, result.Error)
			}
			inserted += int(result.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: insert targets: %w", err)
	}
	return inserted, nil
}

// GetTarget loads a target by link.
func (s *Store) GetTarget(link string) (*models.Target, error) {
	var t models.Target
	if err := s.db.Where("link = ?", link).First(&t).Error; err != nil {
		return nil, fmt.Errorf("store: get target %s: %w", link, notFound(err))
	}
	return &t, nil
}

// IsProcessed reports whether the link has a terminal join outcome.
// Unknown links are not processed.
func (s *Store) IsProcessed(link string) (bool, error) {
	var count int64
	err := s.db.Model(&models.Target{}).
		Where("link = ? AND status IN ?", link, []string{models.TargetSuccessful, models.TargetFailed}).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("store: is processed %s: %w", link, err)
	}
	return count > 0, nil
}

// pendingQuery scopes to pending targets, optionally in one country,
// oldest first and bounded by limit (limit <= 0 means unbounded).
func (s *Store) pendingQuery(country string, limit int) *gorm.DB {
	q := s.db.Model(&models.Target{}).Where("status = ?", models.TargetPending)
	if country != "" {
		q = q.Where("country = ?", country)
	}
	q = q.Order("created_at ASC").Order("id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	return q
}

// PendingByCountry returns pending targets for a country, oldest first.
// An empty country matches every country.
func (s *Store) PendingByCountry(country string, limit int) ([]models.Target, error) {
	var out []models.Target
	if err := s.pendingQuery(country, limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: pending targets: %w", err)
	}
	return out, nil
}

// Unverified returns pending targets that have not been verified yet.
func (s *Store) Unverified(country string, limit int) ([]models.Target, error) {
	var out []models.Target
	if err := s.pendingQuery(country, limit).Where("verified = ?", false).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: unverified targets: %w", err)
	}
	return out, nil
}

// Working returns verified, still-pending targets that can be joined
// directly.
func (s *Store) Working(country string, limit int) ([]models.Target, error) {
	var out []models.Target
	err := s.pendingQuery(country, limit).
		Where("verified = ? AND requires_approval = ?", true, false).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: working targets: %w", err)
	}
	return out, nil
}

// RequiresApproval returns verified, still-pending targets whose join
// needs an admin's approval.
func (s *Store) RequiresApproval(country string, limit int) ([]models.Target, error) {
	var out []models.Target
	err := s.pendingQuery(country, limit).
		Where("verified = ? AND requires_approval = ?", true, true).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: approval targets: %w", err)
	}
	return out, nil
}

// Successful returns joined targets, most recent first.
func (s *Store) Successful() ([]models.Target, error) {
	return s.terminal(models.TargetSuccessful)
}

// Failed returns failed targets, most recent first.
func (s *Store) Failed() ([]models.Target, error) {
	return s.terminal(models.TargetFailed)
}

func (s *Store) terminal(status string) ([]models.Target, error) {
	var out []models.Target
	err := s.db.Where("status = ?", status).
		Order("joined_at DESC").Order("id DESC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: %s targets: %w", status, err)
	}
	return out, nil
}

// MarkSuccessful records a successful join. It only applies to pending
// targets: it returns false without changing anything when the target is
// already terminal, and ErrNotFound when the link is unknown.
func (s *Store) MarkSuccessful(link, platformTargetID string) (bool, error) {
	now := time.Now()
	return s.markTerminal(link, map[string]interface{}{
		"status":             models.TargetSuccessful,
		"platform_target_id": platformTargetID,
		"joined_at":          now,
		"updated_at":         now,
	})
}

// MarkFailed records a failed join or a dead link. Same guard as
// MarkSuccessful.
func (s *Store) MarkFailed(link, errorMessage string) (bool, error) {
	now := time.Now()
	return s.markTerminal(link, map[string]interface{}{
		"status":        models.TargetFailed,
		"error_message": errorMessage,
		"joined_at":     now,
		"updated_at":    now,
	})
}

func (s *Store) markTerminal(link string, updates map[string]interface{}) (bool, error) {
	result := s.db.Model(&models.Target{}).
		Where("link = ? AND status = ?", link, models.TargetPending).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("store: mark %s %s: %w", link, updates["status"], result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetTarget(link); err != nil {
		return false, err
	}
	return false, nil
}

// MarkVerified records a verification result. Verification happens at
// most once and only while the target is pending; a non-empty name
// replaces the stored display name. Returns false when nothing changed.
func (s *Store) MarkVerified(link string, requiresApproval bool, name string) (bool, error) {
	updates := map[string]interface{}{
		"verified":          true,
		"requires_approval": requiresApproval,
		"updated_at":        time.Now(),
	}
	if name != "" {
		updates["name"] = name
	}
	result := s.db.Model(&models.Target{}).
		Where("link = ? AND status = ? AND verified = ?", link, models.TargetPending, false).
		Updates(updates)
	if result.Error != nil {
		return false, fmt.Errorf("store: mark verified %s: %w", link, result.Error)
	}
	if result.RowsAffected > 0 {
		return true, nil
	}
	if _, err := s.GetTarget(link); err != nil {
		return false, err
	}
	return false, nil
}

// Stats aggregates every target.
func (s *Store) Stats() (TargetStats, error) {
	return s.stats("")
}

// StatsByCountry aggregates targets of one country.
func (s *Store) StatsByCountry(country string) (TargetStats, error) {
	return s.stats(country)
}

func (s *Store) stats(country string) (TargetStats, error) {
	var st TargetStats
	q := s.db.Model(&models.Target{}).Select(
		"COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN status = 'successful' THEN 1 ELSE 0 END), 0) AS successful, " +
			"COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed, " +
			"COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending")
	if country != "" {
		q = q.Where("country = ?", country)
	}
	if err := q.Scan(&st).Error; err != nil {
		return TargetStats{}, fmt.Errorf("store: target stats: %w", err)
	}
	return st, nil
}
