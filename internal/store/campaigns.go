package store

import (
	"fmt"
	"time"

	"github.com/zulandar/groupyard/internal/models"
	"gorm.io/gorm"
)

// CampaignStats counts campaigns by status.
type CampaignStats struct {
	Total     int64 `json:"total"`
	Pending   int64 `json:"pending"`
	Scheduled int64 `json:"scheduled"`
	Running   int64 `json:"running"`
	Paused    int64 `json:"paused"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

var campaignStatuses = map[string]bool{
	models.CampaignPending:   true,
	models.CampaignScheduled: true,
	models.CampaignRunning:   true,
	models.CampaignPaused:    true,
	models.CampaignCompleted: true,
	models.CampaignFailed:    true,
}

// CreateCampaign inserts a new campaign. Its status is derived from
// ScheduledAt: scheduled when set, pending otherwise.
func (s *Store) CreateCampaign(c *models.Campaign) error {
	if c.AccountKey == "" {
		return fmt.Errorf("store: create campaign: account key is required")
	}
	if c.Recipients == "" {
		return fmt.Errorf("store: create campaign: recipients are required")
	}
	c.ID = 0
	c.Status = models.CampaignPending
	if c.ScheduledAt != nil {
		c.Status = models.CampaignScheduled
	}
	c.StartedAt = nil
	c.CompletedAt = nil
	if err := s.db.Create(c).Error; err != nil {
		return fmt.Errorf("store: create campaign: %w", err)
	}
	return nil
}

// GetCampaign loads a campaign by ID.
func (s *Store) GetCampaign(id uint) (*models.Campaign, error) {
	var c models.Campaign
	if err := s.db.First(&c, id).Error; err != nil {
		return nil, fmt.Errorf("store: get campaign %d: %w", id, notFound(err))
	}
	return &c, nil
}

// ListCampaigns returns campaigns newest first, optionally for one account.
func (s *Store) ListCampaigns(accountKey string) ([]models.Campaign, error) {
	return s.CampaignsByStatus("", accountKey)
}

// CampaignsByStatus returns campaigns in a status (any when empty),
// optionally for one account, newest first.
func (s *Store) CampaignsByStatus(status, accountKey string) ([]models.Campaign, error) {
	q := s.db.Model(&models.Campaign{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if accountKey != "" {
		q = q.Where("account_key = ?", accountKey)
	}
	var out []models.Campaign
	if err := q.Order("created_at DESC").Order("id DESC").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list campaigns: %w", err)
	}
	return out, nil
}

// DueCampaigns returns scheduled campaigns whose time has come, earliest
// first.
func (s *Store) DueCampaigns(now time.Time) ([]models.Campaign, error) {
	var out []models.Campaign
	err := s.db.Where("status = ? AND scheduled_at <= ?", models.CampaignScheduled, now).
		Order("scheduled_at ASC").Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("store: due campaigns: %w", err)
	}
	return out, nil
}

// PausedCampaigns returns campaigns left paused, by the user or by a
// shutdown, optionally for one account.
func (s *Store) PausedCampaigns(accountKey string) ([]models.Campaign, error) {
	return s.CampaignsByStatus(models.CampaignPaused, accountKey)
}

// UpdateCampaignStatus moves a campaign to status, stamping started_at on
// the first transition to running and completed_at on completed/failed.
// results, when non-empty, replaces the stored results JSON. Completed and
// failed campaigns are immutable and return ErrCampaignFinal.
func (s *Store) UpdateCampaignStatus(id uint, status, results string) error {
	if !campaignStatuses[status] {
		return fmt.Errorf("store: update campaign %d: unknown status %q", id, status)
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var c models.Campaign
		if err := tx.First(&c, id).Error; err != nil {
			return notFound(err)
		}
		if c.Final() {
			return ErrCampaignFinal
		}
		now := time.Now()
		updates := map[string]interface{}{"status": status}
		switch status {
		case models.CampaignRunning:
			if c.StartedAt == nil {
				updates["started_at"] = now
			}
		case models.CampaignCompleted, models.CampaignFailed:
			updates["completed_at"] = now
		}
		if results != "" {
			updates["results"] = results
		}
		return tx.Model(&models.Campaign{}).Where("id = ?", id).Updates(updates).Error
	})
	if err != nil {
		return fmt.Errorf("store: update campaign %d: %w", id, err)
	}
	return nil
}

// SaveCampaignResults stores a progress snapshot without changing status.
func (s *Store) SaveCampaignResults(id uint, results string) error {
	result := s.db.Model(&models.Campaign{}).
		Where("id = ? AND status NOT IN ?", id, []string{models.CampaignCompleted, models.CampaignFailed}).
		Update("results", results)
	if result.Error != nil {
		return fmt.Errorf("store: save campaign %d results: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		if _, err := s.GetCampaign(id); err != nil {
			return err
		}
		return fmt.Errorf("store: save campaign %d results: %w", id, ErrCampaignFinal)
	}
	return nil
}

// DeleteCampaign removes a campaign that is not running.
func (s *Store) DeleteCampaign(id uint) error {
	c, err := s.GetCampaign(id)
	if err != nil {
		return err
	}
	if c.Status == models.CampaignRunning {
		return fmt.Errorf("store: delete campaign %d: %w", id, ErrCampaignRunning)
	}
	if err := s.db.Delete(&models.Campaign{}, id).Error; err != nil {
		return fmt.Errorf("store: delete campaign %d: %w", id, err)
	}
	return nil
}

// CampaignStats counts campaigns by status, optionally for one account.
func (s *Store) CampaignStats(accountKey string) (CampaignStats, error) {
	var st CampaignStats
	q := s.db.Model(&models.Campaign{}).Select(
		"COUNT(*) AS total, " +
			"COALESCE(SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END), 0) AS pending, " +
			"COALESCE(SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END), 0) AS scheduled, " +
			"COALESCE(SUM(CASE WHEN status = 'running' THEN 1 ELSE 0 END), 0) AS running, " +
			"COALESCE(SUM(CASE WHEN status = 'paused' THEN 1 ELSE 0 END), 0) AS paused, " +
			"COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0) AS completed, " +
			"COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0) AS failed")
	if accountKey != "" {
		q = q.Where("account_key = ?", accountKey)
	}
	if err := q.Scan(&st).Error; err != nil {
		return CampaignStats{}, fmt.Errorf("store: campaign stats: %w", err)
	}
	return st, nil
}
