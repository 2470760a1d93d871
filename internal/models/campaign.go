package models

import "time"

// Campaign status values.
const (
	CampaignPending   = "pending"
	CampaignScheduled = "scheduled"
	CampaignRunning   = "running"
	CampaignPaused    = "paused"
	CampaignCompleted = "completed"
	CampaignFailed    = "failed"
)

// Campaign is a configured bulk-delivery job for one account.
type Campaign struct {
	ID            uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Name          string     `gorm:"size:128;not null" json:"name"`
	AccountKey    string     `gorm:"size:32;not null;index" json:"account_key"`
	Message       string     `gorm:"type:text" json:"message"`
	RecipientKind string     `gorm:"size:16;not null" json:"recipient_kind"` // groups, numbers, contacts
	Recipients    string     `gorm:"type:text;not null" json:"recipients"`   // JSON array of identifiers
	Attachments   string     `gorm:"type:text" json:"attachments,omitempty"` // JSON array of attachments
	ScheduledAt   *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	Status        string     `gorm:"size:16;default:pending;index" json:"status"`
	Config        string     `gorm:"type:text" json:"config"`            // JSON delivery config
	Results       string     `gorm:"type:text" json:"results,omitempty"` // JSON delivery summary
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// Final reports whether the campaign can no longer change.
func (c *Campaign) Final() bool {
	return c.Status == CampaignCompleted || c.Status == CampaignFailed
}
