package models

import "time"

// Target status values. A target only moves from pending to one of the
// terminal values, never back.
const (
	TargetPending    = "pending"
	TargetSuccessful = "successful"
	TargetFailed     = "failed"
)

// Target is one candidate invitation link, tracked from discovery through
// verification to a terminal join outcome.
type Target struct {
	ID               uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	Link             string     `gorm:"size:255;not null;uniqueIndex" json:"link"`
	Name             string     `gorm:"size:255" json:"name"`
	Country          string     `gorm:"size:64;index" json:"country"`
	CountryOrigin    string     `gorm:"size:64" json:"country_origin"`
	Members          string     `gorm:"size:32" json:"members"`
	AdminPermission  string     `gorm:"size:32" json:"admin_permission"`
	Status           string     `gorm:"size:16;default:pending;index" json:"status"`
	PlatformTargetID string     `gorm:"size:128" json:"platform_target_id,omitempty"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message,omitempty"`
	Verified         bool       `gorm:"default:false;index" json:"verified"`
	RequiresApproval bool       `gorm:"default:false" json:"requires_approval"`
	CreatedAt        time.Time  `json:"created_at"`
	JoinedAt         *time.Time `json:"joined_at,omitempty"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Terminal reports whether the target has a recorded join outcome.
func (t *Target) Terminal() bool {
	return t.Status == TargetSuccessful || t.Status == TargetFailed
}
