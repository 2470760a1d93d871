package models

import "time"

// AccountPhone is a platform account known to groupyard. HasSession is set
// once the account has authenticated at least once.
type AccountPhone struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	PhoneNumber string    `gorm:"size:32;not null;uniqueIndex" json:"phone_number"`
	Label       string    `gorm:"size:64" json:"label"`
	HasSession  bool      `gorm:"default:false" json:"has_session"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Template is a reusable campaign message body.
type Template struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Message   string    `gorm:"type:text;not null" json:"message"`
	Category  string    `gorm:"size:64;default:general;index" json:"category"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
