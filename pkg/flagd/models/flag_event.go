package models

import (
	"time"
)

// FlagEvent is one user's act of flagging. Rows are append-only.
type FlagEvent struct {
	ID               uint      `gorm:"primarykey" json:"id"`
	FlaggedContentID uint      `gorm:"not null;index:idx_flag_events_content_user" json:"flagged_content_id"`
	UserID           uint      `gorm:"not null;index:idx_flag_events_content_user" json:"user_id"`
	WhenAdded        time.Time `gorm:"autoCreateTime;index" json:"when_added"`
	Comment          *string   `gorm:"type:text" json:"comment,omitempty"`
	Status           int       `gorm:"not null;index" json:"status"` // status proposed at flag time

	// Relationships
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
