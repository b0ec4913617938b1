package models

import (
	"time"
)

// FlaggedContent is the ledger entry of one content item: its current
// moderation status and how many times it has been flagged.
// (content_type, object_id) is unique; concurrent creators rely on it.
type FlaggedContent struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"` // last_updated
	ContentType string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_flagged_content_ref" json:"content_type"`
	ObjectID    uint      `gorm:"not null;uniqueIndex:idx_flagged_content_ref" json:"object_id"`
	CreatorID   *uint     `gorm:"index" json:"creator_id,omitempty"`
	Status      int       `gorm:"not null;index" json:"status"`
	Count       uint      `gorm:"not null;default:0" json:"count"`
	ModeratorID *uint     `gorm:"index" json:"moderator_id,omitempty"`

	// Relationships
	Creator   *User       `gorm:"foreignKey:CreatorID" json:"creator,omitempty"`
	Moderator *User       `gorm:"foreignKey:ModeratorID" json:"moderator,omitempty"`
	Flags     []FlagEvent `gorm:"foreignKey:FlaggedContentID;constraint:OnDelete:CASCADE" json:"flags,omitempty"`
}
