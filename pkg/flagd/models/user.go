package models

import (
	"time"

	"gorm.io/gorm"
)

// SystemRole represents a user's system-wide role
type SystemRole string

const (
	SystemRoleAdmin     SystemRole = "admin"
	SystemRoleModerator SystemRole = "moderator"
	SystemRoleUser      SystemRole = "user"
)

// User is the local mirror of an identity-provider account
type User struct {
	ID         uint           `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time      `json:"created_at"` // account creation date, used by the trust gate
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
	ExternalID string         `gorm:"index" json:"external_id,omitempty"` // id at the identity provider
	Email      string         `gorm:"uniqueIndex;not null" json:"email"`
	Name       string         `gorm:"not null" json:"name"`
	Active     bool           `gorm:"default:true" json:"active"`
	SystemRole SystemRole     `gorm:"type:varchar(20);default:'user'" json:"system_role"`
}

// IsStaff reports whether the user may moderate flags
func (u User) IsStaff() bool {
	return u.SystemRole == SystemRoleAdmin || u.SystemRole == SystemRoleModerator
}
