package auth

import (
	"time"

	"github.com/lib/pq"
)

type Session struct {
	SessionID string    `gorm:"primaryKey" json:"-"`
	UserID    string    `gorm:"not null;unique" json:"-"`
	ExpiresAt time.Time `gorm:"not null"`
}

// User is an employee or administrator account. OwnerID scopes the account
// to its employer; DeviceIDs accumulates the devices the account has
// streamed locations from.
type User struct {
	UserID         string         `gorm:"primaryKey" json:"user_id"`
	Username       string         `gorm:"uniqueIndex" json:"username"`
	Password       string         `json:"password" gorm:"-"`
	HashedPassword string         `json:"-"`
	Role           string         `gorm:"default:'employee'" json:"role"`
	OwnerID        string         `gorm:"index" json:"owner_id"`
	FullName       string         `json:"full_name"`
	DeviceIDs      pq.StringArray `gorm:"type:text[]" json:"device_ids"`
	Session        Session        `gorm:"foreignKey:UserID" json:"-"`
}

func (Session) TableName() string { return "app_auth.sessions" }
func (User) TableName() string    { return "app_auth.users" }
