package auth

import (
	"github.com/GeoPunch/GP-Backend/internal/db"
	"github.com/GeoPunch/GP-Backend/internal/utils"
)

type SessionInfo struct{}

func (si SessionInfo) FindSessionByID(id string) (utils.SessionData, error) {
	var session Session

	err := db.DB.First(&session, "session_id = ?", id).Error
	if err != nil {
		return utils.SessionData{}, err
	}

	return utils.SessionData{
		UserID:    session.UserID,
		ExpiresAt: session.ExpiresAt,
	}, nil
}

// FindUserByID loads an account for handlers in other feature packages
// that need the caller's owner scope or role.
func FindUserByID(id string) (User, error) {
	var user User
	err := db.DB.First(&user, "user_id = ?", id).Error
	return user, err
}
