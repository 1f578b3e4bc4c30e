package userRepo

import (
	"tripbot/models"
)

// UserRepository defines methods for traveler data access.
type UserRepository interface {
	// GetByID retrieves a user by chat id. Returns nil when unknown.
	GetByID(id int64) (*models.User, error)
	// Create inserts a new user record.
	Create(user *models.User) error
	// Update modifies an existing user record.
	Update(user *models.User) error
	// SetLanguage updates the user's preferred language.
	SetLanguage(id int64, lang string) error
	// SetContact updates the user's email and phone.
	SetContact(id int64, email, phone string) error
	// Deactivate marks the user inactive without removing history.
	Deactivate(id int64) error
}
