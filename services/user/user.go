package user

import (
	"fmt"
	"strings"
	"time"

	userRepo "tripbot/database/repository/user"
	"tripbot/models"
	"tripbot/utils"
)

// UserService defines business logic for traveler accounts. Accounts are
// keyed by the chat id, so there is no registration step: the first
// message creates the record.
type UserService interface {
	// Ensure returns the user for a chat id, creating the record on
	// first contact. The name is refreshed when the channel reports a
	// new one.
	Ensure(id int64, name string) (*models.User, error)
	// GetByID retrieves a user, nil when unknown.
	GetByID(id int64) (*models.User, error)
	// SetLanguage switches the user's preferred language.
	SetLanguage(id int64, lang string) error
	// UpdateContact validates and stores the user's email and phone.
	UpdateContact(id int64, email, phone string) error
	// Deactivate marks the account inactive, keeping booking history.
	Deactivate(id int64) error
}

// DefaultUserService is the production implementation.
type DefaultUserService struct {
	Repo userRepo.UserRepository
}

func (s *DefaultUserService) Ensure(id int64, name string) (*models.User, error) {
	existing, err := s.Repo.GetByID(id)
	if err != nil {
		return nil, fmt.Errorf("failed to look up user %d: %w", id, err)
	}
	if existing != nil {
		changed := false
		if name != "" && name != existing.Name {
			existing.Name = name
			changed = true
		}
		// Writing again after /stop reactivates the account.
		if !existing.Active {
			existing.Active = true
			changed = true
		}
		if changed {
			existing.UpdatedAt = time.Now()
			if err := s.Repo.Update(existing); err != nil {
				return nil, fmt.Errorf("failed to refresh user %d: %w", id, err)
			}
		}
		return existing, nil
	}

	now := time.Now()
	user := &models.User{
		ID:        id,
		Name:      name,
		Language:  models.LanguageEnglish,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.Repo.Create(user); err != nil {
		return nil, fmt.Errorf("failed to create user %d: %w", id, err)
	}
	return user, nil
}

func (s *DefaultUserService) GetByID(id int64) (*models.User, error) {
	return s.Repo.GetByID(id)
}

func (s *DefaultUserService) SetLanguage(id int64, lang string) error {
	switch lang {
	case models.LanguageEnglish, models.LanguageAmharic, models.LanguageOromo:
	default:
		return fmt.Errorf("unsupported language %q", lang)
	}
	return s.Repo.SetLanguage(id, lang)
}

func (s *DefaultUserService) UpdateContact(id int64, email, phone string) error {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if email != "" && !utils.ValidEmail(email) {
		return fmt.Errorf("email %q does not look valid", email)
	}
	if phone != "" && !utils.ValidPhone(phone) {
		return fmt.Errorf("phone %q is not an Ethiopian mobile number", phone)
	}
	return s.Repo.SetContact(id, email, phone)
}

func (s *DefaultUserService) Deactivate(id int64) error {
	return s.Repo.Deactivate(id)
}
