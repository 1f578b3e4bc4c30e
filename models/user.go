package models

import "time"

// User represents a traveler interacting through a chat channel.
// The ID is the channel-assigned chat identifier, so users are created
// implicitly on first contact and deactivated rather than deleted.
type User struct {
	ID        int64     `bson:"id" json:"id"` // chat/channel user id
	Name      string    `bson:"name" json:"name"`
	Language  string    `bson:"language" json:"language"` // "en", "am" or "om"
	Email     string    `bson:"email,omitempty" json:"email,omitempty"`
	Phone     string    `bson:"phone,omitempty" json:"phone,omitempty"`
	Active    bool      `bson:"active" json:"active"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

const (
	LanguageEnglish = "en"
	LanguageAmharic = "am"
	LanguageOromo   = "om"
)
