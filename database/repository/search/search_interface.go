package searchRepo

import (
	"tripbot/models"
)

// SearchRepository defines methods for search-history data access.
type SearchRepository interface {
	// Create inserts a new search record.
	Create(record *models.SearchRecord) error
	// LatestByUser retrieves the user's most recent search of the given
	// type ("" matches any type). Returns nil when no search exists.
	LatestByUser(userID int64, searchType string) (*models.SearchRecord, error)
	// ListByUser retrieves a user's recent searches, newest first.
	ListByUser(userID int64, limit int) ([]models.SearchRecord, error)
}
