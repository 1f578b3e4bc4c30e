package models

import "time"

// SearchRecord is one provider search a user ran. The most recent
// record seeds the criteria when the user creates a price alert.
type SearchRecord struct {
	ID          string            `bson:"id" json:"id"`
	UserID      int64             `bson:"user_id" json:"user_id"`
	Type        string            `bson:"type" json:"type"`
	Criteria    map[string]string `bson:"criteria" json:"criteria"`
	MinPrice    float64           `bson:"min_price" json:"min_price"` // cheapest result, ETB
	ResultCount int               `bson:"result_count" json:"result_count"`
	SearchedAt  time.Time         `bson:"searched_at" json:"searched_at"`
}
