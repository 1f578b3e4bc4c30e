package models

import "time"

// Product kinds served by the travel provider.
const (
	KindFlight = "flight"
	KindHotel  = "hotel"
	KindTour   = "tour"
)

// Offer is a single bookable result returned by a provider search.
// Prices are quoted in USD by the provider and converted to ETB once,
// at search time, so the user always sees the price they will pay.
type Offer struct {
	ID       string            `json:"id"`
	Kind     string            `json:"kind"`
	Title    string            `json:"title"` // e.g. "Ethiopian Airlines ET-302" or hotel name
	Provider string            `json:"provider"`
	PriceUSD float64           `json:"price_usd"`
	PriceETB float64           `json:"price_etb"`
	Currency string            `json:"currency"`
	Details  map[string]string `json:"details,omitempty"` // kind-specific fields (times, rating, duration...)
}

// OfferSnapshot freezes one search's results so that a later selection
// books exactly the price the user was shown. Snapshots are immutable
// and expire; a booking can never be made from an expired snapshot.
type OfferSnapshot struct {
	ID        string    `json:"id"`
	Key       string    `json:"key"` // hash of the search criteria
	Offers    []Offer   `json:"offers"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the snapshot is past its validity window.
func (s *OfferSnapshot) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Find returns the offer with the given id, if present.
func (s *OfferSnapshot) Find(offerID string) (Offer, bool) {
	for _, o := range s.Offers {
		if o.ID == offerID {
			return o, true
		}
	}
	return Offer{}, false
}
