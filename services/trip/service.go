package trip

import (
	"context"
	"strconv"

	"tripbot/models"
	"tripbot/services/currency"

	"go.uber.org/zap"
)

// TripService is the search and booking surface used by the
// conversation machine and the price-alert engine. Offers come back
// priced in ETB and capped to the configured result limit.
type TripService interface {
	// Search runs a provider search for the given kind and criteria.
	Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error)
	// Book confirms a paid booking with the provider. Best effort: the
	// caller decides what a failure means for the booking record.
	Book(ctx context.Context, booking *models.Booking) (string, error)
}

// DefaultTripService is the production implementation.
type DefaultTripService struct {
	Client     Client
	Converter  currency.Converter
	MaxResults int
	Logger     *zap.Logger
}

// Search runs a provider search and converts the USD quotes to ETB.
func (s *DefaultTripService) Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error) {
	offers, err := s.Client.Search(ctx, kind, criteria)
	if err != nil {
		return nil, err
	}

	if s.MaxResults > 0 && len(offers) > s.MaxResults {
		offers = offers[:s.MaxResults]
	}

	for i := range offers {
		etb, err := s.Converter.ToETB(ctx, offers[i].PriceUSD)
		if err != nil {
			return nil, err
		}
		offers[i].PriceETB = etb
		offers[i].Currency = "ETB"
	}

	s.Logger.Debug("provider search completed",
		zap.String("kind", kind), zap.Int("results", len(offers)))
	return offers, nil
}

// Book confirms a paid booking with the provider.
func (s *DefaultTripService) Book(ctx context.Context, booking *models.Booking) (string, error) {
	payload := map[string]string{
		"offer_id":  booking.OfferID,
		"reference": booking.Reference,
		"user_id":   strconv.FormatInt(booking.UserID, 10),
	}
	for k, v := range booking.Details {
		payload[k] = v
	}
	return s.Client.Book(ctx, booking.Type, payload)
}
