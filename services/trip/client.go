package trip

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"tripbot/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 30 * time.Second
	maxAttempts    = 3
	retryBackoff   = 300 * time.Millisecond
)

// Client is the wire-level travel provider API.
type Client interface {
	// Search runs a catalog search and returns offers priced in USD.
	Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error)
	// Book places a booking with the provider and returns its confirmation id.
	Book(ctx context.Context, kind string, payload map[string]string) (string, error)
}

// HTTPClient talks to the provider over signed HTTP requests. With a
// test or empty API key it serves the fixed catalog instead, so the
// whole system runs without provider credentials.
type HTTPClient struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Logger     *zap.Logger
}

// NewHTTPClient builds a provider client rate-limited to perSec calls.
func NewHTTPClient(baseURL, apiKey, apiSecret string, perSec int, logger *zap.Logger) *HTTPClient {
	if perSec <= 0 {
		perSec = 5
	}
	return &HTTPClient{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		Limiter:    rate.NewLimiter(rate.Limit(perSec), perSec),
		Logger:     logger,
	}
}

func (c *HTTPClient) testMode() bool {
	return c.APIKey == "" || c.APIKey == "test" || c.APIKey == "test_key"
}

// sign builds the request signature: parameters sorted by key, joined
// as k=v pairs, wrapped in the API secret and MD5-hashed.
func (c *HTTPClient) sign(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}
	payload := c.APISecret + strings.Join(pairs, "&") + c.APISecret
	return strings.ToUpper(fmt.Sprintf("%x", md5.Sum([]byte(payload))))
}

type searchResponse struct {
	Success bool `json:"success"`
	Data    struct {
		Flights []flightResult `json:"flights"`
		Hotels  []hotelResult  `json:"hotels"`
		Tours   []tourResult   `json:"tours"`
	} `json:"data"`
}

type bookResponse struct {
	Success bool `json:"success"`
	Data    struct {
		ConfirmationID string `json:"confirmation_id"`
	} `json:"data"`
}

type flightResult struct {
	FlightID      string  `json:"flight_id"`
	Airline       string  `json:"airline"`
	FromCity      string  `json:"from_city"`
	ToCity        string  `json:"to_city"`
	DepartureTime string  `json:"departure_time"`
	ArrivalTime   string  `json:"arrival_time"`
	Duration      string  `json:"duration"`
	Stops         int     `json:"stops"`
	FlightNumber  string  `json:"flight_number"`
	PriceUSD      float64 `json:"price_usd"`
	Class         string  `json:"class"`
}

type hotelResult struct {
	HotelID      string  `json:"hotel_id"`
	Name         string  `json:"name"`
	Address      string  `json:"address"`
	City         string  `json:"city"`
	Rating       float64 `json:"rating"`
	CheckinDate  string  `json:"checkin_date"`
	CheckoutDate string  `json:"checkout_date"`
	RoomType     string  `json:"room_type"`
	PriceUSD     float64 `json:"price_usd"`
	Amenities    string  `json:"amenities"`
}

type tourResult struct {
	TourID       string  `json:"tour_id"`
	Name         string  `json:"name"`
	Destination  string  `json:"destination"`
	Category     string  `json:"category"`
	DurationDays int     `json:"duration_days"`
	Description  string  `json:"description"`
	PriceUSD     float64 `json:"price_usd"`
	Includes     string  `json:"includes"`
}

// Search runs a catalog search and returns offers priced in USD.
func (c *HTTPClient) Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error) {
	if c.testMode() {
		c.Logger.Debug("serving mock catalog", zap.String("kind", kind))
		return mockOffers(kind, criteria), nil
	}

	var endpoint string
	switch kind {
	case models.KindFlight:
		endpoint = "flights/search"
	case models.KindHotel:
		endpoint = "hotels/search"
	case models.KindTour:
		endpoint = "tours/search"
	default:
		return nil, &ProviderError{Op: "search", Err: fmt.Errorf("unknown kind %q", kind)}
	}

	var resp searchResponse
	if err := c.get(ctx, endpoint, criteria, &resp); err != nil {
		return nil, err
	}

	switch kind {
	case models.KindFlight:
		return normalizeFlights(resp.Data.Flights), nil
	case models.KindHotel:
		return normalizeHotels(resp.Data.Hotels), nil
	default:
		return normalizeTours(resp.Data.Tours), nil
	}
}

// Book places a booking with the provider and returns its confirmation id.
func (c *HTTPClient) Book(ctx context.Context, kind string, payload map[string]string) (string, error) {
	if c.testMode() {
		return "MOCK-" + strings.ToUpper(kind), nil
	}

	var endpoint string
	switch kind {
	case models.KindFlight:
		endpoint = "flights/book"
	case models.KindHotel:
		endpoint = "hotels/book"
	case models.KindTour:
		endpoint = "tours/book"
	default:
		return "", &ProviderError{Op: "book", Err: fmt.Errorf("unknown kind %q", kind)}
	}

	var resp bookResponse
	if err := c.post(ctx, endpoint, payload, &resp); err != nil {
		return "", err
	}
	if !resp.Success || resp.Data.ConfirmationID == "" {
		return "", &ProviderError{Op: "book", Err: fmt.Errorf("provider rejected the booking")}
	}
	return resp.Data.ConfirmationID, nil
}

func (c *HTTPClient) authParams(params map[string]string) map[string]string {
	signed := make(map[string]string, len(params)+3)
	for k, v := range params {
		signed[k] = v
	}
	signed["api_key"] = c.APIKey
	signed["timestamp"] = strconv.FormatInt(time.Now().Unix(), 10)
	signed["sign"] = c.sign(signed)
	return signed
}

func (c *HTTPClient) get(ctx context.Context, endpoint string, params map[string]string, out any) error {
	return c.withRetry(ctx, endpoint, func() error {
		signed := c.authParams(params)
		q := url.Values{}
		for k, v := range signed {
			q.Set(k, v)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return &ProviderError{Op: endpoint, Err: err}
		}
		return c.do(req, endpoint, out)
	})
}

func (c *HTTPClient) post(ctx context.Context, endpoint string, params map[string]string, out any) error {
	return c.withRetry(ctx, endpoint, func() error {
		signed := c.authParams(params)
		body, err := json.Marshal(signed)
		if err != nil {
			return &ProviderError{Op: endpoint, Err: err}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/"+endpoint, bytes.NewReader(body))
		if err != nil {
			return &ProviderError{Op: endpoint, Err: err}
		}
		req.Header.Set("Content-Type", "application/json")
		return c.do(req, endpoint, out)
	})
}

func (c *HTTPClient) do(req *http.Request, endpoint string, out any) error {
	if err := c.Limiter.Wait(req.Context()); err != nil {
		return &ProviderError{Op: endpoint, Err: err}
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &ProviderError{Op: endpoint, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &ProviderError{Op: endpoint, Retryable: true, Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}
	if resp.StatusCode >= 400 {
		return &ProviderError{Op: endpoint, Err: fmt.Errorf("provider returned status %d", resp.StatusCode)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ProviderError{Op: endpoint, Err: fmt.Errorf("decoding response failed: %w", err)}
	}
	return nil
}

// withRetry retries retryable faults with a doubling backoff.
func (c *HTTPClient) withRetry(ctx context.Context, endpoint string, call func() error) error {
	backoff := retryBackoff
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = call()
		if err == nil || !IsRetryable(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		c.Logger.Warn("provider call failed, retrying",
			zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return &ProviderError{Op: endpoint, Err: ctx.Err()}
		}
		backoff *= 2
	}
	return err
}

func normalizeFlights(in []flightResult) []models.Offer {
	offers := make([]models.Offer, 0, len(in))
	for _, f := range in {
		offers = append(offers, models.Offer{
			ID:       f.FlightID,
			Kind:     models.KindFlight,
			Title:    strings.TrimSpace(f.Airline + " " + f.FlightNumber),
			Provider: f.Airline,
			PriceUSD: f.PriceUSD,
			Currency: "USD",
			Details: map[string]string{
				"from_city":      f.FromCity,
				"to_city":        f.ToCity,
				"departure_time": f.DepartureTime,
				"arrival_time":   f.ArrivalTime,
				"duration":       f.Duration,
				"stops":          strconv.Itoa(f.Stops),
				"flight_number":  f.FlightNumber,
				"class":          f.Class,
			},
		})
	}
	return offers
}

func normalizeHotels(in []hotelResult) []models.Offer {
	offers := make([]models.Offer, 0, len(in))
	for _, h := range in {
		offers = append(offers, models.Offer{
			ID:       h.HotelID,
			Kind:     models.KindHotel,
			Title:    h.Name,
			Provider: h.Name,
			PriceUSD: h.PriceUSD,
			Currency: "USD",
			Details: map[string]string{
				"address":       h.Address,
				"city":          h.City,
				"rating":        strconv.FormatFloat(h.Rating, 'f', 1, 64),
				"checkin_date":  h.CheckinDate,
				"checkout_date": h.CheckoutDate,
				"room_type":     h.RoomType,
				"amenities":     h.Amenities,
			},
		})
	}
	return offers
}

func normalizeTours(in []tourResult) []models.Offer {
	offers := make([]models.Offer, 0, len(in))
	for _, t := range in {
		offers = append(offers, models.Offer{
			ID:       t.TourID,
			Kind:     models.KindTour,
			Title:    t.Name,
			Provider: t.Destination,
			PriceUSD: t.PriceUSD,
			Currency: "USD",
			Details: map[string]string{
				"destination":   t.Destination,
				"category":      t.Category,
				"duration_days": strconv.Itoa(t.DurationDays),
				"description":   t.Description,
				"includes":      t.Includes,
			},
		})
	}
	return offers
}
