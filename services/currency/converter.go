// Package currency converts provider USD quotes into the Birr amounts
// shown to users. Rates are cached in-process and a configured fallback
// keeps pricing available when the rate API is down.
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const rateCacheTTL = 6 * time.Hour

// Converter turns USD amounts into ETB.
type Converter interface {
	// ToETB converts a USD amount using the freshest known rate.
	ToETB(ctx context.Context, usd float64) (float64, error)
	// Rate returns the USD→ETB rate in use.
	Rate(ctx context.Context) (float64, error)
}

// DefaultConverter fetches USD→ETB from an exchange-rate API.
type DefaultConverter struct {
	APIURL       string
	FallbackRate float64
	HTTPClient   *http.Client
	Logger       *zap.Logger

	mu        sync.Mutex
	rate      float64
	fetchedAt time.Time
}

type rateAPIResponse struct {
	Success bool               `json:"success"`
	Base    string             `json:"base"`
	Rates   map[string]float64 `json:"rates"`
}

// NewDefaultConverter builds a converter with a 5s HTTP timeout.
func NewDefaultConverter(apiURL string, fallback float64, logger *zap.Logger) *DefaultConverter {
	return &DefaultConverter{
		APIURL:       apiURL,
		FallbackRate: fallback,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		Logger:       logger,
	}
}

// Rate returns the cached rate, refreshing it when stale. A fetch
// failure falls back to the configured rate rather than erroring out,
// so a rate-API outage never blocks a booking.
func (c *DefaultConverter) Rate(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rate > 0 && time.Since(c.fetchedAt) < rateCacheTTL {
		return c.rate, nil
	}

	rate, err := c.fetchRate(ctx)
	if err != nil {
		c.Logger.Warn("exchange rate fetch failed, using fallback",
			zap.Float64("fallback", c.FallbackRate), zap.Error(err))
		if c.rate > 0 {
			return c.rate, nil
		}
		return c.FallbackRate, nil
	}

	c.rate = rate
	c.fetchedAt = time.Now()
	return rate, nil
}

// ToETB converts a USD amount using the freshest known rate.
func (c *DefaultConverter) ToETB(ctx context.Context, usd float64) (float64, error) {
	rate, err := c.Rate(ctx)
	if err != nil {
		return 0, err
	}
	return math.Round(usd*rate*100) / 100, nil
}

func (c *DefaultConverter) fetchRate(ctx context.Context) (float64, error) {
	url := fmt.Sprintf("%s?base=USD&symbols=ETB", c.APIURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("building rate request failed: %w", err)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var rateResp rateAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&rateResp); err != nil {
		return 0, fmt.Errorf("decoding response failed: %w", err)
	}

	rate, ok := rateResp.Rates["ETB"]
	if !ok || rate <= 0 {
		return 0, fmt.Errorf("ETB rate missing from response")
	}
	return rate, nil
}

// FormatETB renders an amount the way users see it: "1,234.50 Birr".
func FormatETB(amount float64) string {
	whole := int64(math.Floor(math.Abs(amount)))
	cents := int64(math.Round((math.Abs(amount) - float64(whole)) * 100))
	if cents == 100 {
		whole++
		cents = 0
	}

	digits := fmt.Sprintf("%d", whole)
	var groups []string
	for len(digits) > 3 {
		groups = append([]string{digits[len(digits)-3:]}, groups...)
		digits = digits[:len(digits)-3]
	}
	groups = append([]string{digits}, groups...)

	sign := ""
	if amount < 0 {
		sign = "-"
	}
	return fmt.Sprintf("%s%s.%02d Birr", sign, strings.Join(groups, ","), cents)
}
