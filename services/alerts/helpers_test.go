package alerts_test

// Shared doubles for the alert service and engine tests. The repo fake
// keeps the store's compare-and-set semantics so the fire-once
// guarantees are exercised for real.

import (
	"context"
	"sort"
	"sync"
	"time"

	alertRepo "tripbot/database/repository/alert"
	"tripbot/models"
)

type fakeAlerts struct {
	mu    sync.Mutex
	items map[string]*models.PriceAlert

	// markTriggeredErr simulates another engine winning the transition
	// between ListActive and MarkTriggered.
	markTriggeredErr error
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{items: make(map[string]*models.PriceAlert)}
}

func (f *fakeAlerts) Create(alert *models.PriceAlert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	cp := *alert
	f.items[alert.ID] = &cp
	return nil
}

func (f *fakeAlerts) GetByID(id string) (*models.PriceAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return nil, alertRepo.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeAlerts) ListByUser(userID int64, limit int) ([]models.PriceAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PriceAlert
	for _, a := range f.items {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAlerts) CountActive(userID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, a := range f.items {
		if a.UserID == userID && a.Status == models.AlertActive {
			n++
		}
	}
	return n, nil
}

func (f *fakeAlerts) ListActive(limit int) ([]models.PriceAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PriceAlert
	for _, a := range f.items {
		if a.Status == models.AlertActive {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeAlerts) SetCurrentPrice(id string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return alertRepo.ErrNotFound
	}
	a.CurrentPrice = price
	return nil
}

func (f *fakeAlerts) MarkTriggered(id string, price float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markTriggeredErr != nil {
		return f.markTriggeredErr
	}
	a, ok := f.items[id]
	if !ok {
		return alertRepo.ErrNotFound
	}
	if a.Status != models.AlertActive {
		return alertRepo.ErrNotActive
	}
	now := time.Now()
	a.Status = models.AlertTriggered
	a.CurrentPrice = price
	a.TriggeredAt = &now
	return nil
}

func (f *fakeAlerts) MarkExpired(id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok {
		return alertRepo.ErrNotFound
	}
	if a.Status != models.AlertActive {
		return alertRepo.ErrNotActive
	}
	a.Status = models.AlertExpired
	return nil
}

func (f *fakeAlerts) Cancel(id string, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.items[id]
	if !ok || a.UserID != userID {
		return alertRepo.ErrNotFound
	}
	if a.Status != models.AlertActive {
		return alertRepo.ErrNotActive
	}
	a.Status = models.AlertCancelled
	return nil
}

func (f *fakeAlerts) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.items[id]; ok {
		return a.Status
	}
	return ""
}

func (f *fakeAlerts) currentPrice(id string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.items[id]; ok {
		return a.CurrentPrice
	}
	return 0
}

// stubSearcher answers provider searches from a swappable function.
type stubSearcher struct {
	mu    sync.Mutex
	fn    func(kind string, criteria map[string]string) ([]models.Offer, error)
	calls int
}

func pricesOnly(prices ...float64) func(string, map[string]string) ([]models.Offer, error) {
	return func(kind string, criteria map[string]string) ([]models.Offer, error) {
		var out []models.Offer
		for i, p := range prices {
			out = append(out, models.Offer{
				ID: "O" + string(rune('1'+i)), Kind: kind, PriceETB: p, Currency: "ETB",
			})
		}
		return out, nil
	}
}

func (s *stubSearcher) Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error) {
	s.mu.Lock()
	fn := s.fn
	s.calls++
	s.mu.Unlock()
	if fn == nil {
		return nil, nil
	}
	return fn(kind, criteria)
}

func (s *stubSearcher) Book(ctx context.Context, booking *models.Booking) (string, error) {
	return "", nil
}

func (s *stubSearcher) set(fn func(string, map[string]string) ([]models.Offer, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
}

func (s *stubSearcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type captureDispatcher struct {
	mu    sync.Mutex
	notes []models.Notification
}

func (d *captureDispatcher) Deliver(ctx context.Context, note models.Notification) error {
	return d.record(note)
}

func (d *captureDispatcher) Enqueue(ctx context.Context, note models.Notification, fireAt time.Time) error {
	return d.record(note)
}

func (d *captureDispatcher) record(note models.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notes = append(d.notes, note)
	return nil
}

func (d *captureDispatcher) all() []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]models.Notification, len(d.notes))
	copy(out, d.notes)
	return out
}
