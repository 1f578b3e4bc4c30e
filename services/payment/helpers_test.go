package payment_test

// Shared doubles for the orchestrator and poller tests. The repo fakes
// mirror the Mongo layer's compare-and-set behavior, which is what the
// exactly-once guarantees hang on.

import (
	"context"
	"sync"
	"time"

	bookingRepo "tripbot/database/repository/booking"
	intentRepo "tripbot/database/repository/intent"
	"tripbot/models"
	"tripbot/services/payment"

	"go.uber.org/zap"
)

type memBookings struct {
	mu    sync.Mutex
	items map[string]*models.Booking
}

func newMemBookings() *memBookings {
	return &memBookings{items: make(map[string]*models.Booking)}
}

func (m *memBookings) Create(b *models.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *b
	m.items[b.ID] = &cp
	return nil
}

func (m *memBookings) GetByID(id string) (*models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return nil, bookingRepo.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (m *memBookings) ListByUser(userID int64, limit int) ([]models.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Booking
	for _, b := range m.items {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memBookings) TransitionPayment(id, from, to, method, paymentRef string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.items[id]
	if !ok {
		return bookingRepo.ErrNotFound
	}
	if b.PaymentStatus != from {
		return bookingRepo.ErrStatusConflict
	}
	b.PaymentStatus = to
	b.PaymentMethod = method
	b.PaymentRef = paymentRef
	b.UpdatedAt = time.Now()
	return nil
}

type memIntents struct {
	mu    sync.Mutex
	items map[string]*models.PaymentIntent
}

func newMemIntents() *memIntents {
	return &memIntents{items: make(map[string]*models.PaymentIntent)}
}

// seed inserts an intent without touching its timestamps, for tests
// that need control over CreatedAt.
func (m *memIntents) seed(intent models.PaymentIntent) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := intent
	m.items[intent.ID] = &cp
}

func (m *memIntents) Create(intent *models.PaymentIntent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.BookingID == intent.BookingID && it.Status == models.IntentPending {
			return intentRepo.ErrDuplicatePending
		}
	}
	now := time.Now()
	intent.CreatedAt = now
	intent.UpdatedAt = now
	cp := *intent
	m.items[intent.ID] = &cp
	return nil
}

func (m *memIntents) GetByID(id string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return nil, intentRepo.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (m *memIntents) GetByGatewayRef(ref string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.GatewayRef == ref {
			cp := *it
			return &cp, nil
		}
	}
	return nil, intentRepo.ErrNotFound
}

func (m *memIntents) GetPendingByBookingID(bookingID string) (*models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.BookingID == bookingID && it.Status == models.IntentPending {
			cp := *it
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memIntents) Resolve(id, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return intentRepo.ErrNotFound
	}
	if it.Status != models.IntentPending {
		return intentRepo.ErrNotPending
	}
	it.Status = to
	it.UpdatedAt = time.Now()
	return nil
}

func (m *memIntents) ListPendingBefore(cutoff time.Time, limit int) ([]models.PaymentIntent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PaymentIntent
	for _, it := range m.items {
		if it.Status == models.IntentPending && it.CreatedAt.Before(cutoff) {
			out = append(out, *it)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memIntents) IncrementPolls(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return intentRepo.ErrNotFound
	}
	it.Polls++
	return nil
}

func (m *memIntents) pollCount(id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if it, ok := m.items[id]; ok {
		return it.Polls
	}
	return 0
}

func (m *memIntents) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

type memUsers struct {
	mu    sync.Mutex
	items map[int64]*models.User
}

func newMemUsers() *memUsers {
	return &memUsers{items: make(map[int64]*models.User)}
}

func (m *memUsers) GetByID(id int64) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) Create(user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.items[user.ID] = &cp
	return nil
}

func (m *memUsers) Update(user *models.User) error { return m.Create(user) }

func (m *memUsers) SetLanguage(id int64, lang string) error { return nil }

func (m *memUsers) SetContact(id int64, email, phone string) error { return nil }

func (m *memUsers) Deactivate(id int64) error { return nil }

type stubTrip struct {
	mu       sync.Mutex
	bookErr  error
	booked   []string
	provider string
}

func (s *stubTrip) Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error) {
	return nil, nil
}

func (s *stubTrip) Book(ctx context.Context, booking *models.Booking) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bookErr != nil {
		return "", s.bookErr
	}
	s.booked = append(s.booked, booking.ID)
	return "PROV-" + booking.Reference, nil
}

func (s *stubTrip) bookedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.booked))
	copy(out, s.booked)
	return out
}

type queuedNote struct {
	note   models.Notification
	fireAt time.Time
}

type captureDispatcher struct {
	mu    sync.Mutex
	queue []queuedNote
}

func (d *captureDispatcher) Deliver(ctx context.Context, note models.Notification) error {
	return d.Enqueue(ctx, note, time.Time{})
}

func (d *captureDispatcher) Enqueue(ctx context.Context, note models.Notification, fireAt time.Time) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = append(d.queue, queuedNote{note: note, fireAt: fireAt})
	return nil
}

func (d *captureDispatcher) byKind(kind string) []queuedNote {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []queuedNote
	for _, q := range d.queue {
		if q.note.Kind == kind {
			out = append(out, q)
		}
	}
	return out
}

// orchFixture bundles an orchestrator over mock-mode gateways with its
// backing fakes.
type orchFixture struct {
	orch     *payment.DefaultOrchestrator
	bookings *memBookings
	intents  *memIntents
	users    *memUsers
	trip     *stubTrip
	disp     *captureDispatcher

	hookMu    sync.Mutex
	hookCalls []bool
}

func newOrchFixture() *orchFixture {
	f := &orchFixture{
		bookings: newMemBookings(),
		intents:  newMemIntents(),
		users:    newMemUsers(),
		trip:     &stubTrip{},
		disp:     &captureDispatcher{},
	}
	logger := zap.NewNop()
	f.orch = &payment.DefaultOrchestrator{
		Bookings: f.bookings,
		Intents:  f.intents,
		Users:    f.users,
		Gateways: map[string]payment.Gateway{
			models.MethodTeleBirr: payment.NewTeleBirrGateway("", "", "", logger),
			models.MethodCBEBirr:  payment.NewCBEBirrGateway("", "", "", logger),
		},
		Trip:                f.trip,
		Dispatcher:          f.disp,
		FlightReminderHours: 24,
		Logger:              logger,
		Now:                 func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) },
	}
	f.orch.SetResolvedHook(func(ctx context.Context, booking *models.Booking, succeeded bool) {
		f.hookMu.Lock()
		defer f.hookMu.Unlock()
		f.hookCalls = append(f.hookCalls, succeeded)
	})
	return f
}

func (f *orchFixture) hookOutcomes() []bool {
	f.hookMu.Lock()
	defer f.hookMu.Unlock()
	out := make([]bool, len(f.hookCalls))
	copy(out, f.hookCalls)
	return out
}

func (f *orchFixture) addBooking(b *models.Booking) *models.Booking {
	if b.ID == "" {
		b.ID = "bk-" + b.Reference
	}
	if b.Currency == "" {
		b.Currency = "ETB"
	}
	if b.PaymentStatus == "" {
		b.PaymentStatus = models.PaymentPending
	}
	if err := f.bookings.Create(b); err != nil {
		panic(err)
	}
	return b
}

func flightBooking() *models.Booking {
	return &models.Booking{
		UserID:     7,
		Type:       models.KindFlight,
		Provider:   "Ethiopian Airlines",
		Reference:  "FL3A91BC04",
		OfferID:    "F2",
		Title:      "Ethiopian Airlines ET-302",
		TotalPrice: 500,
		Details:    map[string]string{"departure_time": "2026-09-01T08:00:00Z"},
	}
}
