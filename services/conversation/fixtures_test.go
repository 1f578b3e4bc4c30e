package conversation

// In-memory doubles for the repositories and services the machine
// drives. They keep the Mongo implementations' compare-and-set
// semantics so payment and alert races behave the same as production.

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	alertRepo "tripbot/database/repository/alert"
	bookingRepo "tripbot/database/repository/booking"
	intentRepo "tripbot/database/repository/intent"
	"tripbot/models"
	"tripbot/services/alerts"
	"tripbot/services/offers"
	"tripbot/services/payment"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock {
	return &fakeClock{t: t}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

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
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
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

type memSearches struct {
	mu      sync.Mutex
	records []models.SearchRecord
}

func (m *memSearches) Create(record *models.SearchRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, *record)
	return nil
}

func (m *memSearches) LatestByUser(userID int64, searchType string) (*models.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if r.UserID != userID {
			continue
		}
		if searchType != "" && r.Type != searchType {
			continue
		}
		cp := r
		return &cp, nil
	}
	return nil, nil
}

func (m *memSearches) ListByUser(userID int64, limit int) ([]models.SearchRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.SearchRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].UserID == userID {
			out = append(out, m.records[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type memIntents struct {
	mu    sync.Mutex
	items map[string]*models.PaymentIntent
}

func newMemIntents() *memIntents {
	return &memIntents{items: make(map[string]*models.PaymentIntent)}
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

func (m *memUsers) Update(user *models.User) error {
	return m.Create(user)
}

func (m *memUsers) SetLanguage(id int64, lang string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.items[id]; ok {
		u.Language = lang
	}
	return nil
}

func (m *memUsers) SetContact(id int64, email, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.items[id]; ok {
		u.Email = email
		u.Phone = phone
	}
	return nil
}

func (m *memUsers) Deactivate(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.items[id]; ok {
		u.Active = false
	}
	return nil
}

type memAlerts struct {
	mu    sync.Mutex
	items map[string]*models.PriceAlert
}

func newMemAlerts() *memAlerts {
	return &memAlerts{items: make(map[string]*models.PriceAlert)}
}

func (m *memAlerts) Create(alert *models.PriceAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now()
	}
	cp := *alert
	m.items[alert.ID] = &cp
	return nil
}

func (m *memAlerts) GetByID(id string) (*models.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return nil, alertRepo.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memAlerts) ListByUser(userID int64, limit int) ([]models.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PriceAlert
	for _, a := range m.items {
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

func (m *memAlerts) CountActive(userID int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, a := range m.items {
		if a.UserID == userID && a.Status == models.AlertActive {
			n++
		}
	}
	return n, nil
}

func (m *memAlerts) ListActive(limit int) ([]models.PriceAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PriceAlert
	for _, a := range m.items {
		if a.Status == models.AlertActive {
			out = append(out, *a)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memAlerts) SetCurrentPrice(id string, price float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return alertRepo.ErrNotFound
	}
	a.CurrentPrice = price
	return nil
}

func (m *memAlerts) transition(id string, userID *int64, to string, price *float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.items[id]
	if !ok {
		return alertRepo.ErrNotFound
	}
	if userID != nil && a.UserID != *userID {
		return alertRepo.ErrNotFound
	}
	if a.Status != models.AlertActive {
		return alertRepo.ErrNotActive
	}
	a.Status = to
	if price != nil {
		a.CurrentPrice = *price
		now := time.Now()
		a.TriggeredAt = &now
	}
	return nil
}

func (m *memAlerts) MarkTriggered(id string, price float64) error {
	return m.transition(id, nil, models.AlertTriggered, &price)
}

func (m *memAlerts) MarkExpired(id string) error {
	return m.transition(id, nil, models.AlertExpired, nil)
}

func (m *memAlerts) Cancel(id string, userID int64) error {
	return m.transition(id, &userID, models.AlertCancelled, nil)
}

type stubTrip struct {
	mu           sync.Mutex
	offers       []models.Offer
	err          error
	searches     int
	lastKind     string
	lastCriteria map[string]string
}

func (s *stubTrip) Search(ctx context.Context, kind string, criteria map[string]string) ([]models.Offer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.searches++
	s.lastKind = kind
	s.lastCriteria = criteria
	if s.err != nil {
		return nil, s.err
	}
	out := make([]models.Offer, len(s.offers))
	copy(out, s.offers)
	return out, nil
}

func (s *stubTrip) Book(ctx context.Context, booking *models.Booking) (string, error) {
	return "CONF-" + booking.Reference, nil
}

func (s *stubTrip) setOffers(offers []models.Offer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = offers
}

func (s *stubTrip) searchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
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

func (d *captureDispatcher) byKind(kind string) []models.Notification {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []models.Notification
	for _, n := range d.notes {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

// fixture wires the machine to a real Redis store and offer cache
// (miniredis), the real payment orchestrator with mock-mode gateways,
// and in-memory repositories.
type fixture struct {
	svc        *DefaultConversationService
	clock      *fakeClock
	mr         *miniredis.Miniredis
	tripStub   *stubTrip
	bookings   *memBookings
	searches   *memSearches
	intents    *memIntents
	alertStore *memAlerts
	dispatcher *captureDispatcher
	orch       *payment.DefaultOrchestrator
	cache      *offers.RedisCache
}

func flightCatalog() []models.Offer {
	return []models.Offer{
		{ID: "F1", Kind: models.KindFlight, Title: "Ethiopian Airlines ET-302", Provider: "Ethiopian Airlines",
			PriceETB: 420, Currency: "ETB", Details: map[string]string{"departure_time": "2026-09-01T08:00:00Z"}},
		{ID: "F2", Kind: models.KindFlight, Title: "Kenya Airways KQ-442", Provider: "Kenya Airways",
			PriceETB: 500, Currency: "ETB", Details: map[string]string{"departure_time": "2026-09-01T14:00:00Z"}},
		{ID: "F3", Kind: models.KindFlight, Title: "Turkish Airlines TK-724", Provider: "Turkish Airlines",
			PriceETB: 610, Currency: "ETB", Details: map[string]string{"departure_time": "2026-09-01T22:00:00Z"}},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	clock := newFakeClock(time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC))
	logger := zap.NewNop()

	cache := offers.NewRedisCache(client, 15*time.Minute, logger)
	cache.Now = clock.Now

	f := &fixture{
		clock:      clock,
		mr:         mr,
		tripStub:   &stubTrip{offers: flightCatalog()},
		bookings:   newMemBookings(),
		searches:   &memSearches{},
		intents:    newMemIntents(),
		alertStore: newMemAlerts(),
		dispatcher: &captureDispatcher{},
		cache:      cache,
	}

	f.orch = &payment.DefaultOrchestrator{
		Bookings: f.bookings,
		Intents:  f.intents,
		Users:    newMemUsers(),
		Gateways: map[string]payment.Gateway{
			models.MethodTeleBirr: payment.NewTeleBirrGateway("", "", "", logger),
			models.MethodCBEBirr:  payment.NewCBEBirrGateway("", "", "", logger),
		},
		Trip:       f.tripStub,
		Dispatcher: f.dispatcher,
		Logger:     logger,
		Now:        clock.Now,
	}

	alertSvc := &alerts.DefaultAlertService{
		Repo:       f.alertStore,
		MaxPerUser: 3,
		ExpiryDays: 30,
		Logger:     logger,
		Now:        clock.Now,
	}

	f.svc = &DefaultConversationService{
		Store:         NewRedisStore(client, 30*time.Minute),
		Bookings:      f.bookings,
		Intents:       f.intents,
		Searches:      f.searches,
		Trip:          f.tripStub,
		Offers:        cache,
		Payments:      f.orch,
		Alerts:        alertSvc,
		Dispatcher:    f.dispatcher,
		IdleTimeout:   30 * time.Minute,
		MaxPassengers: 9,
		Logger:        logger,
		Now:           clock.Now,
	}
	f.orch.SetResolvedHook(f.svc.OnPaymentResolved)
	return f
}

// drive feeds one input and fails the test on a machine error.
func (f *fixture) drive(t *testing.T, userID int64, input string) *Prompt {
	t.Helper()
	p, err := f.svc.Advance(context.Background(), userID, input)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p
}

// toSelection walks a flight flow up to the offer list.
func (f *fixture) toSelection(t *testing.T, userID int64) *Prompt {
	t.Helper()
	f.drive(t, userID, "flow:flight")
	f.drive(t, userID, "Addis Ababa")
	f.drive(t, userID, "Dire Dawa")
	f.drive(t, userID, "2026-09-01")
	f.drive(t, userID, "skip")
	return f.drive(t, userID, "2")
}

// toPayment selects an offer and stops at the method prompt.
func (f *fixture) toPayment(t *testing.T, userID int64, offerID string) *Prompt {
	t.Helper()
	f.toSelection(t, userID)
	return f.drive(t, userID, "select:"+offerID)
}

func (f *fixture) session(t *testing.T, userID int64) *models.Session {
	t.Helper()
	sess, err := f.svc.Store.Get(context.Background(), userID)
	require.NoError(t, err)
	return sess
}
