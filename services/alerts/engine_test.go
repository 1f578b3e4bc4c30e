package alerts_test

import (
	"context"
	"errors"
	"testing"
	"time"

	alertRepo "tripbot/database/repository/alert"
	"tripbot/models"
	"tripbot/services/alerts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEngine(repo *fakeAlerts, searcher *stubSearcher, disp *captureDispatcher) *alerts.Engine {
	return &alerts.Engine{
		Alerts:     repo,
		Trip:       searcher,
		Dispatcher: disp,
		Interval:   time.Minute,
		BatchSize:  50,
		Logger:     zap.NewNop(),
		Now:        func() time.Time { return time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC) },
	}
}

func activeAlert(id string, target float64) *models.PriceAlert {
	return &models.PriceAlert{
		ID:          id,
		UserID:      7,
		Type:        models.KindFlight,
		Criteria:    map[string]string{"from_city": "Addis Ababa", "to_city": "Nairobi"},
		TargetPrice: target,
		Currency:    "ETB",
		Status:      models.AlertActive,
		ExpiresAt:   time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestPriceAboveTargetStaysActive(t *testing.T) {
	repo := newFakeAlerts()
	require.NoError(t, repo.Create(activeAlert("a1", 300)))
	searcher := &stubSearcher{fn: pricesOnly(350, 410)}
	disp := &captureDispatcher{}

	checked := newEngine(repo, searcher, disp).RunOnce(context.Background())

	assert.Equal(t, 1, checked)
	assert.Equal(t, models.AlertActive, repo.status("a1"))
	assert.Equal(t, 350.0, repo.currentPrice("a1"))
	assert.Empty(t, disp.all())
}

func TestDropToTargetFiresOnce(t *testing.T) {
	repo := newFakeAlerts()
	require.NoError(t, repo.Create(activeAlert("a1", 300)))
	searcher := &stubSearcher{fn: pricesOnly(350, 410)}
	disp := &captureDispatcher{}
	eng := newEngine(repo, searcher, disp)
	ctx := context.Background()

	eng.RunOnce(ctx)
	require.Equal(t, models.AlertActive, repo.status("a1"))

	searcher.set(pricesOnly(280, 410))
	eng.RunOnce(ctx)

	assert.Equal(t, models.AlertTriggered, repo.status("a1"))
	notes := disp.all()
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotePriceAlert, notes[0].Kind)
	assert.Equal(t, int64(7), notes[0].UserID)
	assert.Contains(t, notes[0].Body, "280.00 Birr")
	assert.Contains(t, notes[0].Body, "300.00 Birr")

	// A triggered alert leaves the active set; later passes skip it.
	assert.Equal(t, 0, eng.RunOnce(ctx))
	assert.Len(t, disp.all(), 1)
}

func TestPriceAtTargetTriggers(t *testing.T) {
	repo := newFakeAlerts()
	require.NoError(t, repo.Create(activeAlert("a1", 300)))
	searcher := &stubSearcher{fn: pricesOnly(300)}
	disp := &captureDispatcher{}

	newEngine(repo, searcher, disp).RunOnce(context.Background())

	assert.Equal(t, models.AlertTriggered, repo.status("a1"))
	assert.Len(t, disp.all(), 1)
}

func TestLostTransitionRaceDoesNotNotify(t *testing.T) {
	repo := newFakeAlerts()
	require.NoError(t, repo.Create(activeAlert("a1", 300)))
	repo.markTriggeredErr = alertRepo.ErrNotActive
	searcher := &stubSearcher{fn: pricesOnly(250)}
	disp := &captureDispatcher{}

	checked := newEngine(repo, searcher, disp).RunOnce(context.Background())

	assert.Equal(t, 1, checked)
	assert.Empty(t, disp.all())
}

func TestExpiredAlertSettlesQuietly(t *testing.T) {
	repo := newFakeAlerts()
	alert := activeAlert("a1", 300)
	alert.ExpiresAt = time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	require.NoError(t, repo.Create(alert))
	searcher := &stubSearcher{fn: pricesOnly(100)}
	disp := &captureDispatcher{}

	newEngine(repo, searcher, disp).RunOnce(context.Background())

	assert.Equal(t, models.AlertExpired, repo.status("a1"))
	assert.Zero(t, searcher.callCount())
	assert.Empty(t, disp.all())
}

func TestEmptyResultsLeaveAlertUntouched(t *testing.T) {
	repo := newFakeAlerts()
	require.NoError(t, repo.Create(activeAlert("a1", 300)))
	searcher := &stubSearcher{fn: func(string, map[string]string) ([]models.Offer, error) { return nil, nil }}
	disp := &captureDispatcher{}

	newEngine(repo, searcher, disp).RunOnce(context.Background())

	assert.Equal(t, models.AlertActive, repo.status("a1"))
	assert.Zero(t, repo.currentPrice("a1"))
	assert.Empty(t, disp.all())
}

func TestProviderFaultDoesNotStopThePass(t *testing.T) {
	repo := newFakeAlerts()
	bad := activeAlert("a1", 300)
	bad.Criteria["to_city"] = "Mombasa"
	require.NoError(t, repo.Create(bad))
	good := activeAlert("a2", 300)
	good.CreatedAt = time.Now().Add(time.Second)
	require.NoError(t, repo.Create(good))

	searcher := &stubSearcher{fn: func(kind string, criteria map[string]string) ([]models.Offer, error) {
		if criteria["to_city"] == "Mombasa" {
			return nil, errors.New("provider timeout")
		}
		return pricesOnly(250)(kind, criteria)
	}}
	disp := &captureDispatcher{}

	checked := newEngine(repo, searcher, disp).RunOnce(context.Background())

	assert.Equal(t, 1, checked)
	assert.Equal(t, models.AlertActive, repo.status("a1"))
	assert.Equal(t, models.AlertTriggered, repo.status("a2"))
	assert.Len(t, disp.all(), 1)
}
