package payment

import (
	"context"
	"time"

	intentRepo "tripbot/database/repository/intent"
	"tripbot/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

var (
	polledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_polled_total",
		Help: "Gateway status checks performed by the payment poller.",
	})
	pollErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_poll_errors_total",
		Help: "Gateway status checks that errored.",
	})
	forcedFailTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_forced_failed_total",
		Help: "Intents failed after exhausting the poll budget.",
	})
)

// Poller chases intents the gateway never called back about. Webhooks
// are the fast path; this is the guarantee that no intent stays
// pending forever: after MaxPolls unanswered checks it is failed.
type Poller struct {
	Orchestrator Orchestrator
	Intents      intentRepo.IntentRepository

	Interval  time.Duration
	PollAfter time.Duration
	MaxPolls  int
	BatchSize int

	Logger *zap.Logger
	Now    func() time.Time
}

func (p *Poller) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Start runs the poll loop until the context is cancelled.
func (p *Poller) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(p.Interval)
		defer ticker.Stop()

		p.Logger.Info("payment poller started",
			zap.Duration("interval", p.Interval), zap.Int("max_polls", p.MaxPolls))

		for {
			select {
			case <-ctx.Done():
				p.Logger.Info("payment poller stopped")
				return
			case <-ticker.C:
				p.RunOnce(ctx)
			}
		}
	}()
}

// RunOnce performs a single poll pass. One broken intent never blocks
// the rest of the batch.
func (p *Poller) RunOnce(ctx context.Context) int {
	batch := p.BatchSize
	if batch <= 0 {
		batch = 50
	}

	cutoff := p.now().Add(-p.PollAfter)
	intents, err := p.Intents.ListPendingBefore(cutoff, batch)
	if err != nil {
		p.Logger.Error("failed to list pending intents", zap.Error(err))
		return 0
	}

	processed := 0
	for i := range intents {
		intent := intents[i]
		if err := p.poll(ctx, &intent); err != nil {
			pollErrorsTotal.Inc()
			p.Logger.Warn("payment poll failed",
				zap.String("intent_id", intent.ID),
				zap.String("gateway_ref", intent.GatewayRef),
				zap.Error(err))
			continue
		}
		processed++
	}
	return processed
}

func (p *Poller) poll(ctx context.Context, intent *models.PaymentIntent) error {
	gw, ok := p.Orchestrator.GatewayFor(intent.Method)
	if !ok {
		// No gateway can ever answer for this intent; fail it now.
		forcedFailTotal.Inc()
		return p.Orchestrator.ResolveIntent(ctx, intent, models.IntentFailed)
	}

	polledTotal.Inc()
	status, err := gw.Status(ctx, intent.GatewayRef)
	if err != nil {
		return err
	}

	switch status {
	case models.IntentSucceeded, models.IntentFailed:
		return p.Orchestrator.ResolveIntent(ctx, intent, status)
	default:
		if err := p.Intents.IncrementPolls(intent.ID); err != nil {
			return err
		}
		if intent.Polls+1 >= p.MaxPolls {
			forcedFailTotal.Inc()
			p.Logger.Warn("payment intent exhausted poll budget",
				zap.String("intent_id", intent.ID), zap.Int("polls", intent.Polls+1))
			return p.Orchestrator.ResolveIntent(ctx, intent, models.IntentFailed)
		}
	}
	return nil
}
