package usecase

import (
	"context"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/gaps"
	"github.com/will1980j/trading-hmm-server-sub001/internal/lifecycle"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// openLookback bounds the event-log cross-check. Trades run minutes to
// hours; anything older without a terminal event is already a gap the
// detector cannot fix.
const openLookback = 48 * time.Hour

// ReconcileCycle is the periodic batch job: scan open trades for gaps,
// record them, run tiered repair per trade, and publish the health score.
type ReconcileCycle struct {
	states     drepo.TradeStateStore
	events     drepo.TradeEventStore
	audit      drepo.AuditStore
	detector   *gaps.Detector
	reconciler *gaps.Reconciler
	metrics    drepo.Metrics
	l          *applogger.Logger
}

func NewReconcileCycle(
	states drepo.TradeStateStore,
	events drepo.TradeEventStore,
	audit drepo.AuditStore,
	detector *gaps.Detector,
	reconciler *gaps.Reconciler,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *ReconcileCycle {
	return &ReconcileCycle{
		states:     states,
		events:     events,
		audit:      audit,
		detector:   detector,
		reconciler: reconciler,
		metrics:    metrics,
		l:          l,
	}
}

// Run executes one full cycle. A failing trade is logged and skipped;
// the cycle always finishes and always reports a health score.
func (c *ReconcileCycle) Run(ctx context.Context) error {
	start := time.Now()

	states, err := c.states.ListOpen(ctx)
	if err != nil {
		c.metrics.RecordError("reconcile_list")
		return err
	}

	now := time.Now().UTC()
	states = c.materializeMissing(ctx, states, now)
	allGaps := c.detector.Scan(states, now)

	if len(allGaps) > 0 {
		if err := c.audit.RecordGaps(ctx, allGaps); err != nil {
			c.metrics.RecordError("gap_audit")
			c.l.Error("gap audit write failed", applogger.Error(err))
		}
	}

	byTrade := make(map[string][]models.GapRecord)
	for _, g := range allGaps {
		byTrade[g.TradeID] = append(byTrade[g.TradeID], g)
	}

	repaired := 0
	for _, s := range states {
		tradeGaps := byTrade[s.TradeID]
		if len(tradeGaps) == 0 {
			continue
		}

		evts, err := c.events.EventsForTrade(ctx, s.TradeID)
		if err != nil {
			c.metrics.RecordError("reconcile_events")
			c.l.Warn("event load failed, skipping trade",
				applogger.String("trade_id", s.TradeID), applogger.Error(err))
			continue
		}
		if err := c.reconciler.ReconcileTrade(ctx, s, evts, tradeGaps); err != nil {
			c.metrics.RecordError("reconcile_trade")
			c.l.Warn("reconcile failed, skipping trade",
				applogger.String("trade_id", s.TradeID), applogger.Error(err))
			continue
		}
		repaired++
	}

	score := gaps.HealthScore(allGaps)
	c.metrics.RecordHealthScore(float64(score))
	c.l.Info("reconcile cycle complete",
		applogger.Int("trades", len(states)),
		applogger.Int("gaps", len(allGaps)),
		applogger.Int("repaired", repaired),
		applogger.Int("health_score", score),
		applogger.Duration("took", time.Since(start)),
	)
	c.metrics.RecordLatency("reconcile_cycle", time.Since(start).Seconds())
	return nil
}

// materializeMissing cross-checks the event log against the state scan:
// a trade the log says is open but the store has no row for (consumer
// downtime, lost upsert) is folded from its events and added to the
// cycle. Failures here degrade the check, not the cycle.
func (c *ReconcileCycle) materializeMissing(ctx context.Context, states []*models.TradeState, now time.Time) []*models.TradeState {
	ids, err := c.events.OpenTradeIDs(ctx, now.Add(-openLookback))
	if err != nil {
		c.metrics.RecordError("reconcile_open_ids")
		c.l.Warn("event-log open-trade check failed", applogger.Error(err))
		return states
	}

	known := make(map[string]bool, len(states))
	for _, s := range states {
		known[s.TradeID] = true
	}
	for _, id := range ids {
		if known[id] {
			continue
		}
		evts, err := c.events.EventsForTrade(ctx, id)
		if err != nil || len(evts) == 0 {
			continue
		}
		lifecycle.SortEvents(evts)
		st, err := lifecycle.Build(evts)
		if err != nil || st == nil || !st.Open() {
			continue
		}
		if err := c.states.Upsert(ctx, st); err != nil {
			c.metrics.RecordError("reconcile_materialize")
			c.l.Warn("state materialize failed",
				applogger.String("trade_id", id), applogger.Error(err))
			continue
		}
		states = append(states, st)
	}
	return states
}
