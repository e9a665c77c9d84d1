package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/lifecycle"
	"github.com/will1980j/trading-hmm-server-sub001/pkg/cache"
	pkgkafka "github.com/will1980j/trading-hmm-server-sub001/pkg/kafka"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// LifecycleProcessor consumes trade lifecycle events from Kafka, appends
// them to the event store, and re-folds the trade's canonical state.
type LifecycleProcessor struct {
	topic    string
	events   drepo.TradeEventStore
	states   drepo.TradeStateStore
	cache    cache.Service
	cacheTTL time.Duration
	metrics  drepo.Metrics
	l        *applogger.Logger
}

func NewLifecycleProcessor(
	topic string,
	events drepo.TradeEventStore,
	states drepo.TradeStateStore,
	c cache.Service,
	cacheTTL time.Duration,
	metrics drepo.Metrics,
	l *applogger.Logger,
) *LifecycleProcessor {
	return &LifecycleProcessor{
		topic:    topic,
		events:   events,
		states:   states,
		cache:    c,
		cacheTTL: cacheTTL,
		metrics:  metrics,
		l:        l,
	}
}

func (h *LifecycleProcessor) Topic() string { return h.topic }

var knownKinds = map[models.TradeEventKind]bool{
	models.EventSignalCreated: true,
	models.EventEntry:         true,
	models.EventMfeUpdate:     true,
	models.EventBeTriggered:   true,
	models.EventExitBreakEven: true,
	models.EventExitStopLoss:  true,
	models.EventExitTarget:    true,
	models.EventCancelled:     true,
}

// Handle decodes one event, appends it, and rebuilds the trade state.
// A decode failure is returned so the consumer retries and eventually
// routes the message to the DLQ. Unknown kinds are counted and skipped,
// not retried: a rule change upstream must not wedge the partition.
func (h *LifecycleProcessor) Handle(ctx context.Context, b []byte) error {
	var e models.TradeEvent
	if err := json.Unmarshal(b, &e); err != nil {
		h.metrics.RecordError("event_unmarshal")
		return err
	}
	if e.TradeID == "" {
		h.metrics.RecordError("event_no_trade_id")
		return fmt.Errorf("trade event missing trade_id")
	}
	if !knownKinds[e.Kind] {
		h.metrics.RecordError("event_unknown_kind")
		h.l.Warn("unknown trade event kind",
			applogger.String("trade_id", e.TradeID),
			applogger.String("kind", string(e.Kind)),
		)
		return nil
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.RawPayload = b

	start := time.Now()
	if err := h.events.Append(ctx, &e); err != nil {
		h.metrics.RecordError("event_append")
		return fmt.Errorf("append trade event: %w", err)
	}

	if err := h.refold(ctx, e.TradeID); err != nil {
		return err
	}

	h.metrics.RecordEventProcessed(string(e.Kind))
	h.metrics.RecordLatency("lifecycle_event", time.Since(start).Seconds())
	return nil
}

// refold rebuilds the trade state from the full event history and writes
// it through store and cache.
func (h *LifecycleProcessor) refold(ctx context.Context, tradeID string) error {
	evts, err := h.events.EventsForTrade(ctx, tradeID)
	if err != nil {
		h.metrics.RecordError("event_load")
		return fmt.Errorf("load events for %s: %w", tradeID, err)
	}

	state, err := lifecycle.Build(evts)
	if err != nil {
		h.metrics.RecordError("lifecycle_build")
		return fmt.Errorf("build state for %s: %w", tradeID, err)
	}
	if state == nil {
		return nil
	}

	if err := h.states.Upsert(ctx, state); err != nil {
		h.metrics.RecordError("state_upsert")
		return fmt.Errorf("upsert state for %s: %w", tradeID, err)
	}

	if h.cache != nil {
		key := cache.TradeStateKey(tradeID)
		if state.Open() {
			if err := h.cache.Set(ctx, key, state, h.cacheTTL); err != nil {
				h.l.Warn("state cache set failed", applogger.String("trade_id", tradeID), applogger.Error(err))
			}
		} else if err := h.cache.Delete(ctx, key); err != nil {
			h.l.Warn("state cache delete failed", applogger.String("trade_id", tradeID), applogger.Error(err))
		}
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*LifecycleProcessor)(nil)
