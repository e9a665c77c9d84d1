package repository

import (
	"context"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

// BarStream is a live 1-minute bar feed. The core consumes it; it does
// not own the upstream source.
type BarStream interface {
	Connect(ctx context.Context) error
	Subscribe(ctx context.Context) error
	Read(ctx context.Context) (<-chan *models.Bar, <-chan error)
	Reconnect(ctx context.Context) error
	Close() error
	IsConnected() bool
}

// BarStore supplies ordered historical 1-minute bars and accepts new ones.
type BarStore interface {
	Init(ctx context.Context) error
	Store(ctx context.Context, b *models.Bar) error
	StoreBatch(ctx context.Context, bars []*models.Bar) error
	Query(ctx context.Context, symbol string, from, to time.Time) ([]*models.Bar, error)
	Health(ctx context.Context) error
	Close() error
}

// SignalSink receives emitted signal events. Implementations deduplicate
// by (symbol, ts, direction).
type SignalSink interface {
	Emit(ctx context.Context, s *models.SignalEvent) error
	Close() error
}

// TradeEventStore is the append-only source of truth for trade lifecycles.
type TradeEventStore interface {
	Init(ctx context.Context) error
	Append(ctx context.Context, e *models.TradeEvent) error
	EventsForTrade(ctx context.Context, tradeID string) ([]models.TradeEvent, error)
	OpenTradeIDs(ctx context.Context, since time.Time) ([]string, error)
	Close() error
}

// TradeStateStore holds the canonical derived trade view. Writes follow the
// fill-if-null discipline: a field already holding a value is never
// overwritten, even under concurrent writers.
type TradeStateStore interface {
	Init(ctx context.Context) error
	Upsert(ctx context.Context, s *models.TradeState) error
	FillMissing(ctx context.Context, tradeID string, fields map[string]any) (filled []string, err error)
	Get(ctx context.Context, tradeID string) (*models.TradeState, error)
	ListOpen(ctx context.Context) ([]*models.TradeState, error)
	Close() error
}

// AuditStore records gap detections and reconciliation attempts,
// append-only.
type AuditStore interface {
	Init(ctx context.Context) error
	RecordGaps(ctx context.Context, gaps []models.GapRecord) error
	RecordReconciliation(ctx context.Context, r *models.ReconciliationRecord) error
	Close() error
}

// Metrics is the operational recorder implemented by pkg/metrics.
type Metrics interface {
	RecordBarProcessed(symbol string)
	RecordBarRejected(symbol, reason string)
	RecordSignalEmitted(symbol, direction string)
	RecordEventProcessed(kind string)
	RecordError(kind string)
	RecordHealthScore(score float64)
	RecordLastPrice(symbol string, price float64)
	RecordLatency(op string, seconds float64)
}
