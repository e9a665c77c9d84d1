package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

func testLogger(t *testing.T) *applogger.Logger {
	t.Helper()
	l, err := applogger.New(&applogger.Config{Level: "error", Format: "json", Output: "stderr"})
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return l
}

type memBarStore struct {
	bars    []*models.Bar
	failing bool
}

func (s *memBarStore) Init(context.Context) error { return nil }

func (s *memBarStore) Store(_ context.Context, b *models.Bar) error {
	if s.failing {
		return errors.New("store down")
	}
	s.bars = append(s.bars, b)
	return nil
}

func (s *memBarStore) StoreBatch(_ context.Context, bars []*models.Bar) error {
	s.bars = append(s.bars, bars...)
	return nil
}

func (s *memBarStore) Query(context.Context, string, time.Time, time.Time) ([]*models.Bar, error) {
	return s.bars, nil
}

func (s *memBarStore) Health(context.Context) error { return nil }
func (s *memBarStore) Close() error                 { return nil }

type memSink struct {
	signals []*models.SignalEvent
	failing bool
}

func (s *memSink) Emit(_ context.Context, e *models.SignalEvent) error {
	if s.failing {
		return errors.New("sink down")
	}
	s.signals = append(s.signals, e)
	return nil
}

func (s *memSink) Close() error { return nil }

type countMetrics struct {
	processed int
	emitted   int
	errors    map[string]int
	health    float64
}

func (m *countMetrics) RecordBarProcessed(string)          { m.processed++ }
func (m *countMetrics) RecordBarRejected(string, string)   {}
func (m *countMetrics) RecordSignalEmitted(string, string) { m.emitted++ }
func (m *countMetrics) RecordEventProcessed(string)        {}
func (m *countMetrics) RecordError(kind string) {
	if m.errors == nil {
		m.errors = make(map[string]int)
	}
	m.errors[kind]++
}
func (m *countMetrics) RecordHealthScore(score float64) { m.health = score }
func (m *countMetrics) RecordLastPrice(string, float64) {}
func (m *countMetrics) RecordLatency(string, float64)   {}

func pipelineBar(symbol string, min int, o, h, l, c float64) *models.Bar {
	return &models.Bar{
		Symbol: symbol,
		Ts:     time.Date(2025, 6, 2, 9, min, 0, 0, time.UTC),
		Open:   o, High: h, Low: l, Close: c,
	}
}

func newTestPipeline(t *testing.T, store *memBarStore, sink *memSink, m *countMetrics, filters models.SignalFilters) *SignalPipeline {
	t.Helper()
	enabled := map[drepo.Timeframe]bool{drepo.TF5m: true, drepo.TF15m: true}
	return NewSignalPipeline(store, sink, m, testLogger(t), filters, enabled, time.UTC)
}

func TestProcessEmitsOnBiasFlip(t *testing.T) {
	store := &memBarStore{}
	sink := &memSink{}
	m := &countMetrics{}
	p := newTestPipeline(t, store, sink, m, models.SignalFilters{})

	ctx := context.Background()
	// Establish an extreme, then close above it to flip Neutral -> Bullish.
	if err := p.Process(ctx, pipelineBar("NQ", 0, 100, 110, 90, 100)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(ctx, pipelineBar("NQ", 1, 100, 120, 100, 111)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	sig := sink.signals[0]
	if sig.Direction != models.DirectionBull {
		t.Fatalf("direction = %v, want Bull", sig.Direction)
	}
	if sig.LogicVersion != SignalLogicVersion {
		t.Fatalf("logic version = %q, want %q", sig.LogicVersion, SignalLogicVersion)
	}
	if sig.Biases["1m"] != "Bullish" {
		t.Fatalf("1m bias in payload = %q, want Bullish", sig.Biases["1m"])
	}
	if len(store.bars) != 2 {
		t.Fatalf("stored bars = %d, want 2", len(store.bars))
	}
	if m.processed != 2 || m.emitted != 1 {
		t.Fatalf("metrics processed=%d emitted=%d, want 2 and 1", m.processed, m.emitted)
	}
}

func TestProcessNoSignalWithoutFlip(t *testing.T) {
	sink := &memSink{}
	p := newTestPipeline(t, &memBarStore{}, sink, &countMetrics{}, models.SignalFilters{})

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		// Flat bars inside the opening range never flip bias.
		if err := p.Process(ctx, pipelineBar("NQ", i, 100, 101, 99, 100)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	if len(sink.signals) != 0 {
		t.Fatalf("signals = %d, want 0", len(sink.signals))
	}
}

func TestProcessPerSymbolIsolation(t *testing.T) {
	sink := &memSink{}
	p := newTestPipeline(t, &memBarStore{}, sink, &countMetrics{}, models.SignalFilters{})

	ctx := context.Background()
	// NQ flips Bullish; ES only sees its first bar and must stay Neutral
	// regardless of what NQ's engine did.
	p.Process(ctx, pipelineBar("NQ", 0, 100, 110, 90, 100))
	p.Process(ctx, pipelineBar("ES", 0, 5000, 5010, 4990, 5000))
	p.Process(ctx, pipelineBar("NQ", 1, 100, 120, 100, 111))

	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1", len(sink.signals))
	}
	if sink.signals[0].Symbol != "NQ" {
		t.Fatalf("signal symbol = %q, want NQ", sink.signals[0].Symbol)
	}
}

func TestWarmupFoldsWithoutSideEffects(t *testing.T) {
	store := &memBarStore{}
	sink := &memSink{}
	p := newTestPipeline(t, store, sink, &countMetrics{}, models.SignalFilters{})

	warm := []*models.Bar{
		pipelineBar("NQ", 0, 100, 110, 90, 100),
		pipelineBar("NQ", 1, 100, 120, 100, 111),
	}
	p.Warmup(warm)

	if len(sink.signals) != 0 || len(store.bars) != 0 {
		t.Fatalf("warmup emitted %d signals, stored %d bars; want 0 and 0",
			len(sink.signals), len(store.bars))
	}

	// The warmed engine must behave exactly as one that processed the
	// same history live: the next neutral bar still emits nothing, a
	// break below the running low flips Bearish and emits.
	ctx := context.Background()
	p.Process(ctx, pipelineBar("NQ", 2, 111, 112, 110, 111))
	if len(sink.signals) != 0 {
		t.Fatalf("flat bar after warmup emitted %d signals", len(sink.signals))
	}
	p.Process(ctx, pipelineBar("NQ", 3, 111, 111, 85, 86))
	if len(sink.signals) != 1 || sink.signals[0].Direction != models.DirectionBear {
		t.Fatalf("expected one Bear signal after break below warmed-up low, got %v", sink.signals)
	}
}

func TestFoldDeterministicAcrossRestart(t *testing.T) {
	bars := make([]*models.Bar, 0, 120)
	px := 100.0
	for i := 0; i < 120; i++ {
		step := float64((i*7919+13)%11) - 5
		o := px
		c := px + step*0.3
		h := o
		if c > h {
			h = c
		}
		h += float64((i*104729)%5) * 0.1
		l := o
		if c < l {
			l = c
		}
		l -= float64((i*1299709)%5) * 0.1
		bars = append(bars, pipelineBar("NQ", i%60, o, h, l, c))
		px = c
	}

	fold := func(p *SignalPipeline, bs []*models.Bar) int {
		n := 0
		for _, b := range bs {
			n += len(p.Fold(b))
		}
		return n
	}

	full := newTestPipeline(t, &memBarStore{}, &memSink{}, &countMetrics{}, models.SignalFilters{})
	fold(full, bars[:60])
	wantTail := fold(full, bars[60:])

	// Restart path: warm a fresh pipeline with the first half, then fold
	// the rest. Signals from the tail must match the uninterrupted run.
	restarted := newTestPipeline(t, &memBarStore{}, &memSink{}, &countMetrics{}, models.SignalFilters{})
	restarted.Warmup(bars[:60])
	if got := fold(restarted, bars[60:]); got != wantTail {
		t.Fatalf("tail signals after restart = %d, want %d", got, wantTail)
	}
}

func TestProcessStoreFailureStillEmits(t *testing.T) {
	store := &memBarStore{failing: true}
	sink := &memSink{}
	m := &countMetrics{}
	p := newTestPipeline(t, store, sink, m, models.SignalFilters{})

	ctx := context.Background()
	if err := p.Process(ctx, pipelineBar("NQ", 0, 100, 110, 90, 100)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(ctx, pipelineBar("NQ", 1, 100, 120, 100, 111)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if len(sink.signals) != 1 {
		t.Fatalf("signals = %d, want 1 despite store failure", len(sink.signals))
	}
	if m.errors["bar_store"] != 2 {
		t.Fatalf("bar_store errors = %d, want 2", m.errors["bar_store"])
	}
}

func TestProcessSinkFailureDoesNotCountEmit(t *testing.T) {
	sink := &memSink{failing: true}
	m := &countMetrics{}
	p := newTestPipeline(t, &memBarStore{}, sink, m, models.SignalFilters{})

	ctx := context.Background()
	p.Process(ctx, pipelineBar("NQ", 0, 100, 110, 90, 100))
	if err := p.Process(ctx, pipelineBar("NQ", 1, 100, 120, 100, 111)); err != nil {
		t.Fatalf("process: %v", err)
	}

	if m.emitted != 0 {
		t.Fatalf("emitted metric = %d, want 0 when the sink rejects", m.emitted)
	}
	if m.errors["signal_emit"] != 1 {
		t.Fatalf("signal_emit errors = %d, want 1", m.errors["signal_emit"])
	}
}

func TestProcessEngulfingFilterSuppresses(t *testing.T) {
	sink := &memSink{}
	p := newTestPipeline(t, &memBarStore{}, sink, &countMetrics{},
		models.SignalFilters{RequireEngulfing: true})

	ctx := context.Background()
	// The breakout bar is not a bearish-to-bullish engulfing candle
	// (both bars close up), so the filter must suppress the flip.
	p.Process(ctx, pipelineBar("NQ", 0, 100, 110, 90, 101))
	p.Process(ctx, pipelineBar("NQ", 1, 101, 120, 100, 111))

	if len(sink.signals) != 0 {
		t.Fatalf("signals = %d, want 0 under engulfing filter", len(sink.signals))
	}
}
