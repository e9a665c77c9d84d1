package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/bias"
	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
	"github.com/will1980j/trading-hmm-server-sub001/internal/signal"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// SignalLogicVersion stamps every emitted signal so historical signals can
// be traced to the rule set that produced them.
const SignalLogicVersion = "fvg-1.0"

// symbolEngines is the per-symbol fold state. Each symbol gets fresh
// engines; nothing is shared across symbols.
type symbolEngines struct {
	oneMin  *bias.Engine
	htf     *bias.HTFAggregator
	prevBar *models.Bar
}

// SignalPipeline folds validated one-minute bars through the bias engines
// and emits qualifying signals. It implements the middleware Proc
// interface so the realtime pipeline can feed it directly.
type SignalPipeline struct {
	store   drepo.BarStore
	sink    drepo.SignalSink
	metrics drepo.Metrics
	l       *applogger.Logger
	filters models.SignalFilters
	enabled map[drepo.Timeframe]bool
	loc     *time.Location

	mu      sync.Mutex
	engines map[string]*symbolEngines
}

func NewSignalPipeline(
	store drepo.BarStore,
	sink drepo.SignalSink,
	metrics drepo.Metrics,
	l *applogger.Logger,
	filters models.SignalFilters,
	enabled map[drepo.Timeframe]bool,
	loc *time.Location,
) *SignalPipeline {
	return &SignalPipeline{
		store:   store,
		sink:    sink,
		metrics: metrics,
		l:       l,
		filters: filters,
		enabled: enabled,
		loc:     loc,
		engines: make(map[string]*symbolEngines),
	}
}

// Process folds one bar and persists its products. Engine state always
// advances; storage and sink failures are logged and counted but never
// roll the fold back, since bars are recoverable by backfill.
func (p *SignalPipeline) Process(ctx context.Context, b *models.Bar) error {
	start := time.Now()

	signals := p.Fold(b)

	if err := p.store.Store(ctx, b); err != nil {
		p.metrics.RecordError("bar_store")
		p.l.Error("bar store failed", applogger.String("symbol", b.Symbol), applogger.Error(err))
	}

	for _, s := range signals {
		if err := p.sink.Emit(ctx, s); err != nil {
			p.metrics.RecordError("signal_emit")
			p.l.Error("signal emit failed", applogger.String("symbol", s.Symbol), applogger.Error(err))
			continue
		}
		p.metrics.RecordSignalEmitted(s.Symbol, string(s.Direction))
		p.l.Info("signal emitted",
			applogger.String("symbol", s.Symbol),
			applogger.String("direction", string(s.Direction)),
			applogger.Any("ts", s.Ts),
		)
	}

	p.metrics.RecordBarProcessed(b.Symbol)
	p.metrics.RecordLastPrice(b.Symbol, b.Close)
	p.metrics.RecordLatency("signal_pipeline", time.Since(start).Seconds())
	return nil
}

// Fold advances the per-symbol engines by one bar and returns any signals
// the bar produced. It is deterministic: the same bar sequence always
// yields the same signal sequence.
func (p *SignalPipeline) Fold(b *models.Bar) []*models.SignalEvent {
	p.mu.Lock()
	defer p.mu.Unlock()

	eng := p.engines[b.Symbol]
	if eng == nil {
		eng = &symbolEngines{
			oneMin: bias.NewEngine(),
			htf:    bias.NewHTFAggregator(p.loc),
		}
		p.engines[b.Symbol] = eng
	}

	prevBias := eng.oneMin.Bias()
	curBias := eng.oneMin.Update(*b)

	var engulf bias.Engulfing
	if eng.prevBar != nil {
		engulf = bias.DetectEngulfing(*eng.prevBar, *b)
	}

	eng.htf.Update(*b)
	align := signal.EvaluateAlignment(eng.htf.Biases(), p.enabled)

	out := signal.Generate(signal.Input{
		Bias:      curBias,
		PrevBias:  prevBias,
		Alignment: align,
		Engulfing: engulf,
		Filters:   p.filters,
	})

	var signals []*models.SignalEvent
	if out.Bull {
		signals = append(signals, p.buildEvent(b, eng, models.DirectionBull, curBias, align))
	}
	if out.Bear {
		signals = append(signals, p.buildEvent(b, eng, models.DirectionBear, curBias, align))
	}

	eng.prevBar = b
	return signals
}

// Warmup folds bars without emitting or persisting anything. Backfill and
// restart paths use it to rebuild engine state from history.
func (p *SignalPipeline) Warmup(bars []*models.Bar) {
	for _, b := range bars {
		p.Fold(b)
	}
}

func (p *SignalPipeline) buildEvent(b *models.Bar, eng *symbolEngines, d models.Direction, cur models.Bias, align models.AlignmentFlags) *models.SignalEvent {
	biases := map[string]string{"1m": cur.String()}
	for tf, bi := range eng.htf.Biases() {
		biases[string(tf)] = bi.String()
	}
	return &models.SignalEvent{
		Symbol:       b.Symbol,
		Ts:           b.Ts,
		Direction:    d,
		Biases:       biases,
		Alignment:    align,
		Filters:      p.filters,
		LogicVersion: SignalLogicVersion,
	}
}
