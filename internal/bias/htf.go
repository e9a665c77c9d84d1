package bias

import (
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
)

// accumulator builds one in-progress higher-timeframe bar.
type accumulator struct {
	open, high, low, close float64
	periodStart            time.Time
	active                 bool
}

func (a *accumulator) merge(bar models.Bar) {
	if !a.active {
		a.open = bar.Open
		a.high = bar.High
		a.low = bar.Low
		a.periodStart = bar.Ts
		a.active = true
	} else {
		if bar.High > a.high {
			a.high = bar.High
		}
		if bar.Low < a.low {
			a.low = bar.Low
		}
	}
	a.close = bar.Close
}

// HTFAggregator derives higher-timeframe bias from a 1-minute bar stream.
// Between timeframe closes the last confirmed bias is forward-filled;
// the in-progress accumulator never leaks into CurrentBias. That is the
// no-repaint guarantee: the bias attributed to any 1-minute bar depends
// only on fully closed higher-timeframe bars.
type HTFAggregator struct {
	engines map[drepo.Timeframe]*Engine
	accums  map[drepo.Timeframe]*accumulator
	biases  map[drepo.Timeframe]models.Bias
	loc     *time.Location
}

// NewHTFAggregator builds one engine per higher timeframe. Bar-close
// boundaries are evaluated in loc, the reference timezone the bar stream
// is normalized to.
func NewHTFAggregator(loc *time.Location) *HTFAggregator {
	a := &HTFAggregator{
		engines: make(map[drepo.Timeframe]*Engine, len(drepo.HigherTimeframes)),
		accums:  make(map[drepo.Timeframe]*accumulator, len(drepo.HigherTimeframes)),
		biases:  make(map[drepo.Timeframe]models.Bias, len(drepo.HigherTimeframes)),
		loc:     loc,
	}
	for _, tf := range drepo.HigherTimeframes {
		a.engines[tf] = NewEngine()
		a.accums[tf] = &accumulator{}
		a.biases[tf] = models.BiasNeutral
	}
	return a
}

// Update merges one 1-minute bar into every timeframe's accumulator and,
// where the bar lands on a close boundary, confirms that timeframe's bar
// and advances its engine. All timeframes are updated in the same pass,
// in fixed ascending order.
func (a *HTFAggregator) Update(bar models.Bar) {
	local := bar.Ts.In(a.loc)
	for _, tf := range drepo.HigherTimeframes {
		acc := a.accums[tf]
		acc.merge(bar)
		if !tf.IsCloseBoundary(local) {
			continue
		}
		htfBar := models.Bar{
			Symbol: bar.Symbol,
			Ts:     acc.periodStart,
			Open:   acc.open,
			High:   acc.high,
			Low:    acc.low,
			Close:  acc.close,
		}
		a.biases[tf] = a.engines[tf].Update(htfBar)
		*acc = accumulator{}
	}
}

// CurrentBias returns the last confirmed bias for tf, never the state of
// a partially formed bar.
func (a *HTFAggregator) CurrentBias(tf drepo.Timeframe) models.Bias {
	return a.biases[tf]
}

// Biases snapshots the confirmed bias of every higher timeframe.
func (a *HTFAggregator) Biases() map[drepo.Timeframe]models.Bias {
	out := make(map[drepo.Timeframe]models.Bias, len(a.biases))
	for tf, b := range a.biases {
		out[tf] = b
	}
	return out
}
