package bias

import (
	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

// Engine computes a 3-way directional bias from an ordered bar stream.
// It tracks all-time extremes, fair-value gaps and their inversions.
// One Engine owns the bias for exactly one (symbol, timeframe); construct
// a fresh instance per backtest or session and feed it bars in timestamp
// order. Replaying the same sequence yields identical bias output.
type Engine struct {
	bias models.Bias

	ath, atl         float64
	prevAth, prevAtl float64
	barsSeen         int

	// prior two bars' extremes for 3-bar gap detection
	prevHigh, prevLow         float64
	prevPrevHigh, prevPrevLow float64

	bullFvgs  []models.FvgRange
	bearFvgs  []models.FvgRange
	bullIfvgs []models.FvgRange
	bearIfvgs []models.FvgRange
}

// NewEngine returns an Engine starting Neutral with no history.
func NewEngine() *Engine {
	return &Engine{bias: models.BiasNeutral}
}

// Bias returns the current bias without advancing state.
func (e *Engine) Bias() models.Bias { return e.bias }

// Update folds one bar into the engine and returns the resulting bias.
// The step order (extremes, breakout, gap creation, inversion, cleanup,
// history shift) is load-bearing: bars that trigger several transitions
// resolve them in exactly this order, so the last write wins consistently
// across replays.
func (e *Engine) Update(bar models.Bar) models.Bias {
	// Breakout comparisons use the extremes as they stood before this
	// bar, never the value the bar itself just set.
	e.prevAth, e.prevAtl = e.ath, e.atl

	if e.barsSeen == 0 {
		e.ath, e.atl = bar.High, bar.Low
	} else {
		if bar.High > e.ath {
			e.ath = bar.High
		}
		if bar.Low < e.atl {
			e.atl = bar.Low
		}
	}

	if e.barsSeen > 0 {
		if bar.Close > e.prevAth && e.bias != models.BiasBullish {
			e.bias = models.BiasBullish
		} else if bar.Close < e.prevAtl && e.bias != models.BiasBearish {
			e.bias = models.BiasBearish
		}
	}

	// 3-bar gap: compare against the bar two positions back.
	if e.barsSeen >= 2 {
		if e.prevPrevHigh < bar.Low {
			e.bullFvgs = append(e.bullFvgs, models.FvgRange{High: bar.Low, Low: e.prevPrevHigh})
		}
		if e.prevPrevLow > bar.High {
			e.bearFvgs = append(e.bearFvgs, models.FvgRange{High: e.prevPrevLow, Low: bar.High})
		}
	}

	// Inversion: price closing through a gap flips its implication.
	// Reverse iteration so removals do not shift unvisited indexes.
	for i := len(e.bullFvgs) - 1; i >= 0; i-- {
		r := e.bullFvgs[i]
		if bar.Close < r.Low {
			e.bullFvgs = append(e.bullFvgs[:i], e.bullFvgs[i+1:]...)
			e.bearIfvgs = append(e.bearIfvgs, r)
			e.bias = models.BiasBearish
		}
	}
	for i := len(e.bearFvgs) - 1; i >= 0; i-- {
		r := e.bearFvgs[i]
		if bar.Close > r.High {
			e.bearFvgs = append(e.bearFvgs[:i], e.bearFvgs[i+1:]...)
			e.bullIfvgs = append(e.bullIfvgs, r)
			e.bias = models.BiasBullish
		}
	}

	// Cleanup: closing back through an inverse gap invalidates it.
	for i := len(e.bearIfvgs) - 1; i >= 0; i-- {
		if bar.Close > e.bearIfvgs[i].High {
			e.bearIfvgs = append(e.bearIfvgs[:i], e.bearIfvgs[i+1:]...)
			e.bias = models.BiasBullish
		}
	}
	for i := len(e.bullIfvgs) - 1; i >= 0; i-- {
		if bar.Close < e.bullIfvgs[i].Low {
			e.bullIfvgs = append(e.bullIfvgs[:i], e.bullIfvgs[i+1:]...)
			e.bias = models.BiasBearish
		}
	}

	e.prevPrevHigh, e.prevPrevLow = e.prevHigh, e.prevLow
	e.prevHigh, e.prevLow = bar.High, bar.Low
	e.barsSeen++

	return e.bias
}

// RangeCounts reports the sizes of the four tracked gap lists, in the
// order bull-FVG, bear-FVG, bull-IFVG, bear-IFVG.
func (e *Engine) RangeCounts() (int, int, int, int) {
	return len(e.bullFvgs), len(e.bearFvgs), len(e.bullIfvgs), len(e.bearIfvgs)
}
