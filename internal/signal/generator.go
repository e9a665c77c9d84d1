package signal

import (
	"github.com/will1980j/trading-hmm-server-sub001/internal/bias"
	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

// Input carries everything one bar contributes to signal generation.
type Input struct {
	Bias      models.Bias
	PrevBias  models.Bias
	Alignment models.AlignmentFlags
	Engulfing bias.Engulfing
	Filters   models.SignalFilters
}

// Output is the per-direction result. FvgSignal is the raw bias-flip
// signal before the engulfing filter tier; Emit is the final flag.
type Output struct {
	FvgBull bool
	FvgBear bool
	Bull    bool
	Bear    bool
}

// Generate evaluates both directions for one bar. A raw signal requires a
// bias flip into the direction, gated by alignment when htf_aligned_only
// is set. The sweep filter takes priority over the basic engulfing filter
// when both switches are on.
func Generate(in Input) Output {
	var out Output
	out.FvgBull = fvgSignal(in, models.DirectionBull)
	out.FvgBear = fvgSignal(in, models.DirectionBear)
	out.Bull = applyFilter(in, out.FvgBull, in.Engulfing.Bullish, in.Engulfing.BullishSweep)
	out.Bear = applyFilter(in, out.FvgBear, in.Engulfing.Bearish, in.Engulfing.BearishSweep)
	return out
}

func fvgSignal(in Input, d models.Direction) bool {
	if in.Bias == in.PrevBias {
		return false
	}
	want := models.BiasBullish
	if d == models.DirectionBear {
		want = models.BiasBearish
	}
	if in.Bias != want {
		return false
	}
	if in.Filters.HTFAlignedOnly && !in.Alignment.ForDirection(d) {
		return false
	}
	return true
}

func applyFilter(in Input, raw, engulf, sweep bool) bool {
	switch {
	case in.Filters.RequireSweepEngulfing:
		return raw && sweep
	case in.Filters.RequireEngulfing:
		return raw && engulf
	default:
		return raw
	}
}
