package bias

import "github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"

// Engulfing classifies a two-bar sequence. Sweep variants additionally
// require the current bar to take out the prior extreme before closing
// through the prior close; a sweep is only ever set together with its
// base engulfing flag.
type Engulfing struct {
	Bullish      bool
	Bearish      bool
	BullishSweep bool
	BearishSweep bool
}

// DetectEngulfing classifies curr against prev. The open-equals-prior-close
// boundary is inclusive for both directions.
func DetectEngulfing(prev, curr models.Bar) Engulfing {
	var r Engulfing

	prevBull := prev.Close > prev.Open
	prevBear := prev.Close < prev.Open

	if curr.Close < curr.Open && prevBull &&
		curr.Open >= prev.Close && curr.Close < prev.Open {
		r.Bearish = true
		if curr.High > prev.High && curr.Close < prev.Close {
			r.BearishSweep = true
		}
	}

	if curr.Close > curr.Open && prevBear &&
		curr.Open <= prev.Close && curr.Close > prev.Open {
		r.Bullish = true
		if curr.Low < prev.Low && curr.Close > prev.Close {
			r.BullishSweep = true
		}
	}

	return r
}
