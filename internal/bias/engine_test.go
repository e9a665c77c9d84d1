package bias

import (
	"testing"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

func mkBar(o, h, l, c float64) models.Bar {
	return models.Bar{Symbol: "NQ", Ts: time.Unix(0, 0), Open: o, High: h, Low: l, Close: c}
}

func TestEngineStartsNeutral(t *testing.T) {
	e := NewEngine()
	if got := e.Update(mkBar(100, 102, 99, 100)); got != models.BiasNeutral {
		t.Fatalf("first bar bias = %v, want Neutral", got)
	}
}

func TestEngineBreakoutUsesPreviousExtreme(t *testing.T) {
	e := NewEngine()
	e.Update(mkBar(100, 110, 90, 100))

	// Close above the bar's own new high must not count; only the
	// previous all-time high matters.
	if got := e.Update(mkBar(100, 120, 100, 111)); got != models.BiasBullish {
		t.Fatalf("bias = %v, want Bullish after close above prior ATH", got)
	}

	e2 := NewEngine()
	e2.Update(mkBar(100, 110, 90, 100))
	if got := e2.Update(mkBar(100, 105, 80, 89)); got != models.BiasBearish {
		t.Fatalf("bias = %v, want Bearish after close below prior ATL", got)
	}
}

func TestEngineFvgLifecycle(t *testing.T) {
	e := NewEngine()
	e.Update(mkBar(100, 102, 99, 100))
	e.Update(mkBar(100, 103, 100, 101))

	// Gap up: high two bars back (102) below this bar's low (105).
	if got := e.Update(mkBar(105, 107, 105, 106)); got != models.BiasBullish {
		t.Fatalf("bias = %v, want Bullish on breakout bar", got)
	}
	if bull, _, _, _ := e.RangeCounts(); bull != 1 {
		t.Fatalf("bull FVGs = %d, want 1", bull)
	}

	// Close back through the gap's low inverts it and flips bias.
	if got := e.Update(mkBar(105, 105.5, 101, 101.5)); got != models.BiasBearish {
		t.Fatalf("bias = %v, want Bearish after inversion", got)
	}
	bull, _, _, bearInv := e.RangeCounts()
	if bull != 0 || bearInv != 1 {
		t.Fatalf("range counts bull=%d bearIFVG=%d, want 0 and 1", bull, bearInv)
	}

	// Close above the inverse gap's high removes it and restores Bullish.
	if got := e.Update(mkBar(106, 107.4, 105.8, 107.2)); got != models.BiasBullish {
		t.Fatalf("bias = %v, want Bullish after IFVG cleanup", got)
	}
	if _, _, _, bearInv := e.RangeCounts(); bearInv != 0 {
		t.Fatalf("bear IFVGs = %d, want 0", bearInv)
	}
}

func TestEngineDeterministicReplay(t *testing.T) {
	bars := make([]models.Bar, 0, 500)
	px := 100.0
	for i := 0; i < 500; i++ {
		// fixed pseudo-random walk; no wall clock, no map iteration
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
		bars = append(bars, mkBar(o, h, l, c))
		px = c
	}

	run := func() []models.Bias {
		e := NewEngine()
		out := make([]models.Bias, len(bars))
		for i, b := range bars {
			out[i] = e.Update(b)
		}
		return out
	}

	a, b := run(), run()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("replay diverged at bar %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestEngineMultipleRemovalsOneBar(t *testing.T) {
	e := NewEngine()
	// Build two stacked bull FVGs, then close below both lows in one bar.
	e.Update(mkBar(100, 101, 99, 100))
	e.Update(mkBar(101, 102, 100, 101.5))
	e.Update(mkBar(103, 104, 102.5, 103.5)) // FVG {102.5, 101}
	e.Update(mkBar(104, 105, 103.8, 104.5)) // FVG {103.8, 102}
	e.Update(mkBar(106, 107, 105.5, 106.5)) // FVG {105.5, 104}

	if bull, _, _, _ := e.RangeCounts(); bull != 3 {
		t.Fatalf("bull FVGs = %d, want 3", bull)
	}

	if got := e.Update(mkBar(106, 106, 100.2, 100.5)); got != models.BiasBearish {
		t.Fatalf("bias = %v, want Bearish", got)
	}
	bull, _, _, bearInv := e.RangeCounts()
	if bull != 0 || bearInv != 3 {
		t.Fatalf("after inversion sweep bull=%d bearIFVG=%d, want 0 and 3", bull, bearInv)
	}
}
