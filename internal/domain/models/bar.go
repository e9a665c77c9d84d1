package models

import (
	"fmt"
	"math"
	"time"
)

// Bar is an immutable 1-minute OHLC bar. Higher-timeframe bars reuse the
// same shape with Ts set to the period start.
type Bar struct {
	Symbol string
	Ts     time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
}

// MaxBarJumpRatio bounds the close-to-close move accepted between two
// consecutive good bars. Moves beyond this are treated as feed glitches.
const MaxBarJumpRatio = 0.10

// Validate checks internal OHLC consistency. It does not look at the
// previous bar; use ValidateAgainst for continuity checks.
func (b *Bar) Validate() error {
	for name, v := range map[string]float64{
		"open": b.Open, "high": b.High, "low": b.Low, "close": b.Close,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("bar %s %s: non-finite %s", b.Symbol, b.Ts.Format(time.RFC3339), name)
		}
		if v <= 0 {
			return fmt.Errorf("bar %s %s: non-positive %s %v", b.Symbol, b.Ts.Format(time.RFC3339), name, v)
		}
	}
	if b.High < math.Max(b.Open, b.Close) {
		return fmt.Errorf("bar %s %s: high %v below body", b.Symbol, b.Ts.Format(time.RFC3339), b.High)
	}
	if b.Low > math.Min(b.Open, b.Close) {
		return fmt.Errorf("bar %s %s: low %v above body", b.Symbol, b.Ts.Format(time.RFC3339), b.Low)
	}
	return nil
}

// ValidateAgainst runs Validate and additionally rejects an implausible
// discontinuity from the previous good bar. prev may be nil for the first bar.
func (b *Bar) ValidateAgainst(prev *Bar) error {
	if err := b.Validate(); err != nil {
		return err
	}
	if prev == nil || prev.Close == 0 {
		return nil
	}
	jump := math.Abs(b.Close-prev.Close) / prev.Close
	if jump > MaxBarJumpRatio {
		return fmt.Errorf("bar %s %s: discontinuity %.2f%% from previous close",
			b.Symbol, b.Ts.Format(time.RFC3339), jump*100)
	}
	return nil
}
