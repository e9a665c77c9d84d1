package bias

import (
	"testing"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
)

func minuteBars(start time.Time, prices []float64) []models.Bar {
	bars := make([]models.Bar, len(prices))
	for i, p := range prices {
		bars[i] = models.Bar{
			Symbol: "NQ",
			Ts:     start.Add(time.Duration(i) * time.Minute),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p + 0.5,
		}
	}
	return bars
}

func TestHTFForwardFillsBetweenCloses(t *testing.T) {
	start := time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC)
	agg := NewHTFAggregator(time.UTC)

	// Minutes 0..3 stay inside the first 5m period: no confirmed bias yet.
	bars := minuteBars(start, []float64{100, 101, 102, 103})
	for _, b := range bars {
		agg.Update(b)
		if got := agg.CurrentBias(drepo.TF5m); got != models.BiasNeutral {
			t.Fatalf("bias before first 5m close = %v, want Neutral", got)
		}
	}

	// Minute 4 closes the 5m bar; the engine sees exactly one bar, which
	// stays Neutral, but the accumulator must reset for the next period.
	agg.Update(minuteBars(start.Add(4*time.Minute), []float64{104})[0])
	if got := agg.CurrentBias(drepo.TF5m); got != models.BiasNeutral {
		t.Fatalf("bias after first 5m close = %v, want Neutral", got)
	}

	// Second 5m period closes higher than the first period's high: the
	// 5m engine flips Bullish at minute 9 and forward-fills afterwards.
	for i, p := range []float64{105, 106, 107, 108, 120} {
		agg.Update(minuteBars(start.Add(time.Duration(5+i)*time.Minute), []float64{p})[0])
	}
	if got := agg.CurrentBias(drepo.TF5m); got != models.BiasBullish {
		t.Fatalf("bias after second 5m close = %v, want Bullish", got)
	}

	// Mid-period collapse must not repaint the confirmed value.
	agg.Update(minuteBars(start.Add(10*time.Minute), []float64{50})[0])
	if got := agg.CurrentBias(drepo.TF5m); got != models.BiasBullish {
		t.Fatalf("in-progress accumulator leaked into bias: %v", got)
	}
}

func TestHTFNoRepaint(t *testing.T) {
	start := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	prices := make([]float64, 240)
	for i := range prices {
		prices[i] = 100 + float64((i*31)%17) - float64((i*13)%7)
	}
	bars := minuteBars(start, prices)

	record := func(upto int) []models.Bias {
		agg := NewHTFAggregator(time.UTC)
		out := make([]models.Bias, 0, upto)
		for _, b := range bars[:upto] {
			agg.Update(b)
			out = append(out, agg.CurrentBias(drepo.TF15m))
		}
		return out
	}

	short := record(120)
	full := record(240)
	for i := range short {
		if short[i] != full[i] {
			t.Fatalf("bias for bar %d changed after appending later bars: %v vs %v", i, short[i], full[i])
		}
	}
}

func TestHTFBoundaryRules(t *testing.T) {
	cases := []struct {
		tf   drepo.Timeframe
		ts   time.Time
		want bool
	}{
		{drepo.TF5m, time.Date(2024, 1, 15, 9, 4, 0, 0, time.UTC), true},
		{drepo.TF5m, time.Date(2024, 1, 15, 9, 5, 0, 0, time.UTC), false},
		{drepo.TF15m, time.Date(2024, 1, 15, 9, 14, 0, 0, time.UTC), true},
		{drepo.TF15m, time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC), false},
		{drepo.TF1h, time.Date(2024, 1, 15, 9, 59, 0, 0, time.UTC), true},
		{drepo.TF4h, time.Date(2024, 1, 15, 11, 59, 0, 0, time.UTC), true},
		{drepo.TF4h, time.Date(2024, 1, 15, 12, 59, 0, 0, time.UTC), false},
		{drepo.TF1d, time.Date(2024, 1, 15, 23, 59, 0, 0, time.UTC), true},
		{drepo.TF1d, time.Date(2024, 1, 15, 22, 59, 0, 0, time.UTC), false},
	}
	for _, tc := range cases {
		if got := tc.tf.IsCloseBoundary(tc.ts); got != tc.want {
			t.Fatalf("%s boundary at %s = %v, want %v", tc.tf, tc.ts, got, tc.want)
		}
	}
}
