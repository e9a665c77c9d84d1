package bias

import "testing"

func TestEngulfingOpenEqualsPriorCloseIsInclusive(t *testing.T) {
	prev := mkBar(100, 102, 98, 99)
	curr := mkBar(99, 103, 97, 101)
	got := DetectEngulfing(prev, curr)
	if !got.Bullish {
		t.Fatalf("bullish = false, want true when curr.open == prev.close")
	}
	if got.Bearish {
		t.Fatalf("bearish = true on a bullish engulfing")
	}
}

func TestEngulfingBearish(t *testing.T) {
	prev := mkBar(100, 103, 99, 102)
	curr := mkBar(102.5, 104, 98, 99.5)
	got := DetectEngulfing(prev, curr)
	if !got.Bearish {
		t.Fatalf("bearish = false, want true")
	}
	// curr.high 104 > prev.high 103 and curr.close 99.5 < prev.close 102
	if !got.BearishSweep {
		t.Fatalf("bearish sweep = false, want true")
	}
}

func TestSweepRequiresEngulfing(t *testing.T) {
	// Wick takes out the prior low and closes above the prior close, but
	// the body never engulfs: no base pattern, so no sweep either.
	prev := mkBar(100, 102, 98, 99)
	curr := mkBar(99.5, 101, 97, 99.2)
	got := DetectEngulfing(prev, curr)
	if got.Bullish {
		t.Fatalf("bullish = true, want false")
	}
	if got.BullishSweep {
		t.Fatalf("bullish sweep = true without engulfing")
	}
}

func TestEngulfingRequiresOppositePriorBody(t *testing.T) {
	cases := []struct {
		name       string
		prev, curr [4]float64
	}{
		{"bullish after bullish prev", [4]float64{100, 103, 99, 102}, [4]float64{101, 105, 100, 104}},
		{"doji prev", [4]float64{100, 101, 99, 100}, [4]float64{100, 104, 99, 103}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DetectEngulfing(
				mkBar(tc.prev[0], tc.prev[1], tc.prev[2], tc.prev[3]),
				mkBar(tc.curr[0], tc.curr[1], tc.curr[2], tc.curr[3]),
			)
			if got.Bullish || got.Bearish {
				t.Fatalf("got %+v, want no engulfing", got)
			}
		})
	}
}
