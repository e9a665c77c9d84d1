package repository

import "time"

// Timeframe identifies a bar aggregation interval.
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// HigherTimeframes lists the aggregated timeframes in ascending order.
// The order is fixed; accumulator updates and alignment evaluation iterate
// it so replays are deterministic.
var HigherTimeframes = []Timeframe{TF5m, TF15m, TF1h, TF4h, TF1d}

// IsValidTimeframe returns true if tf is a supported timeframe.
func IsValidTimeframe(tf Timeframe) bool {
	switch tf {
	case TF1m, TF5m, TF15m, TF1h, TF4h, TF1d:
		return true
	default:
		return false
	}
}

// DefaultTimeframe returns the base timeframe of the bar feed.
func DefaultTimeframe() Timeframe { return TF1m }

// NormalizeTimeframe converts raw string to a valid timeframe (or default).
func NormalizeTimeframe(s string) Timeframe {
	if s == "" {
		return DefaultTimeframe()
	}
	tf := Timeframe(s)
	if IsValidTimeframe(tf) {
		return tf
	}
	return DefaultTimeframe()
}

// Duration returns the wall interval of the timeframe.
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// IsCloseBoundary reports whether a 1-minute bar stamped ts is the last
// minute of a tf period. ts must already be normalized to the reference
// timezone of the bar stream.
func (tf Timeframe) IsCloseBoundary(ts time.Time) bool {
	switch tf {
	case TF5m:
		return ts.Minute()%5 == 4
	case TF15m:
		return ts.Minute()%15 == 14
	case TF1h:
		return ts.Minute() == 59
	case TF4h:
		return ts.Minute() == 59 && ts.Hour()%4 == 3
	case TF1d:
		return ts.Hour() == 23 && ts.Minute() == 59
	default:
		return true
	}
}
