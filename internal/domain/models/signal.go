package models

import "time"

// Direction of an emitted signal.
type Direction string

const (
	DirectionBull Direction = "Bull"
	DirectionBear Direction = "Bear"
)

// AlignmentFlags is the output of the alignment evaluator: whether every
// enabled higher timeframe agrees on a direction.
type AlignmentFlags struct {
	Bullish bool
	Bearish bool
}

// ForDirection returns the flag matching dir.
func (f AlignmentFlags) ForDirection(d Direction) bool {
	if d == DirectionBull {
		return f.Bullish
	}
	return f.Bearish
}

// SignalFilters records which filter switches were active when a signal
// was evaluated.
type SignalFilters struct {
	HTFAlignedOnly        bool `json:"htf_aligned_only"`
	RequireEngulfing      bool `json:"require_engulfing"`
	RequireSweepEngulfing bool `json:"require_sweep_engulfing"`
}

// SignalEvent is a discrete directional marker emitted once per qualifying
// bar. It is immutable; the sink deduplicates by (symbol, ts, direction).
type SignalEvent struct {
	Symbol       string                `json:"symbol"`
	Ts           time.Time             `json:"ts"`
	Direction    Direction             `json:"direction"`
	Biases       map[string]string     `json:"contributing_biases"`
	Alignment    AlignmentFlags        `json:"alignment_flags"`
	Filters      SignalFilters         `json:"filters_applied"`
	LogicVersion string                `json:"logic_version"`
}

// DedupKey is the sink-side uniqueness key.
func (s *SignalEvent) DedupKey() string {
	return s.Symbol + "|" + s.Ts.UTC().Format(time.RFC3339) + "|" + string(s.Direction)
}
