package models

import "time"

// GapType is one of the nine fixed incompleteness categories the detector
// scans for.
type GapType string

const (
	GapStaleMfe          GapType = "stale_mfe"
	GapMissingEntryPrice GapType = "missing_entry_price"
	GapMissingStopLoss   GapType = "missing_stop_loss"
	GapMissingMae        GapType = "missing_mae"
	GapMissingSession    GapType = "missing_session"
	GapMissingSignalDate GapType = "missing_signal_date"
	GapMissingAlignment  GapType = "missing_htf_alignment"
	GapMissingTargets    GapType = "missing_targets"
	GapMissingConfirm    GapType = "missing_confirmation_time"
)

// GapWeights are the per-type health-score penalties. The score starts at
// 100 and subtracts one weight per gap, clamped to [0,100].
var GapWeights = map[GapType]int{
	GapStaleMfe:          20,
	GapMissingEntryPrice: 15,
	GapMissingStopLoss:   15,
	GapMissingMae:        10,
	GapMissingSession:    8,
	GapMissingSignalDate: 8,
	GapMissingAlignment:  5,
	GapMissingTargets:    5,
	GapMissingConfirm:    3,
}

// GapRecord is one detected incompleteness on one trade.
type GapRecord struct {
	TradeID    string            `json:"trade_id"`
	Type       GapType           `json:"gap_type"`
	DetectedAt time.Time         `json:"detected_at"`
	Context    map[string]string `json:"context,omitempty"`
}

// ReconAction identifies what a reconciliation attempt tried to do.
type ReconAction string

const (
	ReconFillFromSignal   ReconAction = "fill_from_signal_event"
	ReconComputeExcursion ReconAction = "compute_excursion"
	ReconParseIdentifier  ReconAction = "parse_identifier"
)

// ReconciliationRecord is an append-only audit row, one per repair attempt
// whether it succeeded or not.
type ReconciliationRecord struct {
	TradeID      string      `json:"trade_id"`
	Action       ReconAction `json:"action_type"`
	SourceTier   int         `json:"source_tier"`
	FieldsFilled []string    `json:"fields_filled"`
	Confidence   float64     `json:"confidence_score"`
	Success      bool        `json:"success"`
	Detail       string      `json:"detail,omitempty"`
	At           time.Time   `json:"at"`
}
