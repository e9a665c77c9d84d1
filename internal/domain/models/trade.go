package models

import (
	"strings"
	"time"
)

// TradeEventKind tags the trade-event union.
type TradeEventKind string

const (
	EventSignalCreated TradeEventKind = "signal_created"
	EventEntry         TradeEventKind = "entry"
	EventMfeUpdate     TradeEventKind = "mfe_update"
	EventBeTriggered   TradeEventKind = "be_triggered"
	EventExitBreakEven TradeEventKind = "exit_break_even"
	EventExitStopLoss  TradeEventKind = "exit_stop_loss"
	EventExitTarget    TradeEventKind = "exit_target"
	EventCancelled     TradeEventKind = "cancelled"
)

// TradeEvent is one immutable lifecycle event. Optional fields are
// pointers; nil means the upstream payload did not carry the field.
// Ordering key is (Timestamp, Seq) with Seq assigned at insertion.
type TradeEvent struct {
	TradeID   string         `json:"trade_id"`
	Kind      TradeEventKind `json:"kind"`
	Timestamp time.Time      `json:"timestamp"`
	Seq       int64          `json:"seq"`

	Direction    *string            `json:"direction,omitempty"`
	EntryPrice   *float64           `json:"entry_price,omitempty"`
	StopLoss     *float64           `json:"stop_loss,omitempty"`
	CurrentPrice *float64           `json:"current_price,omitempty"`
	BeMfe        *float64           `json:"be_mfe,omitempty"`
	NoBeMfe      *float64           `json:"no_be_mfe,omitempty"`
	Mae          *float64           `json:"mae,omitempty"`
	ExitPrice    *float64           `json:"exit_price,omitempty"`
	FinalMfe     *float64           `json:"final_mfe,omitempty"`
	Session      *string            `json:"session,omitempty"`
	SignalDate   *string            `json:"signal_date,omitempty"`
	SignalTime   *string            `json:"signal_time,omitempty"`
	HTFAlignment map[string]string  `json:"htf_alignment,omitempty"`
	Targets      map[string]float64 `json:"targets,omitempty"`
	RawPayload   []byte             `json:"raw_payload,omitempty"`
}

// TradeStatus is the derived lifecycle phase of a trade.
type TradeStatus string

const (
	StatusUnknown     TradeStatus = "unknown"
	StatusActive      TradeStatus = "active"
	StatusBeProtected TradeStatus = "be_protected"
	StatusCompleted   TradeStatus = "completed"
	StatusCancelled   TradeStatus = "cancelled"
)

// TradeDirection is the normalized direction code stored on TradeState.
type TradeDirection string

const (
	TradeLong  TradeDirection = "LONG"
	TradeShort TradeDirection = "SHORT"
	TradeOther TradeDirection = "OTHER"
)

// NormalizeDirection maps upstream direction spellings onto the internal
// code. Unrecognized non-empty values pass through uppercased; missing
// values become OTHER.
func NormalizeDirection(raw string) TradeDirection {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "LONG", "BULLISH":
		return TradeLong
	case "SHORT", "BEARISH":
		return TradeShort
	case "":
		return TradeOther
	default:
		return TradeDirection(strings.ToUpper(strings.TrimSpace(raw)))
	}
}

// TradeState is the canonical derived view of one trade. It is rebuilt by
// folding the trade's events and never stored as independent truth.
type TradeState struct {
	TradeID        string             `json:"trade_id"`
	Direction      TradeDirection     `json:"direction"`
	Session        *string            `json:"session,omitempty"`
	Status         TradeStatus        `json:"status"`
	EntryPrice     *float64           `json:"entry_price,omitempty"`
	StopLoss       *float64           `json:"stop_loss,omitempty"`
	RiskDistance   *float64           `json:"risk_distance,omitempty"`
	CurrentBeMfe   *float64           `json:"current_be_mfe,omitempty"`
	CurrentNoBeMfe *float64           `json:"current_no_be_mfe,omitempty"`
	MaxBeMfe       *float64           `json:"max_be_mfe,omitempty"`
	MaxNoBeMfe     *float64           `json:"max_no_be_mfe,omitempty"`
	Mae            *float64           `json:"mae,omitempty"`
	ExitPrice      *float64           `json:"exit_price,omitempty"`
	FinalMfe       *float64           `json:"final_mfe,omitempty"`
	CompletedBy    *string            `json:"completed_reason,omitempty"`
	SignalDate     *string            `json:"signal_date,omitempty"`
	SignalTime     *string            `json:"signal_time,omitempty"`
	ConfirmedAt    *time.Time         `json:"confirmation_time,omitempty"`
	BarsToConfirm  *int               `json:"bars_to_confirmation,omitempty"`
	HTFAlignment   map[string]string  `json:"htf_alignment,omitempty"`
	Targets        map[string]float64 `json:"targets,omitempty"`
	LastMfeAt      *time.Time         `json:"last_mfe_at,omitempty"`
	LastEventAt    time.Time          `json:"last_event_at"`
	EventCount     int                `json:"event_count"`
}

// Open reports whether the trade is still running.
func (s *TradeState) Open() bool {
	return s.Status == StatusActive || s.Status == StatusBeProtected
}

// Float64Ptr and StringPtr are small helpers for building optional fields.
func Float64Ptr(v float64) *float64 { return &v }

func StringPtr(v string) *string { return &v }
