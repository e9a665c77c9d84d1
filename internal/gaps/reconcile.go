package gaps

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	"github.com/will1980j/trading-hmm-server-sub001/internal/lifecycle"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// Tier confidences. The tier number is the priority order it runs in.
const (
	tier0Confidence = 1.0
	tier2Confidence = 0.8
	tier3Confidence = 0.9
)

// FieldFiller applies fill-if-null writes to the canonical state store and
// reports which fields were actually filled. A field already holding a
// value must come back unfilled.
type FieldFiller interface {
	FillMissing(ctx context.Context, tradeID string, fields map[string]any) ([]string, error)
}

// AuditSink records one row per repair attempt, append-only.
type AuditSink interface {
	RecordReconciliation(ctx context.Context, r *models.ReconciliationRecord) error
}

// Reconciler fills detected gaps with confidence-ranked candidates.
// Repairs are independent per trade; one trade failing never aborts the
// cycle it runs in.
type Reconciler struct {
	filler FieldFiller
	audit  AuditSink
	l      *applogger.Logger
}

func NewReconciler(filler FieldFiller, audit AuditSink, l *applogger.Logger) *Reconciler {
	return &Reconciler{filler: filler, audit: audit, l: l}
}

// ReconcileTrade runs the applicable tiers for one trade, in priority
// order 0 → 2 → 3. Each attempted tier writes exactly one audit record,
// successful or not. Tiers whose gaps are absent are skipped entirely,
// which is what makes a re-run over unchanged state produce no new rows.
func (r *Reconciler) ReconcileTrade(ctx context.Context, state *models.TradeState, events []models.TradeEvent, tradeGaps []models.GapRecord) error {
	if len(tradeGaps) == 0 {
		return nil
	}
	have := make(map[models.GapType]bool, len(tradeGaps))
	for _, g := range tradeGaps {
		have[g.Type] = true
	}

	if have[models.GapMissingSession] || have[models.GapMissingSignalDate] ||
		have[models.GapMissingAlignment] || have[models.GapMissingTargets] || have[models.GapMissingConfirm] {
		r.attempt(ctx, state.TradeID, models.ReconFillFromSignal, 0, tier0Confidence,
			func() (map[string]any, error) { return tier0FromSignalEvent(events) })
	}

	// A stale-MFE condition can persist across cycles even after the
	// excursion fields were filled; only attempt tier 2 while one of its
	// target fields is still null, so re-runs stay idempotent.
	tier2CanFill := state.CurrentNoBeMfe == nil || state.CurrentBeMfe == nil || state.Mae == nil
	if (have[models.GapStaleMfe] || have[models.GapMissingMae]) && tier2CanFill {
		r.attempt(ctx, state.TradeID, models.ReconComputeExcursion, 2, tier2Confidence,
			func() (map[string]any, error) { return tier2ComputeExcursion(state, events) })
	}

	if have[models.GapMissingSession] || have[models.GapMissingSignalDate] {
		r.attempt(ctx, state.TradeID, models.ReconParseIdentifier, 3, tier3Confidence,
			func() (map[string]any, error) { return tier3FromIdentifier(state.TradeID) })
	}

	return nil
}

func (r *Reconciler) attempt(ctx context.Context, tradeID string, action models.ReconAction, tier int, confidence float64, compute func() (map[string]any, error)) {
	rec := &models.ReconciliationRecord{
		TradeID:    tradeID,
		Action:     action,
		SourceTier: tier,
		Confidence: confidence,
		At:         time.Now().UTC(),
	}

	fields, err := compute()
	if err != nil {
		rec.Success = false
		rec.Detail = err.Error()
	} else {
		filled, ferr := r.filler.FillMissing(ctx, tradeID, fields)
		if ferr != nil {
			rec.Success = false
			rec.Detail = ferr.Error()
		} else {
			rec.Success = true
			rec.FieldsFilled = filled
		}
	}

	if aerr := r.audit.RecordReconciliation(ctx, rec); aerr != nil && r.l != nil {
		r.l.Error("reconciliation audit write failed",
			applogger.String("trade_id", tradeID),
			applogger.Int("tier", tier),
			applogger.Error(aerr),
		)
	}
	if !rec.Success && r.l != nil {
		r.l.Warn("reconciliation tier failed",
			applogger.String("trade_id", tradeID),
			applogger.Int("tier", tier),
			applogger.String("detail", rec.Detail),
		)
	}
}

// tier0FromSignalEvent copies authoritative metadata from the trade's
// signal-created event and derives confirmation timing from the delta to
// the entry event, in bar (minute) units.
func tier0FromSignalEvent(events []models.TradeEvent) (map[string]any, error) {
	var sig, entry *models.TradeEvent
	for i := range events {
		switch events[i].Kind {
		case models.EventSignalCreated:
			if sig == nil {
				sig = &events[i]
			}
		case models.EventEntry:
			if entry == nil {
				entry = &events[i]
			}
		}
	}
	if sig == nil {
		return nil, fmt.Errorf("no signal-created event")
	}

	fields := make(map[string]any)
	if sig.Session != nil && *sig.Session != "" {
		fields["session"] = *sig.Session
	}
	if sig.SignalDate != nil && *sig.SignalDate != "" {
		fields["signal_date"] = *sig.SignalDate
	}
	if sig.SignalTime != nil && *sig.SignalTime != "" {
		fields["signal_time"] = *sig.SignalTime
	}
	if len(sig.HTFAlignment) > 0 {
		fields["htf_alignment"] = sig.HTFAlignment
	}
	if len(sig.Targets) > 0 {
		fields["targets"] = sig.Targets
	}
	if entry != nil {
		fields["confirmation_time"] = entry.Timestamp
		fields["bars_to_confirmation"] = int(entry.Timestamp.Sub(sig.Timestamp) / time.Minute)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("signal-created event carries no usable fields")
	}
	return fields, nil
}

// tier2ComputeExcursion derives excursion candidates from current state:
// risk = |entry-stop|, MFE clamped to >= 0, MAE clamped to <= 0. The BE
// MFE is capped at 1.0 once the no-BE MFE has reached 1.0; that break-even
// assumption is documented upstream behavior, kept as-is.
func tier2ComputeExcursion(state *models.TradeState, events []models.TradeEvent) (map[string]any, error) {
	price := lifecycle.LatestObservedPrice(events)
	if price == nil {
		return nil, fmt.Errorf("no observed price for excursion computation")
	}
	if state.EntryPrice == nil || state.StopLoss == nil {
		return nil, fmt.Errorf("entry price or stop loss missing")
	}
	risk := math.Abs(*state.EntryPrice - *state.StopLoss)
	if risk == 0 {
		return nil, fmt.Errorf("zero risk distance")
	}

	move := (*price - *state.EntryPrice) / risk
	if state.Direction == models.TradeShort {
		move = -move
	}

	noBe := math.Max(move, 0)
	mae := math.Min(move, 0)
	be := noBe
	if noBe >= 1.0 {
		be = 1.0
	}

	return map[string]any{
		"current_no_be_mfe": noBe,
		"current_be_mfe":    be,
		"mae":               mae,
	}, nil
}

// tier3FromIdentifier recovers metadata encoded in the trade identifier.
// Direction is also encoded there but is never fillable: the fold always
// writes a concrete direction into the NOT NULL column.
func tier3FromIdentifier(tradeID string) (map[string]any, error) {
	p, err := ParseTradeID(tradeID)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"signal_date": p.Date,
		"signal_time": p.Time,
		"session":     p.Session,
	}, nil
}
