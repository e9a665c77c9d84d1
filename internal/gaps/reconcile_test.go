package gaps

import (
	"context"
	"testing"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

// fakeFiller applies fill-if-null semantics against an in-memory state so
// tests can observe what reconciliation actually changed.
type fakeFiller struct {
	state  *models.TradeState
	writes int
}

func (f *fakeFiller) FillMissing(_ context.Context, _ string, fields map[string]any) ([]string, error) {
	var filled []string
	for k, v := range fields {
		switch k {
		case "session":
			if f.state.Session == nil {
				f.state.Session = models.StringPtr(v.(string))
				filled = append(filled, k)
			}
		case "signal_date":
			if f.state.SignalDate == nil {
				f.state.SignalDate = models.StringPtr(v.(string))
				filled = append(filled, k)
			}
		case "signal_time":
			if f.state.SignalTime == nil {
				f.state.SignalTime = models.StringPtr(v.(string))
				filled = append(filled, k)
			}
		case "htf_alignment":
			if len(f.state.HTFAlignment) == 0 {
				f.state.HTFAlignment = v.(map[string]string)
				filled = append(filled, k)
			}
		case "targets":
			if len(f.state.Targets) == 0 {
				f.state.Targets = v.(map[string]float64)
				filled = append(filled, k)
			}
		case "confirmation_time":
			if f.state.ConfirmedAt == nil {
				ts := v.(time.Time)
				f.state.ConfirmedAt = &ts
				filled = append(filled, k)
			}
		case "bars_to_confirmation":
			if f.state.BarsToConfirm == nil {
				n := v.(int)
				f.state.BarsToConfirm = &n
				filled = append(filled, k)
			}
		case "current_no_be_mfe":
			if f.state.CurrentNoBeMfe == nil {
				f.state.CurrentNoBeMfe = models.Float64Ptr(v.(float64))
				filled = append(filled, k)
			}
		case "current_be_mfe":
			if f.state.CurrentBeMfe == nil {
				f.state.CurrentBeMfe = models.Float64Ptr(v.(float64))
				filled = append(filled, k)
			}
		case "mae":
			if f.state.Mae == nil {
				f.state.Mae = models.Float64Ptr(v.(float64))
				filled = append(filled, k)
			}
		}
	}
	f.writes += len(filled)
	return filled, nil
}

type fakeAudit struct {
	records []models.ReconciliationRecord
}

func (a *fakeAudit) RecordReconciliation(_ context.Context, r *models.ReconciliationRecord) error {
	a.records = append(a.records, *r)
	return nil
}

func TestParseTradeIDExample(t *testing.T) {
	p, err := ParseTradeID("20240115_093000000_BULLISH")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if p.Date != "2024-01-15" {
		t.Fatalf("date = %s", p.Date)
	}
	if p.Time != "09:30:00" {
		t.Fatalf("time = %s", p.Time)
	}
	if p.Direction != models.TradeLong {
		t.Fatalf("direction = %s, want LONG", p.Direction)
	}
	if p.Session != SessionNYAM {
		t.Fatalf("session = %s, want NY AM", p.Session)
	}
}

func TestParseTradeIDRejectsGarbage(t *testing.T) {
	for _, id := range []string{"", "not-structured", "2024_0930_LONG", "20240115_0930_BULLISH"} {
		if _, err := ParseTradeID(id); err == nil {
			t.Fatalf("expected error for %q", id)
		}
	}
}

func TestSessionWindows(t *testing.T) {
	cases := []struct {
		h, m int
		want string
	}{
		{20, 0, SessionAsia},
		{23, 59, SessionAsia},
		{0, 0, SessionLondon},
		{5, 59, SessionLondon},
		{6, 0, SessionNYPre},
		{8, 29, SessionNYPre},
		{8, 30, SessionNYAM},
		{11, 59, SessionNYAM},
		{12, 0, SessionNYLunch},
		{13, 0, SessionNYPM},
		{15, 59, SessionNYPM},
		{16, 0, SessionAfterHours},
		{19, 59, SessionAfterHours},
	}
	for _, tc := range cases {
		if got := SessionFor(tc.h, tc.m); got != tc.want {
			t.Fatalf("session at %02d:%02d = %s, want %s", tc.h, tc.m, got, tc.want)
		}
	}
}

func TestTier2ExcursionSignInvariants(t *testing.T) {
	state := &models.TradeState{
		TradeID:    "t1",
		Direction:  models.TradeLong,
		EntryPrice: models.Float64Ptr(100),
		StopLoss:   models.Float64Ptr(90),
	}
	// Price below entry: MFE clamps to 0, MAE is negative.
	events := []models.TradeEvent{{
		Kind:         models.EventMfeUpdate,
		CurrentPrice: models.Float64Ptr(95),
	}}
	fields, err := tier2ComputeExcursion(state, events)
	if err != nil {
		t.Fatalf("tier2: %v", err)
	}
	if got := fields["current_no_be_mfe"].(float64); got != 0 {
		t.Fatalf("mfe = %v, want clamp at 0", got)
	}
	if got := fields["mae"].(float64); got != -0.5 {
		t.Fatalf("mae = %v, want -0.5", got)
	}
	if got := fields["mae"].(float64); got > 0 {
		t.Fatalf("mae must never be positive, got %v", got)
	}
}

func TestTier2BreakEvenCap(t *testing.T) {
	state := &models.TradeState{
		TradeID:    "t1",
		Direction:  models.TradeShort,
		EntryPrice: models.Float64Ptr(100),
		StopLoss:   models.Float64Ptr(110),
	}
	// Short from 100, price at 80: 2R favorable.
	events := []models.TradeEvent{{
		Kind:         models.EventMfeUpdate,
		CurrentPrice: models.Float64Ptr(80),
	}}
	fields, err := tier2ComputeExcursion(state, events)
	if err != nil {
		t.Fatalf("tier2: %v", err)
	}
	if got := fields["current_no_be_mfe"].(float64); got != 2.0 {
		t.Fatalf("no-BE mfe = %v, want 2.0", got)
	}
	if got := fields["current_be_mfe"].(float64); got != 1.0 {
		t.Fatalf("BE mfe = %v, want cap at 1.0", got)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	now := time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
	sig := models.TradeEvent{
		TradeID:      "20240115_093000000_BULLISH",
		Kind:         models.EventSignalCreated,
		Timestamp:    now.Add(-30 * time.Minute),
		Session:      models.StringPtr(SessionNYAM),
		SignalDate:   models.StringPtr("2024-01-15"),
		SignalTime:   models.StringPtr("09:30:00"),
		HTFAlignment: map[string]string{"15m": "Bullish"},
	}
	entry := models.TradeEvent{
		TradeID:      "20240115_093000000_BULLISH",
		Kind:         models.EventEntry,
		Timestamp:    now.Add(-27 * time.Minute),
		EntryPrice:   models.Float64Ptr(100),
		StopLoss:     models.Float64Ptr(95),
		CurrentPrice: models.Float64Ptr(101),
	}
	events := []models.TradeEvent{sig, entry}

	state := &models.TradeState{
		TradeID:    "20240115_093000000_BULLISH",
		Direction:  models.TradeLong,
		Status:     models.StatusActive,
		EntryPrice: models.Float64Ptr(100),
		StopLoss:   models.Float64Ptr(95),
		Targets:    map[string]float64{"1R": 105},
	}

	filler := &fakeFiller{state: state}
	audit := &fakeAudit{}
	rec := NewReconciler(filler, audit, nil)
	det := NewDetector(DefaultMfeStaleness, nil)

	cycle := func() int {
		gapsFound := det.Scan([]*models.TradeState{state}, now)
		if err := rec.ReconcileTrade(context.Background(), state, events, gapsFound); err != nil {
			t.Fatalf("reconcile: %v", err)
		}
		return len(gapsFound)
	}

	if n := cycle(); n == 0 {
		t.Fatalf("first cycle found no gaps")
	}
	writesAfterFirst := filler.writes
	auditAfterFirst := len(audit.records)
	if writesAfterFirst == 0 || auditAfterFirst == 0 {
		t.Fatalf("first cycle repaired nothing (writes=%d audit=%d)", writesAfterFirst, auditAfterFirst)
	}
	if state.Session == nil || *state.Session != SessionNYAM {
		t.Fatalf("session not filled from signal event: %v", state.Session)
	}
	if state.BarsToConfirm == nil || *state.BarsToConfirm != 3 {
		t.Fatalf("bars to confirmation = %v, want 3", state.BarsToConfirm)
	}

	// Second cycle over unchanged sources: every fillable field is
	// already present, so nothing is written and no audit rows are added.
	cycle()
	if filler.writes != writesAfterFirst {
		t.Fatalf("second cycle wrote fields again: %d -> %d", writesAfterFirst, filler.writes)
	}
	if len(audit.records) != auditAfterFirst {
		t.Fatalf("second cycle appended audit rows: %d -> %d", auditAfterFirst, len(audit.records))
	}
}

func TestReconcileFailedTierWritesFailedAudit(t *testing.T) {
	state := &models.TradeState{
		TradeID:   "unstructured-id",
		Status:    models.StatusActive,
		Direction: models.TradeLong,
	}
	filler := &fakeFiller{state: state}
	audit := &fakeAudit{}
	rec := NewReconciler(filler, audit, nil)

	gapsFound := []models.GapRecord{{TradeID: state.TradeID, Type: models.GapMissingSignalDate}}
	if err := rec.ReconcileTrade(context.Background(), state, nil, gapsFound); err != nil {
		t.Fatalf("reconcile: %v", err)
	}

	var sawFailedTier0, sawFailedTier3 bool
	for _, r := range audit.records {
		if !r.Success {
			switch r.SourceTier {
			case 0:
				sawFailedTier0 = true
			case 3:
				sawFailedTier3 = true
			}
		}
	}
	if !sawFailedTier0 || !sawFailedTier3 {
		t.Fatalf("expected failed audit rows for tiers 0 and 3: %+v", audit.records)
	}
}

func TestTier3EmitsOnlyNullableColumns(t *testing.T) {
	fields, err := tier3FromIdentifier("20250602_093000000_LONG")
	if err != nil {
		t.Fatalf("tier3: %v", err)
	}
	// The state store's direction column is NOT NULL (the fold always
	// writes one), so offering it would only ever be rejected or dropped.
	if _, ok := fields["direction"]; ok {
		t.Fatal("tier 3 must not offer direction")
	}
	if fields["signal_date"] != "2025-06-02" || fields["signal_time"] != "09:30:00" {
		t.Fatalf("id-derived fields = %v", fields)
	}
	if fields["session"] != SessionNYAM {
		t.Fatalf("session = %v, want %s", fields["session"], SessionNYAM)
	}
}
