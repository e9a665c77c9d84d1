package lifecycle

import (
	"fmt"
	"math"
	"sort"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

// Build folds an ordered event list into the canonical TradeState. Events
// must belong to one trade and be sorted ascending by (timestamp, seq);
// SortEvents does that for callers holding raw store output.
//
// An empty list returns (nil, nil): a trade that has not materialized yet
// is a valid non-error outcome, not a failure.
func Build(events []models.TradeEvent) (*models.TradeState, error) {
	if len(events) == 0 {
		return nil, nil
	}
	tradeID := events[0].TradeID
	for _, e := range events[1:] {
		if e.TradeID != tradeID {
			return nil, fmt.Errorf("build %s: mixed trade ids (%s)", tradeID, e.TradeID)
		}
	}

	s := &models.TradeState{
		TradeID:   tradeID,
		Direction: models.TradeOther,
		Status:    models.StatusUnknown,
	}

	var (
		sawBeTrigger bool
		sawCancelled bool
		exitKind     models.TradeEventKind
	)

	for i := range events {
		e := &events[i]
		s.LastEventAt = e.Timestamp
		s.EventCount++

		if e.Direction != nil && s.Direction == models.TradeOther {
			s.Direction = models.NormalizeDirection(*e.Direction)
		}
		fillStr(&s.Session, e.Session)
		fillStr(&s.SignalDate, e.SignalDate)
		fillStr(&s.SignalTime, e.SignalTime)
		if s.HTFAlignment == nil && len(e.HTFAlignment) > 0 {
			s.HTFAlignment = e.HTFAlignment
		}
		if s.Targets == nil && len(e.Targets) > 0 {
			s.Targets = e.Targets
		}

		switch e.Kind {
		case models.EventEntry:
			s.Status = models.StatusActive
		case models.EventMfeUpdate:
			ts := e.Timestamp
			s.LastMfeAt = &ts
			if e.BeMfe != nil {
				s.CurrentBeMfe = e.BeMfe
				s.MaxBeMfe = maxPtr(s.MaxBeMfe, *e.BeMfe)
			}
			if e.NoBeMfe != nil {
				s.CurrentNoBeMfe = e.NoBeMfe
				s.MaxNoBeMfe = maxPtr(s.MaxNoBeMfe, *e.NoBeMfe)
			}
			if e.Mae != nil {
				s.Mae = e.Mae
			}
		case models.EventBeTriggered:
			sawBeTrigger = true
			s.Status = models.StatusBeProtected
		case models.EventExitBreakEven, models.EventExitStopLoss, models.EventExitTarget:
			exitKind = e.Kind
			s.Status = models.StatusCompleted
			if e.ExitPrice != nil {
				s.ExitPrice = e.ExitPrice
			}
		case models.EventCancelled:
			sawCancelled = true
			s.Status = models.StatusCancelled
		}
	}

	s.EntryPrice = ResolveEntryPrice(events)
	s.StopLoss = ResolveStopLoss(events)
	if s.EntryPrice != nil && s.StopLoss != nil {
		s.RiskDistance = models.Float64Ptr(math.Abs(*s.EntryPrice - *s.StopLoss))
	}

	// Final re-derivation from the full event set. Events can arrive
	// non-monotonically with respect to logical trade phase; the presence
	// rules below override whatever the in-order fold guessed, except for
	// an explicit cancellation.
	switch {
	case sawCancelled:
		s.Status = models.StatusCancelled
	case exitKind != "":
		s.Status = models.StatusCompleted
		reason := string(exitKind)
		s.CompletedBy = &reason
		s.FinalMfe = resolveFinalMfe(exitKind, events, s)
	case sawBeTrigger:
		s.Status = models.StatusBeProtected
	default:
		s.Status = models.StatusActive
	}

	return s, nil
}

// SortEvents orders events by timestamp ascending, breaking ties on the
// stable insertion sequence.
func SortEvents(events []models.TradeEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Seq < events[j].Seq
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
}

// LatestObservedPrice returns the most recent current-price report in the
// ordered event list, or nil when none was ever carried.
func LatestObservedPrice(events []models.TradeEvent) *float64 {
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].CurrentPrice != nil {
			return events[i].CurrentPrice
		}
	}
	return nil
}

func resolveFinalMfe(exit models.TradeEventKind, events []models.TradeEvent, s *models.TradeState) *float64 {
	if exit == models.EventExitBreakEven {
		return models.Float64Ptr(0.0)
	}
	// Priority order: explicitly reported final value, then the latest
	// no-BE MFE, then the latest BE MFE, then the one-risk-unit loss
	// default for stop-outs.
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].FinalMfe != nil {
			return events[i].FinalMfe
		}
	}
	if s.CurrentNoBeMfe != nil {
		return s.CurrentNoBeMfe
	}
	if s.CurrentBeMfe != nil {
		return s.CurrentBeMfe
	}
	if exit == models.EventExitStopLoss {
		return models.Float64Ptr(-1.0)
	}
	return nil
}

func fillStr(dst **string, src *string) {
	if *dst == nil && src != nil && *src != "" {
		*dst = src
	}
}

func maxPtr(cur *float64, v float64) *float64 {
	if cur == nil || v > *cur {
		return &v
	}
	return cur
}
