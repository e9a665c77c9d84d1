package lifecycle

import "github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"

// Field resolvers make each field's source precedence an explicit,
// reviewable contract instead of chained fallbacks scattered through the
// fold.

// ResolveEntryPrice returns the trade's entry price. Priority:
//  1. the first Entry event carrying entry_price
//  2. the first SignalCreated event carrying entry_price
//  3. the first event of any kind carrying entry_price
func ResolveEntryPrice(events []models.TradeEvent) *float64 {
	if v := firstOfKind(events, models.EventEntry, func(e *models.TradeEvent) *float64 { return e.EntryPrice }); v != nil {
		return v
	}
	if v := firstOfKind(events, models.EventSignalCreated, func(e *models.TradeEvent) *float64 { return e.EntryPrice }); v != nil {
		return v
	}
	return firstAny(events, func(e *models.TradeEvent) *float64 { return e.EntryPrice })
}

// ResolveStopLoss returns the trade's stop loss. Priority:
//  1. the first Entry event carrying stop_loss
//  2. the first SignalCreated event carrying stop_loss
//  3. the first event of any kind carrying stop_loss
func ResolveStopLoss(events []models.TradeEvent) *float64 {
	if v := firstOfKind(events, models.EventEntry, func(e *models.TradeEvent) *float64 { return e.StopLoss }); v != nil {
		return v
	}
	if v := firstOfKind(events, models.EventSignalCreated, func(e *models.TradeEvent) *float64 { return e.StopLoss }); v != nil {
		return v
	}
	return firstAny(events, func(e *models.TradeEvent) *float64 { return e.StopLoss })
}

func firstOfKind(events []models.TradeEvent, kind models.TradeEventKind, get func(*models.TradeEvent) *float64) *float64 {
	for i := range events {
		if events[i].Kind != kind {
			continue
		}
		if v := get(&events[i]); v != nil {
			return v
		}
	}
	return nil
}

func firstAny(events []models.TradeEvent, get func(*models.TradeEvent) *float64) *float64 {
	for i := range events {
		if v := get(&events[i]); v != nil {
			return v
		}
	}
	return nil
}
