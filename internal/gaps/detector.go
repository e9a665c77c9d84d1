package gaps

import (
	"fmt"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	applogger "github.com/will1980j/trading-hmm-server-sub001/pkg/logger"
)

// DefaultMfeStaleness is how long an open trade may go without an MFE
// update before it counts as a gap.
const DefaultMfeStaleness = 2 * time.Minute

// Detector batch-scans canonical trade states for the nine fixed
// incompleteness conditions. Checks are independent; a panic or error in
// one is logged and must not stop the rest.
type Detector struct {
	staleness time.Duration
	l         *applogger.Logger
}

func NewDetector(staleness time.Duration, l *applogger.Logger) *Detector {
	if staleness <= 0 {
		staleness = DefaultMfeStaleness
	}
	return &Detector{staleness: staleness, l: l}
}

type check struct {
	typ models.GapType
	fn  func(*Detector, *models.TradeState, time.Time) (bool, map[string]string)
}

var checks = []check{
	{models.GapStaleMfe, (*Detector).staleMfe},
	{models.GapMissingEntryPrice, (*Detector).missingEntryPrice},
	{models.GapMissingStopLoss, (*Detector).missingStopLoss},
	{models.GapMissingMae, (*Detector).missingMae},
	{models.GapMissingSession, (*Detector).missingSession},
	{models.GapMissingSignalDate, (*Detector).missingSignalDate},
	{models.GapMissingAlignment, (*Detector).missingAlignment},
	{models.GapMissingTargets, (*Detector).missingTargets},
	{models.GapMissingConfirm, (*Detector).missingConfirmation},
}

// Scan runs every check over every state and returns the detected gaps.
func (d *Detector) Scan(states []*models.TradeState, now time.Time) []models.GapRecord {
	var gaps []models.GapRecord
	for _, s := range states {
		if s == nil || s.Status == models.StatusCancelled {
			continue
		}
		for _, c := range checks {
			hit, ctx := d.runCheck(c, s, now)
			if hit {
				gaps = append(gaps, models.GapRecord{
					TradeID:    s.TradeID,
					Type:       c.typ,
					DetectedAt: now,
					Context:    ctx,
				})
			}
		}
	}
	return gaps
}

func (d *Detector) runCheck(c check, s *models.TradeState, now time.Time) (hit bool, ctx map[string]string) {
	defer func() {
		if r := recover(); r != nil {
			hit = false
			if d.l != nil {
				d.l.Error("gap check panicked",
					applogger.String("gap_type", string(c.typ)),
					applogger.String("trade_id", s.TradeID),
					applogger.Any("panic", r),
				)
			}
		}
	}()
	return c.fn(d, s, now)
}

// HealthScore subtracts each gap's weight from 100, clamped to [0,100].
func HealthScore(gaps []models.GapRecord) int {
	score := 100
	for _, g := range gaps {
		score -= models.GapWeights[g.Type]
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

func (d *Detector) staleMfe(s *models.TradeState, now time.Time) (bool, map[string]string) {
	if !s.Open() {
		return false, nil
	}
	if s.LastMfeAt == nil {
		return true, map[string]string{"reason": "never updated"}
	}
	if age := now.Sub(*s.LastMfeAt); age > d.staleness {
		return true, map[string]string{"age": fmt.Sprintf("%s", age.Truncate(time.Second))}
	}
	return false, nil
}

func (d *Detector) missingEntryPrice(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return s.EntryPrice == nil, nil
}

func (d *Detector) missingStopLoss(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return s.StopLoss == nil, nil
}

func (d *Detector) missingMae(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return s.Open() && s.Mae == nil, nil
}

func (d *Detector) missingSession(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return s.Session == nil || *s.Session == "", nil
}

func (d *Detector) missingSignalDate(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return s.SignalDate == nil || *s.SignalDate == "", nil
}

func (d *Detector) missingAlignment(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return len(s.HTFAlignment) == 0, nil
}

func (d *Detector) missingTargets(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return len(s.Targets) == 0, nil
}

func (d *Detector) missingConfirmation(s *models.TradeState, _ time.Time) (bool, map[string]string) {
	return s.ConfirmedAt == nil, nil
}
