package gaps

import (
	"fmt"
	"strings"
	"time"

	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
)

// Trading session names, keyed off time-of-day in the exchange's local
// timezone.
const (
	SessionAsia       = "Asia"
	SessionLondon     = "London"
	SessionNYPre      = "NY Pre Market"
	SessionNYAM       = "NY AM"
	SessionNYLunch    = "NY Lunch"
	SessionNYPM       = "NY PM"
	SessionAfterHours = "After Hours"
)

// ParsedTradeID is the metadata recoverable from a structured trade
// identifier of the form YYYYMMDD_HHMMSSmmm_DIRECTION.
type ParsedTradeID struct {
	Date      string // 2024-01-15
	Time      string // 09:30:00
	Direction models.TradeDirection
	Session   string
}

// ParseTradeID recovers date, time, direction and session from a
// structured identifier. It fails on anything that does not match the
// expected shape; callers treat that as a tier failure, not a fatal error.
func ParseTradeID(tradeID string) (*ParsedTradeID, error) {
	parts := strings.Split(tradeID, "_")
	if len(parts) < 3 {
		return nil, fmt.Errorf("trade id %q: want YYYYMMDD_HHMMSSmmm_DIRECTION", tradeID)
	}
	datePart, timePart := parts[0], parts[1]
	if len(datePart) != 8 || len(timePart) != 9 {
		return nil, fmt.Errorf("trade id %q: bad date/time segment lengths", tradeID)
	}

	ts, err := time.Parse("20060102_150405.000", datePart+"_"+timePart[:6]+"."+timePart[6:])
	if err != nil {
		return nil, fmt.Errorf("trade id %q: %w", tradeID, err)
	}

	dir := models.NormalizeDirection(strings.Join(parts[2:], "_"))
	return &ParsedTradeID{
		Date:      ts.Format("2006-01-02"),
		Time:      ts.Format("15:04:05"),
		Direction: dir,
		Session:   SessionFor(ts.Hour(), ts.Minute()),
	}, nil
}

// SessionFor maps a local time-of-day onto the six fixed session windows;
// everything not covered (16:00-19:59) is after-hours.
func SessionFor(hour, minute int) string {
	hm := hour*60 + minute
	switch {
	case hm >= 20*60:
		return SessionAsia
	case hm < 6*60:
		return SessionLondon
	case hm < 8*60+30:
		return SessionNYPre
	case hm < 12*60:
		return SessionNYAM
	case hm < 13*60:
		return SessionNYLunch
	case hm < 16*60:
		return SessionNYPM
	default:
		return SessionAfterHours
	}
}
