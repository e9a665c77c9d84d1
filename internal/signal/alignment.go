package signal

import (
	"github.com/will1980j/trading-hmm-server-sub001/internal/domain/models"
	drepo "github.com/will1980j/trading-hmm-server-sub001/internal/domain/repository"
)

// EvaluateAlignment reduces per-timeframe biases and enable flags into the
// two alignment flags. With nothing enabled there is no constraint to
// violate, so both flags are true. A Neutral bias at any enabled timeframe
// vetoes both directions.
func EvaluateAlignment(biases map[drepo.Timeframe]models.Bias, enabled map[drepo.Timeframe]bool) models.AlignmentFlags {
	flags := models.AlignmentFlags{Bullish: true, Bearish: true}
	for _, tf := range drepo.HigherTimeframes {
		if !enabled[tf] {
			continue
		}
		b := biases[tf]
		if b != models.BiasBullish {
			flags.Bullish = false
		}
		if b != models.BiasBearish {
			flags.Bearish = false
		}
	}
	return flags
}
