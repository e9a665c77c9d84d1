package models

// Bias is the 3-way directional state of a single timeframe engine.
type Bias int

const (
	BiasNeutral Bias = iota
	BiasBullish
	BiasBearish
)

func (b Bias) String() string {
	switch b {
	case BiasBullish:
		return "Bullish"
	case BiasBearish:
		return "Bearish"
	default:
		return "Neutral"
	}
}

// FvgRange is a fair-value-gap price band. The same shape is used for
// inverse FVGs; which list a range lives in determines its meaning.
type FvgRange struct {
	High float64
	Low  float64
}
