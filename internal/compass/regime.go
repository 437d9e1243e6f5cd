package compass

import (
	"math"
	"strings"
)

// Base regime labels, one per compass quadrant.
const (
	RegimeGrindUp     = "GRIND UP"
	RegimeSupportChop = "SUPPORT / CHOP"
	RegimeMeltUp      = "MELT UP"
	RegimeCrashFlush  = "CRASH / FLUSH"
	RegimeNoData      = "NO DATA"
)

const (
	iconGreen  = "\U0001F7E2"
	iconWhite  = "⚪"
	iconYellow = "\U0001F7E1"
	iconRed    = "\U0001F534"
)

const (
	// weakThreshold is the magnitude below which a regime reads WEAK.
	weakThreshold = 0.25
	// decayThreshold is the average decay boost above which positive-GEX
	// regimes get a theta suffix and a magnitude boost.
	decayThreshold = 1.1
	// magnitudeCap bounds the final magnitude.
	magnitudeCap = 1.1
)

// classify maps the compass vector to an icon-prefixed label and strategy.
// Ties fall to the negative branch on both axes: zero vol score reads as
// negative GEX, zero trend score as bearish.
func classify(vol, trend, magnitude, boost float64) (label, strategy string) {
	posGex := vol > 0
	bullish := trend > 0

	var icon, base, strat string
	switch {
	case posGex && bullish:
		icon, base, strat = iconGreen, RegimeGrindUp, "Buy Calls / Sell Put Spreads."
		if boost > decayThreshold {
			base += " (THETA BURN)"
		}
	case posGex:
		icon, base, strat = iconWhite, RegimeSupportChop, "'Bear Trap.' Iron Condors / Buy Dips."
		if boost > decayThreshold {
			base += " (PINNED)"
		}
	case bullish:
		icon, base, strat = iconYellow, RegimeMeltUp, "Buy Calls. Unanchored upside."
	default:
		icon, base, strat = iconRed, RegimeCrashFlush, "Buy Puts / Sell Rips."
	}

	if magnitude < weakThreshold {
		return icon + " WEAK " + base, strat + " (Low Confidence)"
	}
	return icon + " " + base, strat
}

var labelStripper = strings.NewReplacer(
	iconGreen+" ", "",
	iconWhite+" ", "",
	iconYellow+" ", "",
	iconRed+" ", "",
	"WEAK ", "",
)

// PlainLabel removes the icon and WEAK markers from a label, leaving the
// regime text with any qualifier suffix intact. Downstream consumers key
// on the plain form.
func PlainLabel(label string) string {
	return strings.TrimSpace(labelStripper.Replace(label))
}

// trendScore measures spot's distance from the flip as a fraction of the
// symbol's sensitivity band, clamped to [-1, 1].
func trendScore(spot, flip, sensitivity float64) float64 {
	score := (spot - flip) / flip / sensitivity
	return math.Max(-1, math.Min(1, score))
}

// trendLabel names a single symbol's trend. Scores inside the dead band
// read Neutral.
func trendLabel(score float64) string {
	switch {
	case math.Abs(score) < 0.2:
		return "Neutral"
	case score > 0:
		return "Bullish"
	default:
		return "Bearish"
	}
}

// decayMultiplier boosts conviction when the chain's theta load is large
// relative to its gamma, which accelerates dealer re-hedging into the close.
func decayMultiplier(totalGamma, totalTheta float64) float64 {
	if totalGamma == 0 {
		return 1.0
	}
	ratio := math.Abs(totalTheta / totalGamma)
	switch {
	case ratio > 2.0:
		return 1.25
	case ratio > 1.5:
		return 1.10
	default:
		return 1.0
	}
}

// Sensitivities maps symbols to the fractional distance from the flip at
// which the trend score saturates.
type Sensitivities map[string]float64

// DefaultSensitivities reflect per-symbol intraday noise: tech-heavy
// indexes need a wider move before it counts as trend.
func DefaultSensitivities() Sensitivities {
	return Sensitivities{
		"SPY": 0.0020,
		"SPX": 0.0020,
		"QQQ": 0.0035,
		"NDX": 0.0030,
		"IWM": 0.0015,
	}
}

const defaultSensitivity = 0.0025

// For returns the symbol's sensitivity, falling back to the default for
// unlisted symbols.
func (s Sensitivities) For(symbol string) float64 {
	if v, ok := s[symbol]; ok && v > 0 {
		return v
	}
	return defaultSensitivity
}
