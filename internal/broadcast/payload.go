package broadcast

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"gexcompass/internal/compass"
)

// GammaLevel is one strike in the per-symbol level arrays of the broadcast
// payload. Type is derived from the sign of the strike's net GEX.
type GammaLevel struct {
	Strike float64 `json:"strike"`
	GEX    float64 `json:"gex"`
	Type   string  `json:"type"`
}

// NewGammaLevel classifies the strike's side: positive GEX resists,
// negative supports.
func NewGammaLevel(strike, gex float64) GammaLevel {
	side := "support"
	if gex > 0 {
		side = "resistance"
	}
	return GammaLevel{Strike: strike, GEX: gex, Type: side}
}

// SymbolSnapshot carries one reference symbol's spot, flip, and net GEX
// for the flat per-symbol keys.
type SymbolSnapshot struct {
	Spot   float64
	Flip   float64
	NetGEX float64
}

// RegimeMessage is the document broadcast to chart clients each cycle. Its
// JSON form is flat: fixed keys plus spot_<sym>, flip_<sym>, net_gex_<sym>
// and gamma_levels_<sym> with lowercased symbol suffixes. Every configured
// symbol's keys are always present so clients can bind to them without
// existence checks.
type RegimeMessage struct {
	Timestamp time.Time
	Label     string
	Strategy  string
	XScore    float64
	YScore    float64
	Symbols   map[string]SymbolSnapshot
	Levels    map[string][]GammaLevel
}

// BuildRegimeMessage assembles the wire document from a compass state and
// its merged components. refSymbols fixes which spot/flip/net GEX triples
// appear; symbols without a component emit zeroes. levels should carry an
// entry per configured level symbol, empty when the cycle produced none.
func BuildRegimeMessage(st compass.State, components []compass.Component, refSymbols []string, levels map[string][]GammaLevel, at time.Time) RegimeMessage {
	msg := RegimeMessage{
		Timestamp: at,
		Label:     st.Label,
		Strategy:  st.Strategy,
		XScore:    st.XScore,
		YScore:    st.YScore,
		Symbols:   make(map[string]SymbolSnapshot, len(refSymbols)),
		Levels:    make(map[string][]GammaLevel, len(levels)),
	}

	bySymbol := make(map[string]compass.Component, len(components))
	for _, c := range components {
		bySymbol[c.Symbol] = c
	}
	for _, symbol := range refSymbols {
		c := bySymbol[symbol]
		msg.Symbols[symbol] = SymbolSnapshot{Spot: c.Spot, Flip: c.Flip, NetGEX: c.NetGEX}
	}
	for symbol, lv := range levels {
		if lv == nil {
			lv = []GammaLevel{}
		}
		msg.Levels[symbol] = lv
	}
	return msg
}

// MarshalJSON flattens the message into the chart clients' key scheme.
func (m RegimeMessage) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"type":        "REGIME_UPDATE",
		"timestamp":   m.Timestamp.Format(time.RFC3339),
		"regime":      compass.PlainLabel(m.Label),
		"regime_code": RegimeCode(m.Label),
		"confidence":  Confidence(m.Label),
		"x_score":     round4(m.XScore),
		"y_score":     round4(m.YScore),
		"strategy":    m.Strategy,
	}
	for symbol, snap := range m.Symbols {
		key := strings.ToLower(symbol)
		out["spot_"+key] = snap.Spot
		out["flip_"+key] = snap.Flip
		out["net_gex_"+key] = snap.NetGEX
	}
	for symbol, levels := range m.Levels {
		if levels == nil {
			levels = []GammaLevel{}
		}
		out["gamma_levels_"+strings.ToLower(symbol)] = levels
	}
	return json.Marshal(out)
}

// Numeric codes chart platforms switch on. Matched by containment so
// suffixed labels keep their base code.
var regimeCodes = []struct {
	label string
	code  int
}{
	{compass.RegimeGrindUp, 1},
	{compass.RegimeMeltUp, 2},
	{compass.RegimeSupportChop, 3},
	{compass.RegimeCrashFlush, 4},
}

// RegimeCode maps a label to its numeric code, 0 when no regime matches.
func RegimeCode(label string) int {
	upper := strings.ToUpper(label)
	for _, rc := range regimeCodes {
		if strings.Contains(upper, rc.label) {
			return rc.code
		}
	}
	return 0
}

// Confidence is LOW for weak-magnitude labels, HIGH otherwise.
func Confidence(label string) string {
	if strings.Contains(label, "WEAK") {
		return "LOW"
	}
	return "HIGH"
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
