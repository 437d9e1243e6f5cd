// Package compass classifies per-symbol GEX aggregates into a weighted
// multi-symbol market regime: a 2D sentiment vector (volatility-sign axis,
// trend axis), a magnitude, and a labeled quadrant with a suggested
// strategy. Pure computation, no I/O.
package compass

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"gexcompass/internal/gex"
)

// Basket is a named, weighted set of symbols aggregated into one compass
// state.
type Basket struct {
	Name    string
	Weights map[string]float64
}

// Component is one symbol's contribution to a basket's compass state. A
// symbol without usable flip data keeps its snapshot fields for display but
// carries zero Weight and is excluded from every weighted aggregate.
type Component struct {
	Symbol       string  `json:"symbol"`
	Weight       float64 `json:"weight"`
	Spot         float64 `json:"spot"`
	Flip         float64 `json:"flip_strike"`
	DistancePct  float64 `json:"distance_pct"`
	NetGEX       float64 `json:"net_gex"`
	EffectiveGEX float64 `json:"effective_gex"`
	VolScore     float64 `json:"vol_score"`
	TrendScore   float64 `json:"trend_score"`
	DecayBoost   float64 `json:"decay_boost"`
	Label        string  `json:"regime"`
}

// State is the evaluated compass for one basket.
type State struct {
	Basket      string      `json:"basket"`
	XScore      float64     `json:"x_score"`
	YScore      float64     `json:"y_score"`
	Magnitude   float64     `json:"magnitude"`
	Label       string      `json:"label"`
	Strategy    string      `json:"strategy"`
	DecayBoost  float64     `json:"decay_boost"`
	Composition string      `json:"composition"`
	Components  []Component `json:"raw_components"`
	GeneratedAt time.Time   `json:"generated_at"`
}

// Evaluate scores one basket over the given per-symbol aggregates.
//
// Per symbol: trend = clamp(((spot-flip)/flip)/sensitivity, -1, 1), vol = +1
// when net GEX is positive else -1, decay boost from the theta/gamma ratio.
// The basket scores are the weighted averages over symbols with usable flip
// data; magnitude is the vector length, boosted by the average decay
// multiplier in positive-GEX regimes and capped at 1.1.
func Evaluate(basket Basket, snaps map[string]gex.SymbolAggregate, sens Sensitivities, now time.Time) State {
	st := State{
		Basket:      basket.Name,
		DecayBoost:  1.0,
		Composition: basket.Composition(),
		GeneratedAt: now,
	}

	var volSum, trendSum, boostSum, totalWeight float64

	for _, symbol := range basket.ordered() {
		snap, ok := snaps[symbol]
		if !ok {
			continue
		}
		weight := basket.Weights[symbol]

		comp := Component{
			Symbol:       symbol,
			Spot:         snap.Spot,
			NetGEX:       snap.NetGEX,
			EffectiveGEX: snap.EffectiveGEX,
			VolScore:     1.0,
			DecayBoost:   decayMultiplier(snap.TotalGamma, snap.TotalTheta),
		}
		if snap.NetGEX <= 0 {
			comp.VolScore = -1.0
		}

		if snap.Flip.Valid && snap.Flip.Strike > 0 {
			comp.Flip = snap.Flip.Strike
			comp.DistancePct = (snap.Spot - comp.Flip) / comp.Flip * 100
			comp.TrendScore = trendScore(snap.Spot, comp.Flip, sens.For(symbol))
			comp.Weight = weight
			comp.Label = trendLabel(comp.TrendScore)

			volSum += comp.VolScore * weight
			trendSum += comp.TrendScore * weight
			boostSum += comp.DecayBoost * weight
			totalWeight += weight
		} else {
			comp.Label = "no flip data"
		}

		st.Components = append(st.Components, comp)
	}

	if totalWeight == 0 {
		st.Label = RegimeNoData
		st.Strategy = "Stand aside."
		return st
	}

	st.XScore = volSum / totalWeight
	st.YScore = trendSum / totalWeight
	st.DecayBoost = boostSum / totalWeight

	st.Magnitude = math.Sqrt(st.XScore*st.XScore + st.YScore*st.YScore)
	if st.XScore > 0 && st.DecayBoost > decayThreshold {
		st.Magnitude *= st.DecayBoost
	}
	if st.Magnitude > magnitudeCap {
		st.Magnitude = magnitudeCap
	}

	st.Label, st.Strategy = classify(st.XScore, st.YScore, st.Magnitude, st.DecayBoost)
	return st
}

// Merge flattens basket states into one component list keyed by symbol,
// later states overwriting earlier ones. The result is sorted by symbol.
func Merge(states ...State) []Component {
	bySymbol := make(map[string]Component)
	for _, st := range states {
		for _, c := range st.Components {
			bySymbol[c.Symbol] = c
		}
	}

	out := make([]Component, 0, len(bySymbol))
	for _, c := range bySymbol {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Composition renders the basket weights as "SPY: 50%, QQQ: 30%, IWM: 20%".
func (b Basket) Composition() string {
	parts := make([]string, 0, len(b.Weights))
	for _, s := range b.ordered() {
		parts = append(parts, fmt.Sprintf("%s: %d%%", s, int(math.Round(b.Weights[s]*100))))
	}
	return strings.Join(parts, ", ")
}

// ordered returns the basket's symbols by descending weight then name, so
// component order and the composition string are stable.
func (b Basket) ordered() []string {
	syms := make([]string, 0, len(b.Weights))
	for s := range b.Weights {
		syms = append(syms, s)
	}
	sort.Slice(syms, func(i, j int) bool {
		wi, wj := b.Weights[syms[i]], b.Weights[syms[j]]
		if wi != wj {
			return wi > wj
		}
		return syms[i] < syms[j]
	})
	return syms
}
