package compass

import (
	"math"
	"testing"
	"time"

	"gexcompass/internal/gex"
)

var testNow = time.Date(2024, 10, 18, 14, 30, 0, 0, time.UTC)

func snap(netGEX, spot, flip, gamma, theta float64) gex.SymbolAggregate {
	agg := gex.SymbolAggregate{
		Spot:       spot,
		NetGEX:     netGEX,
		TotalGamma: gamma,
		TotalTheta: theta,
		ObservedAt: testNow,
	}
	if flip > 0 {
		agg.Flip = gex.FlipPoint{Strike: flip, Valid: true}
	}
	return agg
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestTrendScore(t *testing.T) {
	cases := []struct {
		name             string
		spot, flip, sens float64
		want             float64
	}{
		{"saturates up", 510, 500, 0.0020, 1},
		{"saturates down", 490, 500, 0.0020, -1},
		{"half band", 500.5, 500, 0.0020, 0.5},
		{"at flip", 500, 500, 0.0020, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := trendScore(tc.spot, tc.flip, tc.sens); !almostEqual(got, tc.want) {
				t.Fatalf("trendScore(%v, %v, %v) = %v, want %v", tc.spot, tc.flip, tc.sens, got, tc.want)
			}
		})
	}
}

func TestTrendLabel(t *testing.T) {
	cases := []struct {
		score float64
		want  string
	}{
		{0.5, "Bullish"},
		{0.2, "Bullish"},
		{0.19, "Neutral"},
		{0, "Neutral"},
		{-0.19, "Neutral"},
		{-0.2, "Bearish"},
		{-1, "Bearish"},
	}
	for _, tc := range cases {
		if got := trendLabel(tc.score); got != tc.want {
			t.Errorf("trendLabel(%v) = %q, want %q", tc.score, got, tc.want)
		}
	}
}

func TestDecayMultiplier(t *testing.T) {
	cases := []struct {
		gamma, theta, want float64
	}{
		{100, -250, 1.25},
		{100, -160, 1.10},
		{100, -150, 1.0},
		{100, -100, 1.0},
		{100, 250, 1.25},
		{0, -500, 1.0},
	}
	for _, tc := range cases {
		if got := decayMultiplier(tc.gamma, tc.theta); !almostEqual(got, tc.want) {
			t.Errorf("decayMultiplier(%v, %v) = %v, want %v", tc.gamma, tc.theta, got, tc.want)
		}
	}
}

func TestSensitivitiesFor(t *testing.T) {
	sens := DefaultSensitivities()
	if got := sens.For("SPY"); got != 0.0020 {
		t.Errorf("For(SPY) = %v, want 0.0020", got)
	}
	if got := sens.For("QQQ"); got != 0.0035 {
		t.Errorf("For(QQQ) = %v, want 0.0035", got)
	}
	if got := sens.For("ZZZ"); got != defaultSensitivity {
		t.Errorf("For(ZZZ) = %v, want %v", got, defaultSensitivity)
	}
}

func TestEvaluateGrindUp(t *testing.T) {
	basket := Basket{Name: "traders", Weights: map[string]float64{"SPY": 0.8, "IWM": 0.2}}
	snaps := map[string]gex.SymbolAggregate{
		"SPY": snap(2e9, 510, 500, 1000, -500),
		"IWM": snap(-3e8, 210, 220, 800, -400),
	}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if !almostEqual(st.XScore, 0.6) {
		t.Errorf("XScore = %v, want 0.6", st.XScore)
	}
	if !almostEqual(st.YScore, 0.6) {
		t.Errorf("YScore = %v, want 0.6", st.YScore)
	}
	if want := math.Sqrt(0.72); !almostEqual(st.Magnitude, want) {
		t.Errorf("Magnitude = %v, want %v", st.Magnitude, want)
	}
	if st.Label != "\U0001F7E2 GRIND UP" {
		t.Errorf("Label = %q, want green GRIND UP", st.Label)
	}
	if st.Strategy != "Buy Calls / Sell Put Spreads." {
		t.Errorf("Strategy = %q", st.Strategy)
	}
	if st.Composition != "SPY: 80%, IWM: 20%" {
		t.Errorf("Composition = %q", st.Composition)
	}
	if len(st.Components) != 2 {
		t.Fatalf("got %d components, want 2", len(st.Components))
	}
	if st.Components[0].Symbol != "SPY" || st.Components[1].Symbol != "IWM" {
		t.Errorf("components out of weight order: %v, %v", st.Components[0].Symbol, st.Components[1].Symbol)
	}
}

func TestEvaluateWeakRegime(t *testing.T) {
	basket := Basket{Name: "traders", Weights: map[string]float64{"SPY": 0.55, "IWM": 0.45}}
	snaps := map[string]gex.SymbolAggregate{
		"SPY": snap(2e9, 510, 500, 1000, -500),
		"IWM": snap(-3e8, 210, 220, 800, -400),
	}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if !almostEqual(st.XScore, 0.1) || !almostEqual(st.YScore, 0.1) {
		t.Fatalf("scores = (%v, %v), want (0.1, 0.1)", st.XScore, st.YScore)
	}
	if want := math.Sqrt(0.02); !almostEqual(st.Magnitude, want) {
		t.Errorf("Magnitude = %v, want %v", st.Magnitude, want)
	}
	if st.Label != "\U0001F7E2 WEAK GRIND UP" {
		t.Errorf("Label = %q, want WEAK GRIND UP", st.Label)
	}
	if st.Strategy != "Buy Calls / Sell Put Spreads. (Low Confidence)" {
		t.Errorf("Strategy = %q", st.Strategy)
	}
}

func TestEvaluateQuadrants(t *testing.T) {
	basket := Basket{Name: "solo", Weights: map[string]float64{"SPY": 1}}
	cases := []struct {
		name         string
		netGEX, spot float64
		wantLabel    string
		wantStrategy string
	}{
		{"positive gex above flip", 2e9, 510, "\U0001F7E2 GRIND UP", "Buy Calls / Sell Put Spreads."},
		{"positive gex below flip", 2e9, 490, "⚪ SUPPORT / CHOP", "'Bear Trap.' Iron Condors / Buy Dips."},
		{"negative gex above flip", -2e9, 510, "\U0001F7E1 MELT UP", "Buy Calls. Unanchored upside."},
		{"negative gex below flip", -2e9, 490, "\U0001F534 CRASH / FLUSH", "Buy Puts / Sell Rips."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			snaps := map[string]gex.SymbolAggregate{"SPY": snap(tc.netGEX, tc.spot, 500, 1000, -500)}
			st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)
			if st.Label != tc.wantLabel {
				t.Errorf("Label = %q, want %q", st.Label, tc.wantLabel)
			}
			if st.Strategy != tc.wantStrategy {
				t.Errorf("Strategy = %q, want %q", st.Strategy, tc.wantStrategy)
			}
		})
	}
}

func TestEvaluateTiesReadNegative(t *testing.T) {
	basket := Basket{Name: "solo", Weights: map[string]float64{"SPY": 1}}

	// Spot pinned to the flip is a trend tie; it falls to the bearish branch.
	snaps := map[string]gex.SymbolAggregate{"SPY": snap(2e9, 500, 500, 1000, -500)}
	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)
	if st.Label != "⚪ SUPPORT / CHOP" {
		t.Errorf("trend tie label = %q, want SUPPORT / CHOP", st.Label)
	}

	// Zero net GEX is a vol tie; it scores as negative GEX.
	snaps = map[string]gex.SymbolAggregate{"SPY": snap(0, 510, 500, 1000, -500)}
	st = Evaluate(basket, snaps, DefaultSensitivities(), testNow)
	if st.Label != "\U0001F7E1 MELT UP" {
		t.Errorf("vol tie label = %q, want MELT UP", st.Label)
	}
}

func TestEvaluateThetaBurnBoostsAndCaps(t *testing.T) {
	basket := Basket{Name: "solo", Weights: map[string]float64{"SPY": 1}}
	snaps := map[string]gex.SymbolAggregate{"SPY": snap(2e9, 510, 500, 100, -250)}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if st.Label != "\U0001F7E2 GRIND UP (THETA BURN)" {
		t.Errorf("Label = %q, want GRIND UP (THETA BURN)", st.Label)
	}
	if !almostEqual(st.DecayBoost, 1.25) {
		t.Errorf("DecayBoost = %v, want 1.25", st.DecayBoost)
	}
	// sqrt(2) boosted by 1.25 blows through the cap.
	if !almostEqual(st.Magnitude, 1.1) {
		t.Errorf("Magnitude = %v, want capped 1.1", st.Magnitude)
	}
}

func TestEvaluatePinned(t *testing.T) {
	basket := Basket{Name: "solo", Weights: map[string]float64{"SPY": 1}}
	snaps := map[string]gex.SymbolAggregate{"SPY": snap(2e9, 490, 500, 100, -250)}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if st.Label != "⚪ SUPPORT / CHOP (PINNED)" {
		t.Errorf("Label = %q, want SUPPORT / CHOP (PINNED)", st.Label)
	}
}

func TestEvaluateNoBoostOnNegativeGEX(t *testing.T) {
	// High theta ratio everywhere, but the blended vol score is negative,
	// so the magnitude keeps its raw vector length.
	basket := Basket{Name: "mixed", Weights: map[string]float64{"SPY": 0.8, "IWM": 0.2}}
	snaps := map[string]gex.SymbolAggregate{
		"SPY": snap(-2e9, 510, 500, 100, -250),
		"IWM": snap(3e8, 210, 220, 100, -250),
	}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if !almostEqual(st.XScore, -0.6) || !almostEqual(st.YScore, 0.6) {
		t.Fatalf("scores = (%v, %v), want (-0.6, 0.6)", st.XScore, st.YScore)
	}
	if want := math.Sqrt(0.72); !almostEqual(st.Magnitude, want) {
		t.Errorf("Magnitude = %v, want unboosted %v", st.Magnitude, want)
	}
	if st.Label != "\U0001F7E1 MELT UP" {
		t.Errorf("Label = %q, want MELT UP", st.Label)
	}
}

func TestEvaluateNoFlipCarriesZeroWeight(t *testing.T) {
	basket := Basket{Name: "traders", Weights: map[string]float64{"SPY": 0.5, "QQQ": 0.3, "IWM": 0.2}}
	snaps := map[string]gex.SymbolAggregate{
		"SPY": snap(2e9, 510, 500, 1000, -500),
		"QQQ": snap(1e9, 480, 0, 1000, -500),
		"IWM": snap(3e8, 225, 220, 1000, -500),
	}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	// QQQ contributes nothing, so the remaining 0.7 of weight is fully
	// bullish and positive.
	if !almostEqual(st.XScore, 1) || !almostEqual(st.YScore, 1) {
		t.Fatalf("scores = (%v, %v), want (1, 1)", st.XScore, st.YScore)
	}
	if len(st.Components) != 3 {
		t.Fatalf("got %d components, want 3", len(st.Components))
	}
	var qqq Component
	for _, c := range st.Components {
		if c.Symbol == "QQQ" {
			qqq = c
		}
	}
	if qqq.Weight != 0 {
		t.Errorf("QQQ weight = %v, want 0", qqq.Weight)
	}
	if qqq.Label != "no flip data" {
		t.Errorf("QQQ label = %q, want %q", qqq.Label, "no flip data")
	}
	if qqq.TrendScore != 0 || qqq.DistancePct != 0 {
		t.Errorf("QQQ trend/distance = (%v, %v), want zeros", qqq.TrendScore, qqq.DistancePct)
	}
}

func TestEvaluateMissingSymbolSkipped(t *testing.T) {
	basket := Basket{Name: "traders", Weights: map[string]float64{"SPY": 0.5, "QQQ": 0.3, "IWM": 0.2}}
	snaps := map[string]gex.SymbolAggregate{
		"SPY": snap(2e9, 510, 500, 1000, -500),
		"IWM": snap(3e8, 225, 220, 1000, -500),
	}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if len(st.Components) != 2 {
		t.Fatalf("got %d components, want 2", len(st.Components))
	}
	for _, c := range st.Components {
		if c.Symbol == "QQQ" {
			t.Fatal("QQQ has no snapshot and must not appear")
		}
	}
}

func TestEvaluateNoData(t *testing.T) {
	basket := Basket{Name: "traders", Weights: map[string]float64{"SPY": 0.5, "QQQ": 0.5}}

	st := Evaluate(basket, nil, DefaultSensitivities(), testNow)
	if st.Label != RegimeNoData {
		t.Errorf("Label = %q, want %q", st.Label, RegimeNoData)
	}
	if st.Magnitude != 0 || len(st.Components) != 0 {
		t.Errorf("empty basket produced magnitude %v with %d components", st.Magnitude, len(st.Components))
	}

	// All symbols present but none with a flip still reads NO DATA.
	snaps := map[string]gex.SymbolAggregate{
		"SPY": snap(2e9, 510, 0, 1000, -500),
		"QQQ": snap(1e9, 480, 0, 1000, -500),
	}
	st = Evaluate(basket, snaps, DefaultSensitivities(), testNow)
	if st.Label != RegimeNoData {
		t.Errorf("Label = %q, want %q", st.Label, RegimeNoData)
	}
	if len(st.Components) != 2 {
		t.Errorf("got %d components, want 2", len(st.Components))
	}
}

func TestEvaluateDistancePct(t *testing.T) {
	basket := Basket{Name: "solo", Weights: map[string]float64{"SPY": 1}}
	snaps := map[string]gex.SymbolAggregate{"SPY": snap(2e9, 505, 500, 1000, -500)}

	st := Evaluate(basket, snaps, DefaultSensitivities(), testNow)

	if got := st.Components[0].DistancePct; !almostEqual(got, 1.0) {
		t.Errorf("DistancePct = %v, want 1.0", got)
	}
}

func TestMergeLastWriteWins(t *testing.T) {
	first := State{Components: []Component{
		{Symbol: "IWM", Spot: 219},
		{Symbol: "SPY", Spot: 500},
	}}
	second := State{Components: []Component{
		{Symbol: "IWM", Spot: 221},
		{Symbol: "NDX", Spot: 17000},
	}}

	merged := Merge(first, second)

	if len(merged) != 3 {
		t.Fatalf("got %d merged components, want 3", len(merged))
	}
	if merged[0].Symbol != "IWM" || merged[1].Symbol != "NDX" || merged[2].Symbol != "SPY" {
		t.Fatalf("merged order = %v, %v, %v", merged[0].Symbol, merged[1].Symbol, merged[2].Symbol)
	}
	if merged[0].Spot != 221 {
		t.Errorf("IWM spot = %v, want the later state's 221", merged[0].Spot)
	}
}

func TestBasketComposition(t *testing.T) {
	b := Basket{Weights: map[string]float64{"SPY": 0.5, "QQQ": 0.3, "IWM": 0.2}}
	if got := b.Composition(); got != "SPY: 50%, QQQ: 30%, IWM: 20%" {
		t.Errorf("Composition = %q", got)
	}
}

func TestPlainLabel(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"\U0001F7E2 GRIND UP", "GRIND UP"},
		{"\U0001F7E2 WEAK GRIND UP (THETA BURN)", "GRIND UP (THETA BURN)"},
		{"⚪ SUPPORT / CHOP (PINNED)", "SUPPORT / CHOP (PINNED)"},
		{"\U0001F7E1 MELT UP", "MELT UP"},
		{"\U0001F534 WEAK CRASH / FLUSH", "CRASH / FLUSH"},
		{"NO DATA", "NO DATA"},
	}
	for _, tc := range cases {
		if got := PlainLabel(tc.in); got != tc.want {
			t.Errorf("PlainLabel(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
