package gex

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Band fractions around spot. The upstream source filters the chain to
// StrikeBand before aggregation; EffectiveBand is the tighter window used
// for effective GEX.
const (
	StrikeBand    = 0.03
	EffectiveBand = 0.02
)

// Aggregate derives the cycle metrics for one symbol from its contract
// batch. rows are expected pre-filtered to the strike band around spot.
//
// It returns the aggregate plus the eligible rows (zero open interest
// excluded) with type, strike, expiration and GEX resolved, ready for
// persistence. A batch with no eligible contracts yields an all-zero
// aggregate.
func Aggregate(symbol string, spot float64, rows []ContractRow, observedAt time.Time) (SymbolAggregate, []ContractRow) {
	agg := SymbolAggregate{
		Symbol:     symbol,
		ObservedAt: observedAt,
		Spot:       spot,
	}

	effLower := spot * (1 - EffectiveBand)
	effUpper := spot * (1 + EffectiveBand)

	byStrike := make(map[float64]float64)
	kept := make([]ContractRow, 0, len(rows))

	var (
		maxCallGEX, maxPutGEX float64
		haveCall, havePut     bool
	)

	for _, row := range rows {
		if row.OpenInterest <= 0 {
			continue
		}

		row.Symbol = symbol
		row.Underlying = spot
		row.ObservedAt = observedAt
		resolveContract(&row)

		oi := float64(row.OpenInterest)
		agg.TotalGamma += row.Gamma * oi * 100
		agg.TotalTheta += row.Theta * oi * 100

		gex := row.Gamma * oi * spot * 100
		switch row.Type {
		case Put:
			gex = -gex
			agg.PutGEX += gex
			if !havePut || gex < maxPutGEX {
				maxPutGEX = gex
				agg.MaxPutStrike = row.Strike
				havePut = true
			}
		case Call:
			agg.CallGEX += gex
			if !haveCall || gex > maxCallGEX {
				maxCallGEX = gex
				agg.MaxCallStrike = row.Strike
				haveCall = true
			}
		}
		row.GEX = gex

		agg.NetGEX += gex
		if row.Strike >= effLower && row.Strike <= effUpper {
			agg.EffectiveGEX += gex
		}
		byStrike[row.Strike] += gex

		kept = append(kept, row)
		agg.Contracts++
	}

	agg.Flip = flipPoint(byStrike)
	agg.MagnetStrike, agg.MagnetStrength = magnet(byStrike)

	return agg, kept
}

// resolveContract normalizes the explicit option type and falls back to the
// OSI encoding for type, strike and expiration when those are absent. Type
// values are matched by substring, so variants like PUT_OPTION still bucket
// correctly; the bare generic "OPTION" carries no side and defers to OSI.
func resolveContract(row *ContractRow) {
	raw := strings.ToUpper(strings.TrimSpace(string(row.Type)))
	switch {
	case raw == "" || raw == "OPTION":
		row.Type = Unknown
	case strings.Contains(raw, "PUT"):
		row.Type = Put
	case strings.Contains(raw, "CALL"):
		row.Type = Call
	default:
		row.Type = Unknown
	}

	if row.Type != Unknown && row.Strike != 0 && !row.Expiration.IsZero() {
		return
	}
	osi, ok := ParseOSI(row.OSISymbol)
	if !ok {
		return
	}
	if row.Type == Unknown {
		row.Type = osi.Type
	}
	if row.Strike == 0 {
		row.Strike = osi.Strike
	}
	if row.Expiration.IsZero() {
		row.Expiration = osi.Expiration
	}
}

// flipPoint walks strikes ascending, accumulating net GEX, and returns the
// first strike where the running sum crosses sign relative to the previous
// running value.
func flipPoint(byStrike map[float64]float64) FlipPoint {
	strikes := sortedStrikes(byStrike)
	if len(strikes) == 0 {
		return FlipPoint{}
	}

	running := byStrike[strikes[0]]
	prev := running
	for _, s := range strikes[1:] {
		running += byStrike[s]
		if (prev < 0 && running >= 0) || (prev > 0 && running <= 0) {
			return FlipPoint{Strike: s, Valid: true}
		}
		prev = running
	}
	return FlipPoint{}
}

// magnet returns the strike with the largest absolute net GEX and its signed
// strength. Ties keep the lowest strike.
func magnet(byStrike map[float64]float64) (strike, strength float64) {
	first := true
	for _, s := range sortedStrikes(byStrike) {
		v := byStrike[s]
		if first || math.Abs(v) > math.Abs(strength) {
			strike, strength = s, v
			first = false
		}
	}
	return strike, strength
}

func sortedStrikes(byStrike map[float64]float64) []float64 {
	strikes := make([]float64, 0, len(byStrike))
	for s := range byStrike {
		strikes = append(strikes, s)
	}
	sort.Float64s(strikes)
	return strikes
}
