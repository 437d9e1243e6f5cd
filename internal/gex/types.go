// Package gex computes gamma-exposure aggregates from per-contract option
// data. Everything here is pure: a batch of contract observations for one
// symbol goes in, the per-cycle metrics (net/call/put GEX, gamma flip,
// magnet, effective GEX) come out. No I/O.
package gex

import (
	"encoding/json"
	"time"
)

// OptionType partitions contracts for GEX accounting.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
	// Unknown marks contracts whose type could not be resolved from either
	// the explicit field or the OSI symbol. They count toward net GEX only,
	// never toward the call/put buckets.
	Unknown OptionType = "UNKNOWN"
)

// ContractRow is one option contract observation within a collection cycle.
// Rows are immutable once produced and persisted keyed by (symbol, observed
// timestamp).
type ContractRow struct {
	Symbol       string     `json:"symbol"`
	Expiration   time.Time  `json:"expiration_date"`
	OSISymbol    string     `json:"osi_symbol"`
	Strike       float64    `json:"strike_price"`
	Type         OptionType `json:"option_type"`
	OpenInterest int64      `json:"open_interest"`
	Delta        float64    `json:"delta"`
	Gamma        float64    `json:"gamma"`
	Theta        float64    `json:"theta"`
	Underlying   float64    `json:"underlying_price"`
	GEX          float64    `json:"gex_value"`
	ObservedAt   time.Time  `json:"timestamp"`
}

// FlipPoint is the strike at which cumulative net GEX changes sign. Valid is
// false when no sign change occurred, which is distinct from a flip at
// strike zero.
type FlipPoint struct {
	Strike float64
	Valid  bool
}

// MarshalJSON encodes a missing flip as null so it can never be confused
// with a real flip strike.
func (f FlipPoint) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Strike)
}

// UnmarshalJSON accepts either null or a number.
func (f *FlipPoint) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = FlipPoint{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = FlipPoint{Strike: v, Valid: true}
	return nil
}

// SymbolAggregate holds the derived metrics for one (symbol, timestamp).
// Aggregates are never updated in place; the next cycle supersedes them.
type SymbolAggregate struct {
	Symbol         string    `json:"symbol"`
	ObservedAt     time.Time `json:"timestamp"`
	Spot           float64   `json:"spot_price"`
	NetGEX         float64   `json:"total_net_gex"`
	CallGEX        float64   `json:"total_call_gex"`
	PutGEX         float64   `json:"total_put_gex"`
	MaxCallStrike  float64   `json:"max_call_gex_strike"`
	MaxPutStrike   float64   `json:"max_put_gex_strike"`
	Flip           FlipPoint `json:"flip_strike"`
	EffectiveGEX   float64   `json:"effective_gex"`
	MagnetStrike   float64   `json:"magnet_strike"`
	MagnetStrength float64   `json:"magnet_strength"`
	TotalGamma     float64   `json:"total_gamma"`
	TotalTheta     float64   `json:"total_theta"`
	Contracts      int       `json:"contracts"`
}
