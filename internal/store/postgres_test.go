package store

import (
	"database/sql"
	"testing"
	"time"

	"gexcompass/internal/gex"
)

func TestAggRowFlipMapping(t *testing.T) {
	row := aggRow{Symbol: "SPY", Spot: 500, Flip: sql.NullFloat64{Float64: 498.5, Valid: true}}
	agg := row.toAggregate()
	if !agg.Flip.Valid || agg.Flip.Strike != 498.5 {
		t.Errorf("flip = %+v, want valid 498.5", agg.Flip)
	}

	row.Flip = sql.NullFloat64{}
	agg = row.toAggregate()
	if agg.Flip.Valid {
		t.Errorf("null flip_strike mapped to valid flip %+v", agg.Flip)
	}
}

func TestNullHelpers(t *testing.T) {
	if v := nullFlip(gex.FlipPoint{}); v != nil {
		t.Errorf("nullFlip(invalid) = %v, want nil", v)
	}
	if v := nullFlip(gex.FlipPoint{Strike: 500, Valid: true}); v != 500.0 {
		t.Errorf("nullFlip(valid) = %v, want 500", v)
	}

	if v := nullTime(time.Time{}); v != nil {
		t.Errorf("nullTime(zero) = %v, want nil", v)
	}
	when := time.Date(2024, 10, 18, 0, 0, 0, 0, time.UTC)
	if v := nullTime(when); v != when {
		t.Errorf("nullTime(set) = %v, want %v", v, when)
	}
}
