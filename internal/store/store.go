// Package store persists contract rows and symbol aggregates to Postgres
// and serves the queries behind the dashboard API and the broadcast gamma
// levels.
package store

import (
	"context"
	"time"

	"gexcompass/internal/gex"
)

// Store is the persistence surface used by the pipeline driver and the
// dashboard server.
type Store interface {
	// SaveSnapshot writes one cycle's aggregate and its contract rows
	// atomically.
	SaveSnapshot(ctx context.Context, agg gex.SymbolAggregate, rows []gex.ContractRow) error

	// LatestAggregate returns the most recent aggregate for the symbol, or
	// (nil, nil) when none has been persisted.
	LatestAggregate(ctx context.Context, symbol string) (*gex.SymbolAggregate, error)

	// LatestAggregates returns the most recent aggregate per symbol.
	LatestAggregates(ctx context.Context) ([]gex.SymbolAggregate, error)

	// History returns up to limit net-GEX/spot observations for the symbol,
	// oldest first.
	History(ctx context.Context, symbol string, limit int) ([]HistoryPoint, error)

	// Profile returns the symbol's per-contract rows at the given cycle
	// timestamp, strike ascending.
	Profile(ctx context.Context, symbol string, at time.Time) ([]ProfileRow, error)

	// GammaLevels sums per-strike GEX at the given cycle timestamp and
	// returns perSide strikes strictly below spot (descending) followed by
	// perSide strikes at or above spot (ascending).
	GammaLevels(ctx context.Context, symbol string, at time.Time, spot float64, perSide int) ([]Level, error)

	// Symbols lists the distinct symbols with persisted data.
	Symbols(ctx context.Context) ([]string, error)

	// PruneBefore deletes rows and aggregates observed before cutoff and
	// reports how many records went away.
	PruneBefore(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// HistoryPoint is one net-GEX/spot observation for charting.
type HistoryPoint struct {
	ObservedAt time.Time `db:"observed_at" json:"timestamp"`
	NetGEX     float64   `db:"total_net_gex" json:"total_net_gex"`
	Spot       float64   `db:"spot_price" json:"spot_price"`
}

// ProfileRow is one contract's slice of the strike profile.
type ProfileRow struct {
	Strike       float64 `db:"strike_price" json:"strike_price"`
	Type         string  `db:"option_type" json:"option_type"`
	GEX          float64 `db:"gex_value" json:"gex_value"`
	OpenInterest int64   `db:"open_interest" json:"open_interest"`
}

// Level is one per-strike GEX sum near spot. The support/resistance side is
// assigned at payload build from the sign.
type Level struct {
	Strike float64 `db:"strike_price" json:"strike"`
	GEX    float64 `db:"gex" json:"gex"`
}
