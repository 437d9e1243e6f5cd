// Package chain is the upstream data boundary. It maps heterogeneous
// option-chain documents, fetched from an HTTP vendor or replayed from
// recorded files, into the fixed contract-row shape the aggregation engine
// consumes. All shape tolerance lives here, outside the pure core.
package chain

import (
	"context"

	"gexcompass/internal/gex"
)

// Source yields one chain observation per call for a symbol.
type Source interface {
	Snapshot(ctx context.Context, symbol string) (*Snapshot, error)
}

// Snapshot is one decoded, band-filtered chain observation.
type Snapshot struct {
	Symbol string
	Spot   float64
	Rows   []gex.ContractRow
}

// BandFilter keeps rows whose strike lies within ±band of spot.
func BandFilter(rows []gex.ContractRow, spot, band float64) []gex.ContractRow {
	lower := spot * (1 - band)
	upper := spot * (1 + band)

	kept := make([]gex.ContractRow, 0, len(rows))
	for _, row := range rows {
		if row.Strike >= lower && row.Strike <= upper {
			kept = append(kept, row)
		}
	}
	return kept
}
