// Package pipeline drives the collection cycle: fetch each symbol's chain,
// aggregate, persist, announce per-symbol events, classify basket regimes,
// and hand the combined market document to downstream consumers.
package pipeline

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"gexcompass/internal/broadcast"
	"gexcompass/internal/chain"
	"gexcompass/internal/compass"
	"gexcompass/internal/gex"
	"gexcompass/internal/metrics"
	"gexcompass/internal/relay"
	"gexcompass/internal/store"
)

// pruneInterval bounds how often expired history is deleted.
const pruneInterval = time.Hour

// EventSink receives fire-and-forget pipeline events. *relay.Producer
// satisfies it.
type EventSink interface {
	Send(eventType string, body any)
}

// Options configures a Driver.
type Options struct {
	// Symbols collected each cycle. Empty derives the union of all basket
	// weights.
	Symbols []string

	// Baskets evaluated each cycle. The first one feeds the broadcast
	// document.
	Baskets []compass.Basket

	Sensitivities compass.Sensitivities

	// ReferenceSymbols fixes which spot/flip/net GEX triples appear in the
	// broadcast document. Defaults to Symbols.
	ReferenceSymbols []string

	// LevelSymbols get gamma level arrays in the broadcast document.
	// Defaults to ReferenceSymbols.
	LevelSymbols []string

	// LevelsPerSide is the number of strikes kept on each side of spot.
	LevelsPerSide int

	// Retention bounds stored history; zero disables pruning.
	Retention time.Duration
}

// Driver runs collection cycles. Not safe for concurrent cycles; the
// scheduler calls RunCycle sequentially.
type Driver struct {
	source chain.Source
	store  store.Store
	events EventSink
	opts   Options
	logger *zap.Logger

	lastPrune time.Time
}

func New(source chain.Source, st store.Store, events EventSink, opts Options, logger *zap.Logger) *Driver {
	if len(opts.Symbols) == 0 {
		opts.Symbols = symbolUnion(opts.Baskets)
	}
	if opts.Sensitivities == nil {
		opts.Sensitivities = compass.DefaultSensitivities()
	}
	if len(opts.ReferenceSymbols) == 0 {
		opts.ReferenceSymbols = opts.Symbols
	}
	if len(opts.LevelSymbols) == 0 {
		opts.LevelSymbols = opts.ReferenceSymbols
	}
	if opts.LevelsPerSide <= 0 {
		opts.LevelsPerSide = 10
	}

	return &Driver{
		source: source,
		store:  st,
		events: events,
		opts:   opts,
		logger: logger,
	}
}

// RunCycle executes one collection pass. Per-symbol failures skip that
// symbol; the cycle always classifies and broadcasts whatever it gathered.
func (d *Driver) RunCycle(ctx context.Context) error {
	start := time.Now()
	now := start.UTC()

	snaps := make(map[string]gex.SymbolAggregate, len(d.opts.Symbols))
	for _, symbol := range d.opts.Symbols {
		if agg, ok := d.collect(ctx, symbol, now); ok {
			snaps[symbol] = agg
		}
	}
	if len(snaps) == 0 {
		d.logger.Warn("cycle collected no symbols")
	}

	states := make([]compass.State, 0, len(d.opts.Baskets))
	for _, basket := range d.opts.Baskets {
		st := compass.Evaluate(basket, snaps, d.opts.Sensitivities, now)
		d.logger.Info("basket classified",
			zap.String("basket", basket.Name),
			zap.String("label", st.Label),
			zap.Float64("x", st.XScore),
			zap.Float64("y", st.YScore),
			zap.Float64("magnitude", st.Magnitude),
		)
		metrics.RecordRegime(basket.Name, broadcast.RegimeCode(st.Label), st.Magnitude)
		states = append(states, st)
	}

	if len(states) > 0 {
		merged := compass.Merge(states...)
		levels := d.gammaLevels(ctx, snaps)
		msg := broadcast.BuildRegimeMessage(states[0], merged, d.opts.ReferenceSymbols, levels, now)
		d.events.Send(relay.TypeMarketUpdate, msg)
	}

	d.maybePrune(ctx, now)
	metrics.ObserveCycle(time.Since(start))
	return ctx.Err()
}

// collect fetches, aggregates, persists and announces one symbol. The
// returned aggregate is usable even when persistence failed; ok is false
// only when no usable chain data arrived.
func (d *Driver) collect(ctx context.Context, symbol string, now time.Time) (gex.SymbolAggregate, bool) {
	snap, err := d.source.Snapshot(ctx, symbol)
	if err != nil {
		metrics.RecordFetchError(symbol)
		d.logger.Warn("chain fetch failed", zap.String("symbol", symbol), zap.Error(err))
		return gex.SymbolAggregate{}, false
	}

	agg, rows := gex.Aggregate(symbol, snap.Spot, snap.Rows, now)
	if agg.Contracts == 0 {
		d.logger.Warn("no eligible contracts", zap.String("symbol", symbol))
		return gex.SymbolAggregate{}, false
	}

	prev, err := d.store.LatestAggregate(ctx, symbol)
	if err != nil {
		d.logger.Warn("previous aggregate lookup failed",
			zap.String("symbol", symbol), zap.Error(err))
	}

	if err := d.store.SaveSnapshot(ctx, agg, rows); err != nil {
		metrics.RecordStoreError()
		d.logger.Error("snapshot save failed", zap.String("symbol", symbol), zap.Error(err))
	} else {
		d.logger.Info("snapshot saved",
			zap.String("symbol", symbol),
			zap.Int("contracts", agg.Contracts),
			zap.Float64("net_gex", agg.NetGEX),
		)
	}

	ts := now.Format(time.RFC3339)
	d.events.Send(relay.TypeDataRefresh, relay.DataRefresh{Symbol: symbol, Timestamp: ts})

	// A magnet event needs a previous snapshot with a real magnet; the
	// first cycle for a symbol primes silently.
	if prev != nil && prev.MagnetStrike != 0 && agg.MagnetStrike != prev.MagnetStrike {
		d.logger.Info("magnet change",
			zap.String("symbol", symbol),
			zap.Float64("from", prev.MagnetStrike),
			zap.Float64("to", agg.MagnetStrike),
		)
		d.events.Send(relay.TypeMagnetChange, relay.MagnetChange{
			Symbol:    symbol,
			OldMagnet: prev.MagnetStrike,
			NewMagnet: agg.MagnetStrike,
			Strength:  agg.MagnetStrength,
			Timestamp: ts,
		})
	}

	flip := 0.0
	if agg.Flip.Valid {
		flip = agg.Flip.Strike
	}
	metrics.RecordSnapshot(symbol, agg.Spot, agg.NetGEX, flip, agg.Contracts)

	return agg, true
}

// gammaLevels queries the per-strike sums for each configured level symbol
// at its own snapshot timestamp. Symbols without a snapshot this cycle, or
// whose query fails, still get an entry so the broadcast keys stay stable.
func (d *Driver) gammaLevels(ctx context.Context, snaps map[string]gex.SymbolAggregate) map[string][]broadcast.GammaLevel {
	out := make(map[string][]broadcast.GammaLevel, len(d.opts.LevelSymbols))
	for _, symbol := range d.opts.LevelSymbols {
		out[symbol] = []broadcast.GammaLevel{}

		snap, ok := snaps[symbol]
		if !ok {
			continue
		}
		rows, err := d.store.GammaLevels(ctx, symbol, snap.ObservedAt, snap.Spot, d.opts.LevelsPerSide)
		if err != nil {
			d.logger.Warn("gamma level query failed",
				zap.String("symbol", symbol), zap.Error(err))
			continue
		}

		levels := make([]broadcast.GammaLevel, 0, len(rows))
		for _, row := range rows {
			levels = append(levels, broadcast.NewGammaLevel(row.Strike, row.GEX))
		}
		out[symbol] = levels
	}
	return out
}

// maybePrune deletes expired history at most once per pruneInterval.
func (d *Driver) maybePrune(ctx context.Context, now time.Time) {
	if d.opts.Retention <= 0 || now.Sub(d.lastPrune) < pruneInterval {
		return
	}
	d.lastPrune = now

	removed, err := d.store.PruneBefore(ctx, now.Add(-d.opts.Retention))
	if err != nil {
		d.logger.Warn("prune failed", zap.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Info("pruned expired records", zap.Int64("removed", removed))
	}
}

func symbolUnion(baskets []compass.Basket) []string {
	seen := make(map[string]bool)
	var out []string
	for _, b := range baskets {
		for s := range b.Weights {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}
