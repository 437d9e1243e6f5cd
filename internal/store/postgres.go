package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
	"go.uber.org/zap"

	"gexcompass/internal/gex"
)

// Config holds the connection pool settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// Postgres implements Store on a Postgres database.
type Postgres struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  *zap.Logger
}

var _ Store = (*Postgres)(nil)

// Open connects, configures the pool and verifies connectivity.
func Open(cfg Config, logger *zap.Logger) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}

	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Postgres{db: db, timeout: timeout, logger: logger}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS contract_rows (
	id               BIGSERIAL PRIMARY KEY,
	symbol           TEXT NOT NULL,
	osi_symbol       TEXT,
	expiration_date  TIMESTAMPTZ,
	strike_price     DOUBLE PRECISION NOT NULL,
	option_type      TEXT NOT NULL,
	open_interest    BIGINT NOT NULL,
	delta            DOUBLE PRECISION NOT NULL DEFAULT 0,
	gamma            DOUBLE PRECISION NOT NULL DEFAULT 0,
	theta            DOUBLE PRECISION NOT NULL DEFAULT 0,
	underlying_price DOUBLE PRECISION NOT NULL,
	gex_value        DOUBLE PRECISION NOT NULL,
	observed_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS contract_rows_symbol_observed_idx
	ON contract_rows (symbol, observed_at);

CREATE TABLE IF NOT EXISTS symbol_aggregates (
	id                  BIGSERIAL PRIMARY KEY,
	symbol              TEXT NOT NULL,
	observed_at         TIMESTAMPTZ NOT NULL,
	spot_price          DOUBLE PRECISION NOT NULL,
	total_net_gex       DOUBLE PRECISION NOT NULL,
	total_call_gex      DOUBLE PRECISION NOT NULL,
	total_put_gex       DOUBLE PRECISION NOT NULL,
	max_call_gex_strike DOUBLE PRECISION NOT NULL,
	max_put_gex_strike  DOUBLE PRECISION NOT NULL,
	flip_strike         DOUBLE PRECISION,
	effective_gex       DOUBLE PRECISION NOT NULL,
	magnet_strike       DOUBLE PRECISION NOT NULL,
	magnet_strength     DOUBLE PRECISION NOT NULL,
	total_gamma         DOUBLE PRECISION NOT NULL,
	total_theta         DOUBLE PRECISION NOT NULL,
	contracts           INTEGER NOT NULL,
	UNIQUE (symbol, observed_at)
);
CREATE INDEX IF NOT EXISTS symbol_aggregates_symbol_observed_idx
	ON symbol_aggregates (symbol, observed_at DESC);
`

// EnsureSchema creates the tables and indexes if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (p *Postgres) SaveSnapshot(ctx context.Context, agg gex.SymbolAggregate, rows []gex.ContractRow) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO symbol_aggregates (
			symbol, observed_at, spot_price, total_net_gex, total_call_gex,
			total_put_gex, max_call_gex_strike, max_put_gex_strike, flip_strike,
			effective_gex, magnet_strike, magnet_strength, total_gamma,
			total_theta, contracts
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		agg.Symbol, agg.ObservedAt, agg.Spot, agg.NetGEX, agg.CallGEX,
		agg.PutGEX, agg.MaxCallStrike, agg.MaxPutStrike, nullFlip(agg.Flip),
		agg.EffectiveGEX, agg.MagnetStrike, agg.MagnetStrength, agg.TotalGamma,
		agg.TotalTheta, agg.Contracts)
	if err != nil {
		return fmt.Errorf("inserting aggregate: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO contract_rows (
			symbol, osi_symbol, expiration_date, strike_price, option_type,
			open_interest, delta, gamma, theta, underlying_price, gex_value,
			observed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`)
	if err != nil {
		return fmt.Errorf("preparing row insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx,
			row.Symbol, row.OSISymbol, nullTime(row.Expiration), row.Strike,
			string(row.Type), row.OpenInterest, row.Delta, row.Gamma, row.Theta,
			row.Underlying, row.GEX, row.ObservedAt)
		if err != nil {
			return fmt.Errorf("inserting contract row: %w", err)
		}
	}

	return tx.Commit()
}

const aggregateColumns = `
	symbol, observed_at, spot_price, total_net_gex, total_call_gex,
	total_put_gex, max_call_gex_strike, max_put_gex_strike, flip_strike,
	effective_gex, magnet_strike, magnet_strength, total_gamma, total_theta,
	contracts`

func (p *Postgres) LatestAggregate(ctx context.Context, symbol string) (*gex.SymbolAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var row aggRow
	err := p.db.GetContext(ctx, &row, `
		SELECT `+aggregateColumns+`
		FROM symbol_aggregates
		WHERE symbol = $1
		ORDER BY observed_at DESC
		LIMIT 1`, symbol)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying latest aggregate: %w", err)
	}

	agg := row.toAggregate()
	return &agg, nil
}

func (p *Postgres) LatestAggregates(ctx context.Context) ([]gex.SymbolAggregate, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var rows []aggRow
	err := p.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (symbol) `+aggregateColumns+`
		FROM symbol_aggregates
		ORDER BY symbol, observed_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("querying latest aggregates: %w", err)
	}

	aggs := make([]gex.SymbolAggregate, 0, len(rows))
	for _, row := range rows {
		aggs = append(aggs, row.toAggregate())
	}
	return aggs, nil
}

func (p *Postgres) History(ctx context.Context, symbol string, limit int) ([]HistoryPoint, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var points []HistoryPoint
	err := p.db.SelectContext(ctx, &points, `
		SELECT observed_at, total_net_gex, spot_price
		FROM symbol_aggregates
		WHERE symbol = $1
		ORDER BY observed_at ASC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	return points, nil
}

func (p *Postgres) Profile(ctx context.Context, symbol string, at time.Time) ([]ProfileRow, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var profile []ProfileRow
	err := p.db.SelectContext(ctx, &profile, `
		SELECT strike_price, option_type, gex_value, open_interest
		FROM contract_rows
		WHERE symbol = $1 AND observed_at = $2
		ORDER BY strike_price ASC`, symbol, at)
	if err != nil {
		return nil, fmt.Errorf("querying profile: %w", err)
	}
	return profile, nil
}

func (p *Postgres) GammaLevels(ctx context.Context, symbol string, at time.Time, spot float64, perSide int) ([]Level, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var below []Level
	err := p.db.SelectContext(ctx, &below, `
		SELECT strike_price, SUM(gex_value) AS gex
		FROM contract_rows
		WHERE symbol = $1 AND observed_at = $2 AND strike_price < $3
		GROUP BY strike_price
		ORDER BY strike_price DESC
		LIMIT $4`, symbol, at, spot, perSide)
	if err != nil {
		return nil, fmt.Errorf("querying levels below spot: %w", err)
	}

	var above []Level
	err = p.db.SelectContext(ctx, &above, `
		SELECT strike_price, SUM(gex_value) AS gex
		FROM contract_rows
		WHERE symbol = $1 AND observed_at = $2 AND strike_price >= $3
		GROUP BY strike_price
		ORDER BY strike_price ASC
		LIMIT $4`, symbol, at, spot, perSide)
	if err != nil {
		return nil, fmt.Errorf("querying levels above spot: %w", err)
	}

	return append(below, above...), nil
}

func (p *Postgres) Symbols(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var symbols []string
	err := p.db.SelectContext(ctx, &symbols, `
		SELECT DISTINCT symbol FROM symbol_aggregates ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}
	return symbols, nil
}

func (p *Postgres) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	var total int64
	res, err := p.db.ExecContext(ctx, `DELETE FROM contract_rows WHERE observed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning contract rows: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	res, err = p.db.ExecContext(ctx, `DELETE FROM symbol_aggregates WHERE observed_at < $1`, cutoff)
	if err != nil {
		return total, fmt.Errorf("pruning aggregates: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		total += n
	}

	return total, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

// aggRow is the scan target for symbol_aggregates; flip_strike is nullable.
type aggRow struct {
	Symbol         string          `db:"symbol"`
	ObservedAt     time.Time       `db:"observed_at"`
	Spot           float64         `db:"spot_price"`
	NetGEX         float64         `db:"total_net_gex"`
	CallGEX        float64         `db:"total_call_gex"`
	PutGEX         float64         `db:"total_put_gex"`
	MaxCallStrike  float64         `db:"max_call_gex_strike"`
	MaxPutStrike   float64         `db:"max_put_gex_strike"`
	Flip           sql.NullFloat64 `db:"flip_strike"`
	EffectiveGEX   float64         `db:"effective_gex"`
	MagnetStrike   float64         `db:"magnet_strike"`
	MagnetStrength float64         `db:"magnet_strength"`
	TotalGamma     float64         `db:"total_gamma"`
	TotalTheta     float64         `db:"total_theta"`
	Contracts      int             `db:"contracts"`
}

func (r aggRow) toAggregate() gex.SymbolAggregate {
	agg := gex.SymbolAggregate{
		Symbol:         r.Symbol,
		ObservedAt:     r.ObservedAt,
		Spot:           r.Spot,
		NetGEX:         r.NetGEX,
		CallGEX:        r.CallGEX,
		PutGEX:         r.PutGEX,
		MaxCallStrike:  r.MaxCallStrike,
		MaxPutStrike:   r.MaxPutStrike,
		EffectiveGEX:   r.EffectiveGEX,
		MagnetStrike:   r.MagnetStrike,
		MagnetStrength: r.MagnetStrength,
		TotalGamma:     r.TotalGamma,
		TotalTheta:     r.TotalTheta,
		Contracts:      r.Contracts,
	}
	if r.Flip.Valid {
		agg.Flip = gex.FlipPoint{Strike: r.Flip.Float64, Valid: true}
	}
	return agg
}

func nullFlip(f gex.FlipPoint) any {
	if !f.Valid {
		return nil
	}
	return f.Strike
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
