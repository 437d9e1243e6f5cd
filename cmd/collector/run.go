package main

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gexcompass/internal/chain"
	"gexcompass/internal/config"
	"gexcompass/internal/metrics"
	"gexcompass/internal/pipeline"
	"gexcompass/internal/relay"
	"gexcompass/internal/store"
)

func buildSource(cfg *config.Config, logger *zap.Logger) chain.Source {
	if cfg.Source.Mode == "replay" {
		return chain.NewReplaySource(cfg.Source.ReplayDir, cfg.Source.StrikeBand, cfg.Source.ReplayLoop, logger)
	}
	return chain.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.APIKey, cfg.Source.RatePerSecond,
		cfg.Source.Timeout(), cfg.Source.StrikeBand, logger)
}

func openStore(c *config.Config, logger *zap.Logger) (*store.Postgres, error) {
	return store.Open(store.Config{
		DSN:             c.Storage.DSN,
		MaxOpenConns:    c.Storage.MaxOpenConns,
		MaxIdleConns:    c.Storage.MaxIdleConns,
		ConnMaxLifetime: c.Storage.ConnMaxLifetime(),
		QueryTimeout:    c.Storage.QueryTimeout(),
	}, logger)
}

func buildDriver(c *config.Config, source chain.Source, st store.Store, logger *zap.Logger) *pipeline.Driver {
	producer := relay.NewProducer(c.Relay.Addr, c.Relay.Timeout(), logger)
	return pipeline.New(source, st, producer, pipeline.Options{
		Symbols:          c.Compass.SymbolList(),
		Baskets:          c.Compass.CompassBaskets(),
		Sensitivities:    c.Compass.SensitivityMap(),
		ReferenceSymbols: c.Compass.ReferenceSymbols,
		LevelSymbols:     c.Compass.LevelSymbols,
		LevelsPerSide:    c.Compass.LevelsPerSide,
		Retention:        c.Storage.Retention(),
	}, logger)
}

func runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the collection daemon",
		Long: `Run collection cycles on the configured interval.

Cycles are gated to exchange business days and the configured session
window unless schedule.enabled is false. Each cycle fetches every tracked
chain, persists the aggregates, and publishes relay events.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}

			source := buildSource(cfg, logger)
			if closer, ok := source.(io.Closer); ok {
				defer func() { _ = closer.Close() }()
			}

			sched, err := NewScheduler(cfg.Schedule)
			if err != nil {
				return err
			}

			driver := buildDriver(cfg, source, st, logger)

			// Prometheus listener for this process
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			metricsSrv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
			go func() {
				if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Warn("metrics listener failed", zap.Error(err))
				}
			}()
			defer func() { _ = metricsSrv.Close() }()

			logger.Info("collector started",
				zap.String("mode", cfg.Source.Mode),
				zap.Strings("symbols", cfg.Compass.SymbolList()),
				zap.Duration("interval", cfg.Schedule.Interval()),
				zap.Bool("schedule_gating", cfg.Schedule.Enabled))

			cycle := func() {
				if !sched.ShouldRun(time.Now()) {
					logger.Debug("outside trading session, skipping cycle")
					return
				}
				if err := driver.RunCycle(ctx); err != nil && ctx.Err() == nil {
					logger.Error("cycle failed", zap.Error(err))
				}
			}

			cycle()
			ticker := time.NewTicker(cfg.Schedule.Interval())
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					logger.Info("shutting down")
					return nil
				case <-ticker.C:
					cycle()
				}
			}
		},
	}
	return cmd
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run exactly one collection cycle, ignoring the schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			st, err := openStore(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()
			if err := st.EnsureSchema(ctx); err != nil {
				return err
			}

			source := buildSource(cfg, logger)
			if closer, ok := source.(io.Closer); ok {
				defer func() { _ = closer.Close() }()
			}

			return buildDriver(cfg, source, st, logger).RunCycle(ctx)
		},
	}
}
