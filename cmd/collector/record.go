package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"gexcompass/internal/chain"
)

func recordCmd() *cobra.Command {
	var (
		outDir string
		cycles int
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Capture raw chain documents for later replay",
		Long: `Capture raw upstream chain documents to JSONL files.

Each cycle appends one compacted document per symbol to OUT/SYMBOL.jsonl,
the layout the replay source consumes.

Examples:
  # Capture 30 cycles into data/session
  gexcollector record --cycles 30 --out data/session

  # Capture until interrupted
  gexcollector record --out data/session`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			source := chain.NewHTTPSource(cfg.Source.BaseURL, cfg.Source.APIKey,
				cfg.Source.RatePerSecond, cfg.Source.Timeout(), cfg.Source.StrikeBand, logger)
			symbols := cfg.Compass.SymbolList()

			if err := os.MkdirAll(outDir, 0755); err != nil {
				return fmt.Errorf("creating output directory: %w", err)
			}

			files := make(map[string]*os.File, len(symbols))
			defer func() {
				for _, f := range files {
					_ = f.Close()
				}
			}()
			for _, sym := range symbols {
				path := filepath.Join(outDir, sym+".jsonl")
				f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
				if err != nil {
					return fmt.Errorf("opening %s: %w", path, err)
				}
				files[sym] = f
			}

			logger.Info("recording started",
				zap.Strings("symbols", symbols),
				zap.String("out", outDir),
				zap.Int("cycles", cycles))

			ticker := time.NewTicker(cfg.Schedule.Interval())
			defer ticker.Stop()

			for cycle := 1; cycles <= 0 || cycle <= cycles; cycle++ {
				captured := 0
				for _, sym := range symbols {
					body, err := source.Fetch(ctx, sym)
					if err != nil {
						if ctx.Err() != nil {
							return nil
						}
						logger.Warn("fetch failed", zap.String("symbol", sym), zap.Error(err))
						continue
					}

					var compact bytes.Buffer
					if err := json.Compact(&compact, body); err != nil {
						logger.Warn("skipping malformed document", zap.String("symbol", sym), zap.Error(err))
						continue
					}
					compact.WriteByte('\n')
					if _, err := files[sym].Write(compact.Bytes()); err != nil {
						return fmt.Errorf("writing %s document: %w", sym, err)
					}
					captured++
				}
				logger.Info("cycle recorded", zap.Int("cycle", cycle), zap.Int("documents", captured))

				if cycles > 0 && cycle == cycles {
					break
				}
				select {
				case <-ctx.Done():
					logger.Info("recording interrupted")
					return nil
				case <-ticker.C:
				}
			}

			logger.Info("recording complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "data/replay", "output directory for JSONL files")
	cmd.Flags().IntVar(&cycles, "cycles", 0, "number of cycles to capture (0 = until interrupted)")

	return cmd
}
