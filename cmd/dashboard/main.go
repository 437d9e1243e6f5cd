package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"gexcompass/internal/broadcast"
	"gexcompass/internal/config"
	"gexcompass/internal/metrics"
	"gexcompass/internal/notify"
	"gexcompass/internal/relay"
	"gexcompass/internal/server"
	"gexcompass/internal/store"
	"gexcompass/internal/ws"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfgFile := flag.String("config", os.Getenv("GEXCOMPASS_CONFIG"), "config file path (or set GEXCOMPASS_CONFIG)")
	verbose := flag.Bool("verbose", false, "verbose output")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger, err := setupLogger(*verbose, &cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("relay", cfg.Relay.Addr),
		zap.String("broadcast", cfg.Broadcast.Addr),
		zap.String("http", cfg.HTTP.Addr),
		zap.Bool("notify", cfg.Notify.Enabled))

	st, err := store.Open(store.Config{
		DSN:             cfg.Storage.DSN,
		MaxOpenConns:    cfg.Storage.MaxOpenConns,
		MaxIdleConns:    cfg.Storage.MaxIdleConns,
		ConnMaxLifetime: cfg.Storage.ConnMaxLifetime(),
		QueryTimeout:    cfg.Storage.QueryTimeout(),
	}, logger)
	if err != nil {
		logger.Error("failed to open store", zap.Error(err))
		return 1
	}
	defer st.Close()

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Either process may start first; schema creation is idempotent.
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", zap.Error(err))
		return 1
	}

	// Browser-facing event hub
	hub := ws.NewHub(logger)
	go hub.Run(ctx)

	// Chart client fan-out
	caster := broadcast.New(cfg.Broadcast.Addr, cfg.Broadcast.WriteTimeout(), logger)
	if err := caster.Listen(); err != nil {
		logger.Error("failed to bind broadcast port", zap.Error(err))
		return 1
	}
	go func() {
		if err := caster.Serve(ctx); err != nil {
			logger.Error("broadcaster stopped", zap.Error(err))
		}
	}()

	monitor := notify.NewMonitor(notify.New(&cfg.Notify, logger), logger)

	// Relay intake from the collector
	relaySrv := relay.NewServer(cfg.Relay.Addr, logger)
	relaySrv.Handle(relay.TypeMarketUpdate, func(evt relay.Event) {
		metrics.RecordRelayEvent(evt.Type)
		if err := caster.Broadcast(json.RawMessage(evt.Body)); err != nil {
			logger.Warn("broadcast failed", zap.Error(err))
		}
		metrics.SetBroadcastClients(caster.ClientCount())
		hub.Publish(evt.Raw)
		monitor.ObserveUpdate(ctx, evt.Body)
	})
	relaySrv.Handle(relay.TypeDataRefresh, func(evt relay.Event) {
		metrics.RecordRelayEvent(evt.Type)
		hub.Publish(evt.Raw)
	})
	relaySrv.Handle(relay.TypeMagnetChange, func(evt relay.Event) {
		metrics.RecordRelayEvent(evt.Type)
		hub.Publish(evt.Raw)
		monitor.ObserveMagnet(ctx, evt.Body)
	})
	if err := relaySrv.Listen(); err != nil {
		logger.Error("failed to bind relay port", zap.Error(err))
		return 1
	}
	go func() {
		if err := relaySrv.Serve(ctx); err != nil {
			logger.Error("relay stopped", zap.Error(err))
		}
	}()

	// HTTP API
	srv := server.NewServer(st, hub, cfg.Compass.CompassBaskets(), cfg.Compass.SensitivityMap(), logger)
	router := server.NewRouter(srv, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting http server", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")

	// Cancel context to stop the relay, broadcaster and hub
	cancel()

	// Graceful HTTP server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown error", zap.Error(err))
		return 1
	}

	logger.Info("dashboard stopped")
	return 0
}

func setupLogger(verbose bool, logCfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapConfig zap.Config
	if verbose {
		zapConfig = zap.NewDevelopmentConfig()
	} else {
		zapConfig = zap.NewProductionConfig()
		zapConfig.DisableStacktrace = true
	}

	if logCfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(logCfg.Level)); err == nil {
			zapConfig.Level = zap.NewAtomicLevelAt(level)
		}
	}

	if logCfg.Enabled {
		if err := os.MkdirAll(logCfg.Directory, 0755); err != nil {
			return nil, fmt.Errorf("creating logs directory: %w", err)
		}
		timestamp := time.Now().Format("2006-01-02_15-04-05")
		logFile := filepath.Join(logCfg.Directory, fmt.Sprintf("dashboard_%s.log", timestamp))
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, logFile)
	}

	return zapConfig.Build()
}
