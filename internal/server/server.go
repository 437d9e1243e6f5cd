// Package server exposes the dashboard HTTP API: health, symbols, the
// market overview, per-symbol dashboard data, Prometheus metrics, and the
// WebSocket event stream.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"gexcompass/internal/compass"
	"gexcompass/internal/metrics"
	"gexcompass/internal/store"
	"gexcompass/internal/ws"
)

// Server holds the handlers' dependencies.
type Server struct {
	store   store.Store
	hub     *ws.Hub
	baskets []compass.Basket
	sens    compass.Sensitivities
	logger  *zap.Logger
}

func NewServer(st store.Store, hub *ws.Hub, baskets []compass.Basket, sens compass.Sensitivities, logger *zap.Logger) *Server {
	if sens == nil {
		sens = compass.DefaultSensitivities()
	}
	return &Server{
		store:   st,
		hub:     hub,
		baskets: baskets,
		sens:    sens,
		logger:  logger,
	}
}

func NewRouter(server *Server, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)
	r.Use(zapLoggerMiddleware(logger))

	r.Get("/healthz", server.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Get("/symbols", server.handleSymbols)
		api.Get("/overview", server.handleOverview)
		api.Get("/dashboard/{symbol}", server.handleDashboard)
	})

	if server.hub != nil {
		r.Get("/ws", server.hub.HandleWS)
	}

	return r
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func zapLoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
			)
			next.ServeHTTP(w, r)
		})
	}
}
