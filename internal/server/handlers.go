package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"gexcompass/internal/compass"
	"gexcompass/internal/gex"
	"gexcompass/internal/store"
)

// defaultHistoryLimit bounds the dashboard history series when the client
// does not ask for a specific window.
const defaultHistoryLimit = 100

type dashboardResponse struct {
	Snapshot snapshotSummary      `json:"snapshot"`
	Profile  []store.ProfileRow   `json:"profile"`
	History  []store.HistoryPoint `json:"history"`
}

// snapshotSummary is the KPI subset of an aggregate shown on the dashboard
// header.
type snapshotSummary struct {
	Symbol        string  `json:"symbol"`
	Timestamp     string  `json:"timestamp"`
	Spot          float64 `json:"spot_price"`
	NetGEX        float64 `json:"total_net_gex"`
	MaxCallStrike float64 `json:"max_call_gex_strike"`
	MaxPutStrike  float64 `json:"max_put_gex_strike"`
}

// tiltPoint feeds the effective-GEX tilt chart.
type tiltPoint struct {
	Symbol string  `json:"symbol"`
	NetGEX float64 `json:"net_gex"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.store.Symbols(r.Context())
	if err != nil {
		s.logger.Error("symbol query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "symbol query failed")
		return
	}
	if symbols == nil {
		symbols = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// handleOverview classifies every configured basket over the latest stored
// aggregates and returns the compass states, the merged component table,
// and the effective-GEX tilt series.
func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	aggs, err := s.store.LatestAggregates(r.Context())
	if err != nil {
		s.logger.Error("overview query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "overview query failed")
		return
	}

	snaps := make(map[string]gex.SymbolAggregate, len(aggs))
	for _, agg := range aggs {
		snaps[agg.Symbol] = agg
	}

	now := time.Now().UTC()
	out := make(map[string]any, len(s.baskets)+2)
	states := make([]compass.State, 0, len(s.baskets))
	for _, basket := range s.baskets {
		st := compass.Evaluate(basket, snaps, s.sens, now)
		out["compass_"+basket.Name] = st
		states = append(states, st)
	}

	merged := compass.Merge(states...)
	tilt := make([]tiltPoint, 0, len(merged))
	for _, c := range merged {
		tilt = append(tilt, tiltPoint{Symbol: c.Symbol, NetGEX: c.EffectiveGEX})
	}
	out["components"] = merged
	out["tilt"] = tilt

	s.respondJSON(w, http.StatusOK, out)
}

// handleDashboard serves one symbol's latest snapshot KPIs, its strike
// profile at that timestamp, and the net-GEX history series.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	ctx := r.Context()
	agg, err := s.store.LatestAggregate(ctx, symbol)
	if err != nil {
		s.logger.Error("dashboard query failed", zap.String("symbol", symbol), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "dashboard query failed")
		return
	}
	if agg == nil {
		s.respondError(w, http.StatusNotFound, "no data found for "+symbol)
		return
	}

	profile, err := s.store.Profile(ctx, symbol, agg.ObservedAt)
	if err != nil {
		s.logger.Error("profile query failed", zap.String("symbol", symbol), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "profile query failed")
		return
	}
	history, err := s.store.History(ctx, symbol, limit)
	if err != nil {
		s.logger.Error("history query failed", zap.String("symbol", symbol), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "history query failed")
		return
	}

	if profile == nil {
		profile = []store.ProfileRow{}
	}
	if history == nil {
		history = []store.HistoryPoint{}
	}

	s.respondJSON(w, http.StatusOK, dashboardResponse{
		Snapshot: snapshotSummary{
			Symbol:        agg.Symbol,
			Timestamp:     agg.ObservedAt.Format(time.RFC3339),
			Spot:          agg.Spot,
			NetGEX:        agg.NetGEX,
			MaxCallStrike: agg.MaxCallStrike,
			MaxPutStrike:  agg.MaxPutStrike,
		},
		Profile: profile,
		History: history,
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
