// Package metrics exposes the process's Prometheus instrumentation. All
// collectors are package-level and registered once, so call sites stay
// one-liners and tests can hit the same vars without re-registration
// panics.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gexcompass_cycles_total",
			Help: "Completed pipeline cycles",
		},
	)

	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gexcompass_cycle_duration_seconds",
			Help:    "Wall time of one full fetch-aggregate-classify cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	fetchErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gexcompass_fetch_errors_total",
			Help: "Chain snapshot fetch failures",
		},
		[]string{"symbol"},
	)

	storeErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "gexcompass_store_errors_total",
			Help: "Snapshot persistence failures",
		},
	)

	netGEX = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gexcompass_net_gex",
			Help: "Net GEX of the latest snapshot",
		},
		[]string{"symbol"},
	)

	spotPrice = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gexcompass_spot_price",
			Help: "Spot price of the latest snapshot",
		},
		[]string{"symbol"},
	)

	flipStrike = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gexcompass_flip_strike",
			Help: "Gamma flip strike of the latest snapshot, 0 when none",
		},
		[]string{"symbol"},
	)

	rowsAggregated = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gexcompass_rows_aggregated",
			Help: "Contract rows in the latest snapshot",
		},
		[]string{"symbol"},
	)

	regimeCode = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gexcompass_regime_code",
			Help: "Latest regime code per basket (1 grind, 2 melt, 3 chop, 4 flush)",
		},
		[]string{"basket"},
	)

	regimeMagnitude = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gexcompass_regime_magnitude",
			Help: "Latest compass vector magnitude per basket",
		},
		[]string{"basket"},
	)

	broadcastClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gexcompass_broadcast_clients",
			Help: "Chart clients currently connected to the TCP broadcaster",
		},
	)

	wsClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "gexcompass_ws_clients",
			Help: "WebSocket clients currently connected",
		},
	)

	relayEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gexcompass_relay_events_total",
			Help: "Events received on the relay channel",
		},
		[]string{"type"},
	)

	notificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gexcompass_notifications_total",
			Help: "Push notifications sent",
		},
		[]string{"kind"},
	)

	regOnce sync.Once
)

func register() {
	regOnce.Do(func() {
		prometheus.MustRegister(
			cyclesTotal, cycleDuration,
			fetchErrorsTotal, storeErrorsTotal,
			netGEX, spotPrice, flipStrike, rowsAggregated,
			regimeCode, regimeMagnitude,
			broadcastClients, wsClients,
			relayEventsTotal, notificationsTotal,
		)
	})
}

// Handler returns the scrape endpoint, registering the collectors on first
// use.
func Handler() http.Handler {
	register()
	return promhttp.Handler()
}

// ObserveCycle records one completed pipeline cycle.
func ObserveCycle(d time.Duration) {
	cyclesTotal.Inc()
	cycleDuration.Observe(d.Seconds())
}

func RecordFetchError(symbol string) {
	fetchErrorsTotal.WithLabelValues(symbol).Inc()
}

func RecordStoreError() {
	storeErrorsTotal.Inc()
}

// RecordSnapshot updates the per-symbol gauges from the latest aggregate.
func RecordSnapshot(symbol string, spot, totalNetGEX, flip float64, rows int) {
	spotPrice.WithLabelValues(symbol).Set(spot)
	netGEX.WithLabelValues(symbol).Set(totalNetGEX)
	flipStrike.WithLabelValues(symbol).Set(flip)
	rowsAggregated.WithLabelValues(symbol).Set(float64(rows))
}

// RecordRegime updates the per-basket gauges from the latest compass state.
func RecordRegime(basket string, code int, magnitude float64) {
	regimeCode.WithLabelValues(basket).Set(float64(code))
	regimeMagnitude.WithLabelValues(basket).Set(magnitude)
}

func SetBroadcastClients(n int) {
	broadcastClients.Set(float64(n))
}

func SetWSClients(n int) {
	wsClients.Set(float64(n))
}

func RecordRelayEvent(eventType string) {
	relayEventsTotal.WithLabelValues(eventType).Inc()
}

func RecordNotification(kind string) {
	notificationsTotal.WithLabelValues(kind).Inc()
}
