package notify

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"gexcompass/internal/metrics"
	"gexcompass/internal/relay"
)

// RegimeUpdate is the slice of a market update document the monitor reads.
type RegimeUpdate struct {
	Regime     string  `json:"regime"`
	Strategy   string  `json:"strategy"`
	Confidence string  `json:"confidence"`
	XScore     float64 `json:"x_score"`
	YScore     float64 `json:"y_score"`
}

// Monitor watches the relay event stream and notifies on state changes.
// Regime updates arrive every cycle, so the monitor keeps the last seen
// regime text and only fires when it differs; the first update primes the
// baseline silently. Magnet events are already change-filtered upstream
// and pass straight through.
type Monitor struct {
	notifier Notifier
	logger   *zap.Logger

	mu         sync.Mutex
	lastRegime string
	primed     bool
}

func NewMonitor(n Notifier, logger *zap.Logger) *Monitor {
	return &Monitor{notifier: n, logger: logger}
}

// ObserveUpdate inspects one market update document and sends a regime
// change notification when the regime text moved.
func (m *Monitor) ObserveUpdate(ctx context.Context, doc []byte) {
	var upd RegimeUpdate
	if err := json.Unmarshal(doc, &upd); err != nil {
		m.logger.Warn("unparseable market update", zap.Error(err))
		return
	}
	if upd.Regime == "" {
		return
	}

	m.mu.Lock()
	prev, primed := m.lastRegime, m.primed
	m.lastRegime, m.primed = upd.Regime, true
	m.mu.Unlock()

	if !primed || prev == upd.Regime {
		return
	}

	m.logger.Info("regime changed",
		zap.String("from", prev),
		zap.String("to", upd.Regime),
	)
	if err := m.notifier.SendRegimeChange(ctx, prev, upd); err != nil {
		m.logger.Warn("regime notification failed", zap.Error(err))
		return
	}
	metrics.RecordNotification("regime")
}

// ObserveMagnet inspects one magnet change document and forwards it.
func (m *Monitor) ObserveMagnet(ctx context.Context, doc []byte) {
	var ev relay.MagnetChange
	if err := json.Unmarshal(doc, &ev); err != nil {
		m.logger.Warn("unparseable magnet event", zap.Error(err))
		return
	}
	if ev.Symbol == "" {
		return
	}

	if err := m.notifier.SendMagnetMove(ctx, ev); err != nil {
		m.logger.Warn("magnet notification failed", zap.Error(err))
		return
	}
	metrics.RecordNotification("magnet")
}
