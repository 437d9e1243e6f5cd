package relay

import (
	"encoding/json"
	"net"
	"time"

	"go.uber.org/zap"
)

// Producer sends fire-and-forget events to a relay server: a fresh
// connection per event, one document, close. Every failure is logged and
// the event dropped; the consumer may simply not be running yet.
type Producer struct {
	addr    string
	timeout time.Duration
	logger  *zap.Logger
}

func NewProducer(addr string, timeout time.Duration, logger *zap.Logger) *Producer {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Producer{addr: addr, timeout: timeout, logger: logger}
}

// Send writes one event envelope. It never returns an error and never
// blocks past the dial/write timeout.
func (p *Producer) Send(eventType string, body any) {
	env := map[string]any{"type": eventType}
	env[envelopeKey(eventType)] = body

	doc, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("relay event not serializable",
			zap.String("type", eventType), zap.Error(err))
		return
	}

	conn, err := net.DialTimeout("tcp", p.addr, p.timeout)
	if err != nil {
		p.logger.Debug("relay consumer unavailable, dropping event",
			zap.String("type", eventType), zap.Error(err))
		return
	}
	defer conn.Close()

	_ = conn.SetWriteDeadline(time.Now().Add(p.timeout))
	if _, err := conn.Write(doc); err != nil {
		p.logger.Warn("relay write failed",
			zap.String("type", eventType), zap.Error(err))
	}
}

// envelopeKey preserves the historical wire contract: market updates ride
// under "data", every other event type under "payload".
func envelopeKey(eventType string) string {
	if eventType == TypeMarketUpdate {
		return "data"
	}
	return "payload"
}
