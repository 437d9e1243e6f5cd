// Package relay is the at-most-once message path between the collector and
// the dashboard process: one JSON document per connection, accepted and
// dispatched strictly sequentially.
package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"go.uber.org/zap"
)

// Event types on the relay wire.
const (
	TypeDataRefresh  = "data_refresh"
	TypeMagnetChange = "magnet_change"
	TypeMarketUpdate = "MARKET_UPDATE"
)

const (
	// maxMessageBytes bounds a single relay document.
	maxMessageBytes = 1 << 20
	readTimeout     = 10 * time.Second
)

// Event is one parsed relay message. Body is the envelope's data/payload
// object; Raw is the envelope exactly as received, for verbatim forwarding.
type Event struct {
	Type string
	Body json.RawMessage
	Raw  []byte
}

// HandlerFunc processes one dispatched event. Handlers run inline on the
// accept loop, so they must return promptly.
type HandlerFunc func(Event)

type envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data"`
	Payload json.RawMessage `json:"payload"`
}

// Server accepts producer connections one at a time, reads each to EOF,
// and dispatches the parsed document to the handler registered for its
// type. Producers are trusted local processes emitting infrequent events,
// so the sequential loop is sufficient by construction.
type Server struct {
	addr     string
	handlers map[string]HandlerFunc
	listener net.Listener
	logger   *zap.Logger
}

func NewServer(addr string, logger *zap.Logger) *Server {
	return &Server{
		addr:     addr,
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}
}

// Handle registers the handler for an event type. Registration must finish
// before Serve starts; there is no lock on the handler table.
func (s *Server) Handle(eventType string, fn HandlerFunc) {
	s.handlers[eventType] = fn
}

// Listen binds the relay port. Calling it before Serve lets tests bind
// port 0 and read the assigned address.
func (s *Server) Listen() error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	return nil
}

// Addr reports the bound address. Only valid after Listen.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Serve runs the accept loop until the context is canceled.
func (s *Server) Serve(ctx context.Context) error {
	if s.listener == nil {
		if err := s.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	s.logger.Info("relay listening", zap.String("addr", s.Addr()))

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn("relay accept failed", zap.Error(err))
			continue
		}
		s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	raw, err := io.ReadAll(io.LimitReader(conn, maxMessageBytes))
	if err != nil {
		s.logger.Warn("relay read failed", zap.Error(err))
		return
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		s.logger.Warn("relay message is not valid JSON", zap.Int("bytes", len(raw)), zap.Error(err))
		return
	}

	body := env.Data
	if len(body) == 0 {
		body = env.Payload
	}

	handler, ok := s.handlers[env.Type]
	if !ok {
		s.logger.Debug("relay event has no handler", zap.String("type", env.Type))
		return
	}
	handler(Event{Type: env.Type, Body: body, Raw: raw})
}
