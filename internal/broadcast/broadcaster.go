// Package broadcast fans each cycle's regime document out to every
// connected chart client over persistent TCP, one newline-delimited JSON
// object per broadcast. It also owns the flattened wire payload.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Broadcaster retains client connections and writes the same bytes to all
// of them on each broadcast. Clients are never read; a dead client is
// noticed and pruned on its next failed write. One instance per process,
// constructed and owned by the entry point.
type Broadcaster struct {
	addr         string
	writeTimeout time.Duration
	logger       *zap.Logger

	listener net.Listener

	mu      sync.Mutex
	clients map[net.Conn]struct{}
}

func New(addr string, writeTimeout time.Duration, logger *zap.Logger) *Broadcaster {
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Broadcaster{
		addr:         addr,
		writeTimeout: writeTimeout,
		logger:       logger,
		clients:      make(map[net.Conn]struct{}),
	}
}

// Listen binds the broadcast port. Calling it before Serve lets tests bind
// port 0 and read the assigned address.
func (b *Broadcaster) Listen() error {
	listener, err := net.Listen("tcp", b.addr)
	if err != nil {
		return err
	}
	b.listener = listener
	return nil
}

// Addr reports the bound address. Only valid after Listen.
func (b *Broadcaster) Addr() string {
	if b.listener == nil {
		return b.addr
	}
	return b.listener.Addr().String()
}

// Serve accepts and registers client connections until the context is
// canceled, then closes every client.
func (b *Broadcaster) Serve(ctx context.Context) error {
	if b.listener == nil {
		if err := b.Listen(); err != nil {
			return err
		}
	}

	go func() {
		<-ctx.Done()
		_ = b.listener.Close()
	}()

	b.logger.Info("broadcaster listening", zap.String("addr", b.Addr()))

	for {
		conn, err := b.listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				b.closeAll()
				return nil
			}
			b.logger.Warn("broadcaster accept failed", zap.Error(err))
			continue
		}

		b.mu.Lock()
		b.clients[conn] = struct{}{}
		count := len(b.clients)
		b.mu.Unlock()

		b.logger.Info("chart client connected",
			zap.String("remote", conn.RemoteAddr().String()),
			zap.Int("clients", count))
	}
}

// Broadcast marshals v once and writes the newline-terminated bytes to
// every client under the registry lock. A write error or deadline breach
// prunes that client after the pass; this is the only place client sockets
// close during normal operation. With no clients connected it is a no-op.
func (b *Broadcaster) Broadcast(v any) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling broadcast payload: %w", err)
	}
	doc = append(doc, '\n')

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.clients) == 0 {
		return nil
	}

	var failed []net.Conn
	for conn := range b.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(b.writeTimeout))
		if _, err := conn.Write(doc); err != nil {
			b.logger.Warn("dropping chart client",
				zap.String("remote", conn.RemoteAddr().String()),
				zap.Error(err))
			failed = append(failed, conn)
		}
	}

	for _, conn := range failed {
		_ = conn.Close()
		delete(b.clients, conn)
	}

	b.logger.Info("broadcast sent", zap.Int("clients", len(b.clients)))
	return nil
}

// ClientCount reports the current registry size.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.clients {
		_ = conn.Close()
	}
	b.clients = make(map[net.Conn]struct{})
}
