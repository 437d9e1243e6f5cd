// Package notify pushes regime changes and magnet moves to an ntfy topic.
package notify

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"gexcompass/internal/compass"
	"gexcompass/internal/relay"
)

// Notifier is the interface for sending market event notifications.
type Notifier interface {
	SendRegimeChange(ctx context.Context, prev string, upd RegimeUpdate) error
	SendMagnetMove(ctx context.Context, ev relay.MagnetChange) error
}

// Client implements the ntfy notification client.
type Client struct {
	httpClient *http.Client
	config     *Config
	logger     *zap.Logger
}

// NewClient creates a new ntfy client.
func NewClient(cfg *Config, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		config: cfg,
		logger: logger,
	}
}

// SendRegimeChange sends a regime change notification. Crash regimes go
// out at high priority regardless of the configured one.
func (c *Client) SendRegimeChange(ctx context.Context, prev string, upd RegimeUpdate) error {
	title := fmt.Sprintf("Regime Change: %s", upd.Regime)
	message := FormatRegimeMessage(prev, upd)
	tags := c.config.Tags + ",compass"

	priority := c.config.Priority
	if strings.Contains(upd.Regime, compass.RegimeCrashFlush) {
		priority = "high"
	}

	return c.send(ctx, title, message, tags, priority)
}

// SendMagnetMove sends a magnet move notification.
func (c *Client) SendMagnetMove(ctx context.Context, ev relay.MagnetChange) error {
	title := fmt.Sprintf("Magnet Move: %s", ev.Symbol)
	message := FormatMagnetMessage(ev)
	tags := c.config.Tags + ",magnet"

	return c.send(ctx, title, message, tags, c.config.Priority)
}

func (c *Client) send(ctx context.Context, title, message, tags, priority string) error {
	url := fmt.Sprintf("%s/%s", strings.TrimSuffix(c.config.Server, "/"), c.config.Topic)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Title", title)
	req.Header.Set("Priority", priority)
	req.Header.Set("Tags", tags)

	if c.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.Token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("failed to send notification", zap.Error(err))
		return fmt.Errorf("sending notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	// Drain response body to allow connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("notification failed",
			zap.Int("status", resp.StatusCode),
			zap.String("url", url),
		)
		return fmt.Errorf("notification failed with status: %d", resp.StatusCode)
	}

	c.logger.Debug("notification sent", zap.String("title", title))
	return nil
}

// NoopNotifier is a no-op implementation for when notifications are disabled.
type NoopNotifier struct{}

// SendRegimeChange is a no-op.
func (n *NoopNotifier) SendRegimeChange(_ context.Context, _ string, _ RegimeUpdate) error {
	return nil
}

// SendMagnetMove is a no-op.
func (n *NoopNotifier) SendMagnetMove(_ context.Context, _ relay.MagnetChange) error {
	return nil
}

// New creates the appropriate notifier based on config.
func New(cfg *Config, logger *zap.Logger) Notifier {
	if !cfg.Enabled {
		return &NoopNotifier{}
	}
	return NewClient(cfg, logger)
}
