package chain

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"gexcompass/internal/gex"
)

// HTTPSource fetches chain documents from a vendor endpoint. One rate
// limiter covers all symbols so the per-cycle symbol loop cannot exceed the
// vendor's request budget.
type HTTPSource struct {
	client  *http.Client
	baseURL string
	apiKey  string
	band    float64
	limiter *rate.Limiter
	logger  *zap.Logger
}

var _ Source = (*HTTPSource)(nil)

func NewHTTPSource(baseURL, apiKey string, ratePerSec int, timeout time.Duration, band float64, logger *zap.Logger) *HTTPSource {
	transport := &http.Transport{
		MaxIdleConns:    100,
		MaxConnsPerHost: 10,
		IdleConnTimeout: 90 * time.Second,
	}

	if ratePerSec <= 0 {
		ratePerSec = 2
	}
	if band <= 0 {
		band = gex.StrikeBand
	}

	return &HTTPSource{
		client: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		band:    band,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec*2),
		logger:  logger,
	}
}

// Fetch returns the symbol's raw chain document. Failures are returned to
// the caller, never retried.
func (s *HTTPSource) Fetch(ctx context.Context, symbol string) ([]byte, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	url := fmt.Sprintf("%s/chains/%s", s.baseURL, symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching chain: %w", err)
	}

	body, readErr := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if readErr != nil {
		return nil, fmt.Errorf("reading chain response: %w", readErr)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: %s", ErrNoData, symbol)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// Snapshot fetches and decodes the symbol's chain.
func (s *HTTPSource) Snapshot(ctx context.Context, symbol string) (*Snapshot, error) {
	body, err := s.Fetch(ctx, symbol)
	if err != nil {
		return nil, err
	}

	snap, err := Decode(symbol, body)
	if err != nil {
		return nil, err
	}

	total := len(snap.Rows)
	snap.Rows = BandFilter(snap.Rows, snap.Spot, s.band)
	s.logger.Debug("chain fetched",
		zap.String("symbol", symbol),
		zap.Float64("spot", snap.Spot),
		zap.Int("rows", total),
		zap.Int("in_band", len(snap.Rows)))

	return snap, nil
}
