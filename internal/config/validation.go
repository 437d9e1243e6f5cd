package config

import (
	"fmt"
	"strings"
)

// FieldError is one rejected configuration value.
type FieldError struct {
	Key    string
	Reason string
}

// ValidationErrors collects every rejected value so a bad config reports
// all of its problems in one pass.
type ValidationErrors []FieldError

func (e ValidationErrors) Error() string {
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, fe := range e {
		sb.WriteString(fmt.Sprintf("  - %s: %s\n", fe.Key, fe.Reason))
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// Validate checks the whole tree and reports every violation at once.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(key, format string, args ...any) {
		errs = append(errs, FieldError{Key: key, Reason: fmt.Sprintf(format, args...)})
	}

	switch c.Source.Mode {
	case "http":
		if c.Source.BaseURL == "" {
			add("source.base_url", "required in http mode")
		}
		if c.Source.APIKey == "" {
			add("source.api_key", "required in http mode (set GEXCOMPASS_API_KEY)")
		}
	case "replay":
		if c.Source.ReplayDir == "" {
			add("source.replay_dir", "required in replay mode")
		}
	default:
		add("source.mode", "must be http or replay, got %q", c.Source.Mode)
	}
	if c.Source.RatePerSecond < 1 {
		add("source.rate_per_second", "must be >= 1")
	}
	if c.Source.StrikeBand <= 0 {
		add("source.strike_band", "must be > 0")
	}

	if c.Storage.DSN == "" {
		add("storage.dsn", "required (set GEXCOMPASS_DATABASE_URL)")
	}
	if c.Storage.RetentionDays < 0 {
		add("storage.retention_days", "must be >= 0")
	}

	if c.Relay.Addr == "" {
		add("relay.addr", "required")
	}
	if c.Broadcast.Addr == "" {
		add("broadcast.addr", "required")
	}
	if c.HTTP.Addr == "" {
		add("http.addr", "required")
	}

	if len(c.Compass.Baskets) == 0 {
		add("compass.baskets", "at least one basket is required")
	}
	seen := make(map[string]bool)
	for i, b := range c.Compass.Baskets {
		key := fmt.Sprintf("compass.baskets[%d]", i)
		switch {
		case b.Name == "":
			add(key+".name", "required")
		case seen[b.Name]:
			add(key+".name", "duplicate basket %q", b.Name)
		}
		seen[b.Name] = true
		if len(b.Weights) == 0 {
			add(key+".weights", "at least one symbol weight is required")
		}
		for sym, w := range b.Weights {
			if w <= 0 {
				add(key+".weights."+sym, "must be > 0, got %g", w)
			}
		}
	}
	for sym, v := range c.Compass.Sensitivities {
		if v <= 0 {
			add("compass.sensitivities."+sym, "must be > 0, got %g", v)
		}
	}
	if c.Compass.LevelsPerSide < 1 {
		add("compass.levels_per_side", "must be >= 1")
	}

	if c.Schedule.IntervalSec < 1 {
		add("schedule.interval_sec", "must be >= 1")
	}
	if _, err := c.Schedule.Window(); err != nil {
		add("schedule", "%v", err)
	}

	if err := c.Notify.Validate(); err != nil {
		add("notify", "%v", err)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
