package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gexcompass/internal/compass"
)

// DefaultBaskets returns the two standing views: the retail ETF complex and
// the institutional index complex.
func DefaultBaskets() []BasketConfig {
	return []BasketConfig{
		{
			Name: "traders",
			Weights: map[string]float64{
				"SPY": 0.50,
				"QQQ": 0.30,
				"IWM": 0.20,
			},
		},
		{
			Name: "whale",
			Weights: map[string]float64{
				"SPX": 0.45,
				"NDX": 0.35,
				"IWM": 0.20,
			},
		},
	}
}

// CompassBaskets converts the configured baskets into classifier form.
// Viper lowercases map keys on read, so ticker case is restored here.
func (c CompassConfig) CompassBaskets() []compass.Basket {
	out := make([]compass.Basket, 0, len(c.Baskets))
	for _, b := range c.Baskets {
		weights := make(map[string]float64, len(b.Weights))
		for sym, w := range b.Weights {
			weights[strings.ToUpper(sym)] = w
		}
		out = append(out, compass.Basket{Name: b.Name, Weights: weights})
	}
	return out
}

// SensitivityMap converts configured sensitivities into classifier form,
// nil when none are set so the classifier defaults apply.
func (c CompassConfig) SensitivityMap() compass.Sensitivities {
	if len(c.Sensitivities) == 0 {
		return nil
	}
	out := make(compass.Sensitivities, len(c.Sensitivities))
	for sym, v := range c.Sensitivities {
		out[strings.ToUpper(sym)] = v
	}
	return out
}

// SymbolList returns the configured collection symbols, defaulting to the
// sorted union of every basket's symbols.
func (c CompassConfig) SymbolList() []string {
	if len(c.Symbols) > 0 {
		return c.Symbols
	}
	seen := make(map[string]bool)
	var out []string
	for _, b := range c.CompassBaskets() {
		for sym := range b.Weights {
			if !seen[sym] {
				seen[sym] = true
				out = append(out, sym)
			}
		}
	}
	sort.Strings(out)
	return out
}

// SessionWindow is the intraday trading window in exchange-local minutes of
// day. Start is inclusive, End exclusive.
type SessionWindow struct {
	Start    int
	End      int
	Location *time.Location
}

// Contains reports whether t falls inside the window, evaluated in the
// window's timezone.
func (w SessionWindow) Contains(t time.Time) bool {
	local := t.In(w.Location)
	m := local.Hour()*60 + local.Minute()
	return m >= w.Start && m < w.End
}

// Window parses the configured session bounds into a usable window.
func (s ScheduleConfig) Window() (SessionWindow, error) {
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return SessionWindow{}, fmt.Errorf("unknown timezone %q", s.Timezone)
	}
	start, err := parseClock(s.SessionStart)
	if err != nil {
		return SessionWindow{}, fmt.Errorf("session_start %w", err)
	}
	end, err := parseClock(s.SessionEnd)
	if err != nil {
		return SessionWindow{}, fmt.Errorf("session_end %w", err)
	}
	if end <= start {
		return SessionWindow{}, fmt.Errorf("session_end %s must be after session_start %s", s.SessionEnd, s.SessionStart)
	}
	return SessionWindow{Start: start, End: end, Location: loc}, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("must be HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}
