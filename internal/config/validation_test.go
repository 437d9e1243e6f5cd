package config

import (
	"strings"
	"testing"

	"gexcompass/internal/notify"
)

func validConfig() Config {
	return Config{
		Source: SourceConfig{
			Mode:          "http",
			BaseURL:       "https://api.gex.bot",
			APIKey:        "k",
			RatePerSecond: 2,
			TimeoutSec:    30,
			StrikeBand:    0.03,
		},
		Storage:   StorageConfig{DSN: "postgres://localhost/gex", RetentionDays: 7},
		Relay:     RelayConfig{Addr: "127.0.0.1:5005", TimeoutSec: 2},
		Broadcast: BroadcastConfig{Addr: ":5010", WriteTimeoutSec: 5},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Compass: CompassConfig{
			Baskets:       DefaultBaskets(),
			LevelsPerSide: 10,
		},
		Schedule: ScheduleConfig{
			Enabled:      true,
			IntervalSec:  60,
			Timezone:     "America/New_York",
			SessionStart: "09:30",
			SessionEnd:   "16:00",
		},
	}
}

func TestValidateAcceptsValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected no error for valid config, got: %v", err)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "unknown source mode",
			mutate:  func(c *Config) { c.Source.Mode = "ftp" },
			wantErr: "source.mode",
		},
		{
			name: "replay without directory",
			mutate: func(c *Config) {
				c.Source.Mode = "replay"
				c.Source.ReplayDir = ""
			},
			wantErr: "source.replay_dir",
		},
		{
			name:    "http without api key",
			mutate:  func(c *Config) { c.Source.APIKey = "" },
			wantErr: "source.api_key",
		},
		{
			name:    "zero rate",
			mutate:  func(c *Config) { c.Source.RatePerSecond = 0 },
			wantErr: "source.rate_per_second",
		},
		{
			name:    "zero strike band",
			mutate:  func(c *Config) { c.Source.StrikeBand = 0 },
			wantErr: "source.strike_band",
		},
		{
			name:    "missing dsn",
			mutate:  func(c *Config) { c.Storage.DSN = "" },
			wantErr: "storage.dsn",
		},
		{
			name:    "negative retention",
			mutate:  func(c *Config) { c.Storage.RetentionDays = -1 },
			wantErr: "storage.retention_days",
		},
		{
			name:    "no baskets",
			mutate:  func(c *Config) { c.Compass.Baskets = nil },
			wantErr: "compass.baskets",
		},
		{
			name: "zero basket weight",
			mutate: func(c *Config) {
				c.Compass.Baskets[0].Weights["SPY"] = 0
			},
			wantErr: "must be > 0",
		},
		{
			name: "duplicate basket name",
			mutate: func(c *Config) {
				c.Compass.Baskets[1].Name = c.Compass.Baskets[0].Name
			},
			wantErr: "duplicate basket",
		},
		{
			name: "negative sensitivity",
			mutate: func(c *Config) {
				c.Compass.Sensitivities = map[string]float64{"SPY": -0.002}
			},
			wantErr: "compass.sensitivities.SPY",
		},
		{
			name:    "zero levels per side",
			mutate:  func(c *Config) { c.Compass.LevelsPerSide = 0 },
			wantErr: "compass.levels_per_side",
		},
		{
			name:    "zero interval",
			mutate:  func(c *Config) { c.Schedule.IntervalSec = 0 },
			wantErr: "schedule.interval_sec",
		},
		{
			name:    "unknown timezone",
			mutate:  func(c *Config) { c.Schedule.Timezone = "Mars/Olympus" },
			wantErr: "unknown timezone",
		},
		{
			name:    "malformed session start",
			mutate:  func(c *Config) { c.Schedule.SessionStart = "9am" },
			wantErr: "session_start",
		},
		{
			name: "session end before start",
			mutate: func(c *Config) {
				c.Schedule.SessionStart = "16:00"
				c.Schedule.SessionEnd = "09:30"
			},
			wantErr: "must be after",
		},
		{
			name: "notify enabled without topic",
			mutate: func(c *Config) {
				c.Notify = notify.Config{Enabled: true, Priority: "default"}
			},
			wantErr: "notify.topic",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error should mention %q, got: %v", tc.wantErr, err)
			}
		})
	}
}

func TestValidateReportsAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Source.APIKey = ""
	cfg.Storage.DSN = ""
	cfg.Compass.LevelsPerSide = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error for multiple issues")
	}

	verrs, ok := err.(ValidationErrors)
	if !ok {
		t.Fatalf("expected ValidationErrors, got %T", err)
	}
	if len(verrs) != 3 {
		t.Errorf("expected 3 field errors, got %d: %v", len(verrs), verrs)
	}

	errStr := err.Error()
	for _, want := range []string{"source.api_key", "storage.dsn", "compass.levels_per_side"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("error should mention %q, got: %v", want, err)
		}
	}
}
