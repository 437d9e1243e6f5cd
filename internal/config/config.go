package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gexcompass/internal/notify"
)

type Config struct {
	Source    SourceConfig    `mapstructure:"source"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Broadcast BroadcastConfig `mapstructure:"broadcast"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Compass   CompassConfig   `mapstructure:"compass"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Notify    notify.Config   `mapstructure:"notify"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type SourceConfig struct {
	Mode          string  `mapstructure:"mode"` // "http" or "replay"
	BaseURL       string  `mapstructure:"base_url"`
	APIKey        string  `mapstructure:"api_key"`
	RatePerSecond int     `mapstructure:"rate_per_second"`
	TimeoutSec    int     `mapstructure:"timeout_sec"`
	StrikeBand    float64 `mapstructure:"strike_band"` // keep strikes within spot*(1±band)
	ReplayDir     string  `mapstructure:"replay_dir"`
	ReplayLoop    bool    `mapstructure:"replay_loop"`
}

type StorageConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxOpenConns       int    `mapstructure:"max_open_conns"`
	MaxIdleConns       int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeMin int    `mapstructure:"conn_max_lifetime_min"`
	QueryTimeoutSec    int    `mapstructure:"query_timeout_sec"`
	RetentionDays      int    `mapstructure:"retention_days"` // 0 disables pruning
}

type RelayConfig struct {
	Addr       string `mapstructure:"addr"`
	TimeoutSec int    `mapstructure:"timeout_sec"` // producer dial+write budget
}

type BroadcastConfig struct {
	Addr            string `mapstructure:"addr"`
	WriteTimeoutSec int    `mapstructure:"write_timeout_sec"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr"` // collector-side Prometheus listener
}

type CompassConfig struct {
	Symbols          []string           `mapstructure:"symbols"` // empty derives from baskets
	Baskets          []BasketConfig     `mapstructure:"baskets"`
	Sensitivities    map[string]float64 `mapstructure:"sensitivities"`
	ReferenceSymbols []string           `mapstructure:"reference_symbols"`
	LevelSymbols     []string           `mapstructure:"level_symbols"`
	LevelsPerSide    int                `mapstructure:"levels_per_side"`
}

type BasketConfig struct {
	Name    string             `mapstructure:"name"`
	Weights map[string]float64 `mapstructure:"weights"`
}

type ScheduleConfig struct {
	Enabled      bool   `mapstructure:"enabled"` // false runs cycles around the clock
	IntervalSec  int    `mapstructure:"interval_sec"`
	Timezone     string `mapstructure:"timezone"`
	SessionStart string `mapstructure:"session_start"` // HH:MM exchange-local
	SessionEnd   string `mapstructure:"session_end"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"` // also write logs to a file
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("source.mode", "http")
	v.SetDefault("source.base_url", "https://api.gex.bot")
	v.SetDefault("source.rate_per_second", 2)
	v.SetDefault("source.timeout_sec", 30)
	v.SetDefault("source.strike_band", 0.03)
	v.SetDefault("source.replay_loop", false)
	v.SetDefault("storage.max_open_conns", 10)
	v.SetDefault("storage.max_idle_conns", 5)
	v.SetDefault("storage.conn_max_lifetime_min", 30)
	v.SetDefault("storage.query_timeout_sec", 30)
	v.SetDefault("storage.retention_days", 30)
	v.SetDefault("relay.addr", "127.0.0.1:5005")
	v.SetDefault("relay.timeout_sec", 2)
	v.SetDefault("broadcast.addr", ":5010")
	v.SetDefault("broadcast.write_timeout_sec", 5)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("compass.levels_per_side", 10)
	v.SetDefault("schedule.enabled", true)
	v.SetDefault("schedule.interval_sec", 60)
	v.SetDefault("schedule.timezone", "America/New_York")
	v.SetDefault("schedule.session_start", "09:30")
	v.SetDefault("schedule.session_end", "16:00")
	v.SetDefault("notify.server", "https://ntfy.sh")
	v.SetDefault("notify.priority", "default")
	v.SetDefault("logging.enabled", false)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("GEXCOMPASS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind secrets so they resolve without a config file entry
	_ = v.BindEnv("source.api_key", "GEXCOMPASS_API_KEY")
	_ = v.BindEnv("storage.dsn", "GEXCOMPASS_DATABASE_URL")
	_ = v.BindEnv("notify.token", "GEXCOMPASS_NTFY_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("gexcompass")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// Basket defaults are structured values SetDefault cannot express.
	if len(cfg.Compass.Baskets) == 0 {
		cfg.Compass.Baskets = DefaultBaskets()
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

func (s StorageConfig) ConnMaxLifetime() time.Duration {
	return time.Duration(s.ConnMaxLifetimeMin) * time.Minute
}

func (s StorageConfig) QueryTimeout() time.Duration {
	return time.Duration(s.QueryTimeoutSec) * time.Second
}

// Retention is the record age limit for pruning, zero when disabled.
func (s StorageConfig) Retention() time.Duration {
	return time.Duration(s.RetentionDays) * 24 * time.Hour
}

func (r RelayConfig) Timeout() time.Duration {
	return time.Duration(r.TimeoutSec) * time.Second
}

func (b BroadcastConfig) WriteTimeout() time.Duration {
	return time.Duration(b.WriteTimeoutSec) * time.Second
}

func (s ScheduleConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSec) * time.Second
}
