// Package config loads cmd/livegrapherd's process configuration: a
// caarlos0/env + godotenv loading pattern with a LogConfig method for
// structured startup logging, covering only the knobs a streaming host
// actually needs (no Kafka broker list, no cgroup CPU thresholds — this
// engine has no upstream broker or CPU-based admission control).
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds every environment-driven setting for the livegrapherd
// binary. The Engine library itself takes an Options struct; Config is
// strictly the process-wrapper layer.
type Config struct {
	ListenAddr string `env:"LIVEGRAPHER_ADDR" envDefault:":8080"`

	MetricsAddr string `env:"LIVEGRAPHER_METRICS_ADDR" envDefault:":9090"`

	MaxQueueBytesPerClient int  `env:"LIVEGRAPHER_MAX_QUEUE_BYTES" envDefault:"1048576"`
	ListenBacklog          int  `env:"LIVEGRAPHER_LISTEN_BACKLOG" envDefault:"16"`
	TCPNoDelay             bool `env:"LIVEGRAPHER_TCP_NODELAY" envDefault:"true"`
	CompatBuggyIDMask      bool `env:"LIVEGRAPHER_COMPAT_BUGGY_ID_MASK" envDefault:"false"`

	AcceptIPBurst     int     `env:"LIVEGRAPHER_ACCEPT_IP_BURST" envDefault:"10"`
	AcceptIPRate      float64 `env:"LIVEGRAPHER_ACCEPT_IP_RATE" envDefault:"1.0"`
	AcceptGlobalBurst int     `env:"LIVEGRAPHER_ACCEPT_GLOBAL_BURST" envDefault:"100"`
	AcceptGlobalRate  float64 `env:"LIVEGRAPHER_ACCEPT_GLOBAL_RATE" envDefault:"20.0"`

	SysmonInterval string `env:"LIVEGRAPHER_SYSMON_INTERVAL" envDefault:"10s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env (if present) then the process environment into a Config,
// validating the result. Priority: real env vars > .env file > defaults.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the loaded configuration for internally inconsistent or
// out-of-range values.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("LIVEGRAPHER_ADDR is required")
	}
	if c.MaxQueueBytesPerClient < 1 {
		return fmt.Errorf("LIVEGRAPHER_MAX_QUEUE_BYTES must be > 0, got %d", c.MaxQueueBytesPerClient)
	}
	if c.ListenBacklog < 1 {
		return fmt.Errorf("LIVEGRAPHER_LISTEN_BACKLOG must be > 0, got %d", c.ListenBacklog)
	}
	if c.AcceptIPBurst < 1 {
		return fmt.Errorf("LIVEGRAPHER_ACCEPT_IP_BURST must be > 0, got %d", c.AcceptIPBurst)
	}
	if c.AcceptGlobalBurst < 1 {
		return fmt.Errorf("LIVEGRAPHER_ACCEPT_GLOBAL_BURST must be > 0, got %d", c.AcceptGlobalBurst)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got %q)", c.LogLevel)
	}
	validFormats := map[string]bool{"json": true, "pretty": true}
	if !validFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, pretty (got %q)", c.LogFormat)
	}

	return nil
}

// LogConfig emits the loaded configuration as one structured log line.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("listen_addr", c.ListenAddr).
		Str("metrics_addr", c.MetricsAddr).
		Int("max_queue_bytes_per_client", c.MaxQueueBytesPerClient).
		Int("listen_backlog", c.ListenBacklog).
		Bool("tcp_nodelay", c.TCPNoDelay).
		Bool("compat_buggy_id_mask", c.CompatBuggyIDMask).
		Int("accept_ip_burst", c.AcceptIPBurst).
		Float64("accept_ip_rate", c.AcceptIPRate).
		Int("accept_global_burst", c.AcceptGlobalBurst).
		Float64("accept_global_rate", c.AcceptGlobalRate).
		Str("sysmon_interval", c.SysmonInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
