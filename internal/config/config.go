// Package config loads server settings from defaults, an optional YAML file,
// the environment and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Heartbeat  HeartbeatConfig  `mapstructure:"heartbeat"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Dispatch   DispatchConfig   `mapstructure:"dispatch"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	DB         DBConfig         `mapstructure:"db"`
	Log        LogConfig        `mapstructure:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Path            string        `mapstructure:"path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

type HeartbeatConfig struct {
	Interval       time.Duration `mapstructure:"interval"`
	StaleThreshold time.Duration `mapstructure:"staleThreshold"`
}

type WebSocketConfig struct {
	MaxPayloadBytes int64         `mapstructure:"maxPayloadBytes"`
	IdleTimeout     time.Duration `mapstructure:"idleTimeout"`
	WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
	SendBuffer      int           `mapstructure:"sendBuffer"`
	Compression     bool          `mapstructure:"compression"`
}

type DispatchConfig struct {
	// StrictTypes answers unknown message types with an error instead of
	// ignoring them.
	StrictTypes bool `mapstructure:"strictTypes"`
}

type EvaluationConfig struct {
	Timeout time.Duration `mapstructure:"timeout"` // 0 disables
}

type DBConfig struct {
	Path string `mapstructure:"path"` // empty disables session history
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load populates a Config from v. Defaults and environment bindings are
// registered on v first, so flags bound by the caller keep precedence.
// When v has a config file set it is read before unmarshalling.
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, fmt.Errorf("config env binding error: %w", err)
	}

	if v.ConfigFileUsed() != "" {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config file error: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal error: %w", err)
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Addr returns the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
