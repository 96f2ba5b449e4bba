package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if !strings.HasPrefix(c.Server.Path, "/") {
		return errors.New("server path must start with '/'")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}

	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat interval must be positive")
	}
	if c.Heartbeat.StaleThreshold <= c.Heartbeat.Interval {
		return errors.New("heartbeat stale threshold should be greater than interval")
	}

	if c.WebSocket.MaxPayloadBytes <= 0 {
		return errors.New("max payload size must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return errors.New("write timeout must be positive")
	}
	if c.WebSocket.IdleTimeout <= c.WebSocket.WriteTimeout {
		return errors.New("idle timeout should be greater than write timeout")
	}
	if c.WebSocket.SendBuffer < 1 {
		return errors.New("send buffer must be positive")
	}

	if c.Evaluation.Timeout < 0 {
		return errors.New("evaluation timeout must not be negative")
	}

	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s. Must be 'text' or 'json'", c.Log.Format)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return errors.New("metrics path must start with '/'")
	}

	return nil
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}
