package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultPort            = 9001
	DefaultMaxPayloadBytes = 16 * 1024 * 1024
)

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", DefaultPort)
	v.SetDefault("server.path", "/ws")
	v.SetDefault("server.shutdownTimeout", 10*time.Second)

	// Heartbeat
	v.SetDefault("heartbeat.interval", 30*time.Second)
	v.SetDefault("heartbeat.staleThreshold", 60*time.Second)

	// WebSocket
	v.SetDefault("websocket.maxPayloadBytes", DefaultMaxPayloadBytes)
	v.SetDefault("websocket.idleTimeout", 120*time.Second)
	v.SetDefault("websocket.writeTimeout", 10*time.Second)
	v.SetDefault("websocket.sendBuffer", 256)
	v.SetDefault("websocket.compression", true)

	// Dispatch
	v.SetDefault("dispatch.strictTypes", false)

	// Evaluation
	v.SetDefault("evaluation.timeout", 5*time.Second)

	// Storage
	v.SetDefault("db.path", "data/sessions.db")

	// Logging
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	// Metrics
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindEnvVars(v *viper.Viper) error {
	bindings := map[string]string{
		"server.port":               "PORT",
		"server.path":               "CONFLUENCE_SERVER_PATH",
		"server.shutdownTimeout":    "CONFLUENCE_SHUTDOWN_TIMEOUT",
		"heartbeat.interval":        "CONFLUENCE_HEARTBEAT_INTERVAL",
		"heartbeat.staleThreshold":  "CONFLUENCE_HEARTBEAT_STALE_THRESHOLD",
		"websocket.maxPayloadBytes": "CONFLUENCE_MAX_PAYLOAD_BYTES",
		"websocket.idleTimeout":     "CONFLUENCE_IDLE_TIMEOUT",
		"websocket.writeTimeout":    "CONFLUENCE_WRITE_TIMEOUT",
		"websocket.sendBuffer":      "CONFLUENCE_SEND_BUFFER",
		"websocket.compression":     "CONFLUENCE_COMPRESSION",
		"dispatch.strictTypes":      "CONFLUENCE_STRICT_TYPES",
		"evaluation.timeout":        "CONFLUENCE_EVALUATION_TIMEOUT",
		"db.path":                   "DB_PATH",
		"log.level":                 "LOG_LEVEL",
		"log.format":                "LOG_FORMAT",
		"metrics.enabled":           "CONFLUENCE_METRICS_ENABLED",
		"metrics.path":              "CONFLUENCE_METRICS_PATH",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}
