package main

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/confluence-stream/backend/internal/config"
)

func TestSetupLogger(t *testing.T) {
	defer slog.SetDefault(slog.Default())

	testCases := []struct {
		format string
		json   bool
	}{
		{"text", false},
		{"json", true},
		{"JSON", true},
	}

	for _, tc := range testCases {
		t.Run(tc.format, func(t *testing.T) {
			logger, err := setupLogger(config.LogConfig{Level: "info", Format: tc.format})
			require.NoError(t, err)

			_, isJSON := logger.Handler().(*slog.JSONHandler)
			assert.Equal(t, tc.json, isJSON)
		})
	}
}

func TestSetupLogger_InvalidLevel(t *testing.T) {
	_, err := setupLogger(config.LogConfig{Level: "verbose", Format: "text"})
	assert.Error(t, err)
}
