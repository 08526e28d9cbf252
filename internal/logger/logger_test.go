package logger_test

import (
	"bytes"
	"testing"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want logger.LogLevel
	}{
		{"debug", logger.DebugLevel},
		{"INFO", logger.InfoLevel},
		{"", logger.InfoLevel},
		{"warning", logger.WarnLevel},
		{"warn", logger.WarnLevel},
		{"error", logger.ErrorLevel},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := logger.ParseLevel("loud")
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrInvalidLogLevel))
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetLogLevel(logger.DebugLevel)
	t.Cleanup(func() { logger.SetLogLevel(logger.InfoLevel) })

	logger.With("zone").Info().Str("zone", "System").Msg("speed set")

	assert.Contains(t, buf.String(), `"component":"zone"`)
	assert.Contains(t, buf.String(), `"message":"speed set"`)
}

func TestEventCode(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)

	err := errors.New().WithData(errors.ErrInvalidConfig, "cooling_gc_count")
	logger.Error().Code(err).Msg("bad config")

	assert.Contains(t, buf.String(), `"error_code":"invalid_configuration"`)
	assert.Contains(t, buf.String(), `"error":"Invalid configuration: cooling_gc_count"`)
}
