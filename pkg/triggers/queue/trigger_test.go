package queue

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrigger(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	tests := []struct {
		name        string
		config      map[string]any
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid_config",
			config: map[string]any{
				"queue": "flowmesh_requests",
				"connection": map[string]any{
					"addr":     "localhost:6379",
					"password": "",
					"db":       "0",
				},
			},
			expectError: false,
		},
		{
			name:        "missing_queue",
			config:      map[string]any{},
			expectError: true,
			errorMsg:    "queue trigger queue name is required",
		},
		{
			name: "connection_values_coerced",
			config: map[string]any{
				"queue": "flowmesh_requests",
				"connection": map[string]any{
					"addr": "redis:6379",
					"db":   42, // non-string values are ignored
				},
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewTrigger(tt.config, logger)

			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				assert.Nil(t, trigger)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, "flowmesh_requests", trigger.Queue)
		})
	}
}

func TestConnectionOnlyKeepsStrings(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	trigger, err := NewTrigger(map[string]any{
		"queue": "q",
		"connection": map[string]any{
			"addr": "redis:6379",
			"db":   7,
		},
	}, logger)
	require.NoError(t, err)

	assert.Equal(t, "redis:6379", trigger.Connection["addr"])
	assert.NotContains(t, trigger.Connection, "db")
}
