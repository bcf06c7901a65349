package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_Defaults(t *testing.T) {
	logger, err := NewLogger(nil)
	require.NoError(t, err)
	require.NotNil(t, logger)
	logger.Info("startup")
}

func TestNewLogger_ConsoleFormat(t *testing.T) {
	logger, err := NewLogger(&Config{Level: "debug", Format: "console", Output: "stderr"})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLogger_ConstantFields(t *testing.T) {
	logger, err := NewLogger(&Config{Fields: map[string]string{"service": "fraudinteld"}})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "info", Format: "json", Output: "stdout"}, false},
		{"bad level", Config{Level: "verbose", Format: "json", Output: "stdout"}, true},
		{"bad format", Config{Level: "info", Format: "xml", Output: "stdout"}, true},
		{"bad output", Config{Level: "info", Format: "json", Output: "file"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestConfig_ApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "stdout", cfg.Output)
}
