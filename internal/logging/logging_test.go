package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/example/rationale-probe/internal/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.LoggingConfig
		verbose bool
		debug   bool
		wantErr bool
	}{
		{name: "console_info", cfg: config.LoggingConfig{Level: "info", Format: "console"}},
		{name: "json_warn", cfg: config.LoggingConfig{Level: "warn", Format: "json"}},
		{name: "verbose_forces_debug", cfg: config.LoggingConfig{Level: "error", Format: "json"}, verbose: true, debug: true},
		{name: "bad_level", cfg: config.LoggingConfig{Level: "loud", Format: "json"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := New(tt.cfg, tt.verbose)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.debug, logger.Core().Enabled(zapcore.DebugLevel))
		})
	}
}
