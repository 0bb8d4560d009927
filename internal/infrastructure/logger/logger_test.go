package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/erp/rostersync/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{name: "nil config", cfg: nil},
		{name: "console", cfg: DefaultConfig()},
		{name: "json debug", cfg: &Config{Level: "debug", Format: "json", Output: "stderr"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, l)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	l.Info("written")
	_ = l.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"written"`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("DEBUG"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warning"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("bogus"))
}

func TestNewForEnvironment(t *testing.T) {
	l, err := NewForEnvironment("production", "warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestEventFields(t *testing.T) {
	ev, err := shared.NewSyncEvent(shared.CategoryCreated, shared.KindEmployees, map[string]string{"id": "1"})
	require.NoError(t, err)
	ev.Sequence = 7
	ev.Source = "ctx-a"

	enc := zapcore.NewMapObjectEncoder()
	for _, f := range EventFields(ev) {
		f.AddTo(enc)
	}

	assert.Equal(t, ev.ID.String(), enc.Fields["event_id"])
	assert.Equal(t, "entity.created", enc.Fields["category"])
	assert.Equal(t, "employees", enc.Fields["entity_kind"])
	assert.Equal(t, "local", enc.Fields["origin"])
	assert.Equal(t, uint64(7), enc.Fields["sequence"])
	assert.Equal(t, "ctx-a", enc.Fields["source"])
}
