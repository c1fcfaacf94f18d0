package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZerologLoggerMethods(t *testing.T) {
	t.Setenv("APP_ENV", "dev")
	l := NewZerologLogger("test")
	require.NotNil(t, l)
	l.Debugf("debug %d", 1)
	l.Debugw("debug", map[string]any{"k": 1})
	l.Infof("info %s", "test")
	l.Infow("info", map[string]any{"routine": "DCOPF"})
	l.Warnf("warn")
	l.Errorf("error")
}

func TestJSONOutputCarriesComponent(t *testing.T) {
	t.Setenv("LOG_LEVEL", "info")
	var buf bytes.Buffer
	l := NewWithWriter("routine", &buf)
	l.Debugf("hidden")
	l.Infow("ACOPF solved", map[string]any{"iterations": 9})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "routine", entry["component"])
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "ACOPF solved", entry["message"])
	assert.EqualValues(t, 9, entry["iterations"])
}

func TestNopLogger(t *testing.T) {
	var l Logger = NopLogger{}
	l.Infof("nothing %d", 1)
	l.Infow("nothing", nil)
}
