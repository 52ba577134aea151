package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureOutputJSON(t *testing.T) {
	var buf bytes.Buffer
	ConfigureOutput("warn", "json", &buf)
	t.Cleanup(func() { Configure("info", "text") })

	logger := NewLogger("SCANNER")
	logger.Info("hidden")
	logger.Warn("Recognition timed out", "frame", "f-1")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Recognition timed out", entry["msg"])
	assert.Equal(t, "SCANNER", entry["component"])
	assert.Equal(t, "f-1", entry["frame"])
}

func TestSlogBridgesStandardLogger(t *testing.T) {
	var buf bytes.Buffer
	ConfigureOutput("info", "text", &buf)
	t.Cleanup(func() { ConfigureOutput("info", "text", os.Stdout) })

	std := slog.NewLogLogger(NewLogger("HTTP").Slog().Handler(), slog.LevelError)
	std.Print("http: TLS handshake error")

	out := buf.String()
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "component=HTTP")
	assert.Contains(t, out, "TLS handshake error")
}
