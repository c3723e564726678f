package logging

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
)

func Test_New_defaultsToInfoLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Role: "streamer", Output: &buf})

	logger.Debug("should not appear")
	logger.Info("should appear")

	out := buf.String()
	assert.NotContains(t, out, "should not appear")
	assert.Contains(t, out, "should appear")
	assert.Contains(t, out, "role=streamer")
}

func Test_New_JSONForcesJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Options{Role: "player", Output: &buf, JSON: true})
	logger.Info("hello")

	out := strings.TrimSpace(buf.String())
	assert.True(t, strings.HasPrefix(out, "{"), "JSON formatter must emit a JSON object, got: %s", out)
	assert.Contains(t, out, `"role":"player"`)
}

func Test_Log_mapsAudioDeviceFailureToError(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	Log(logger, ErrorKindAudioDevice, "device broke")
	assert.Contains(t, buf.String(), "ERRO")
}

func Test_Log_mapsCancellationToDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	Log(logger, ErrorKindCancellation, "shutting down")
	assert.Contains(t, buf.String(), "DEBU")
}

func Test_Log_mapsTransientPeerFailureToWarn(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWithOptions(&buf, log.Options{Level: log.DebugLevel})

	Log(logger, ErrorKindTransientPeer, "peer dropped")
	assert.Contains(t, buf.String(), "WARN")
}
