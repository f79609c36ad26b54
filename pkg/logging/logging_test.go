package logging_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/mutgate-project/mutgate/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func capture(level logging.Level) (*logging.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	l := logging.NewLogger(level)
	l.SetOutput(&buf)
	return l, &buf
}

func TestLogger_InfoProducesJSON(t *testing.T) {
	l, buf := capture(logging.LevelInfo)
	l.Info("checkpoint created", map[string]any{"checkpoint_id": "abc"})

	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, logging.LevelInfo, entry.Level)
	assert.Equal(t, "checkpoint created", entry.Message)
	assert.Equal(t, "abc", entry.Fields["checkpoint_id"])
}

func TestLogger_DebugSuppressedAtInfo(t *testing.T) {
	l, buf := capture(logging.LevelInfo)
	l.Debug("noise")
	assert.Empty(t, buf.String())
}

func TestLogger_WarnSuppressedAtError(t *testing.T) {
	l, buf := capture(logging.LevelError)
	l.Warn("warning")
	assert.Empty(t, buf.String())
	l.Error("problem")
	assert.NotEmpty(t, buf.String())
}

func TestLogger_WithFieldsInherited(t *testing.T) {
	l, buf := capture(logging.LevelInfo)
	child := l.WithFields(map[string]any{"component": "executor"})
	child.Info("applied")

	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "executor", entry.Fields["component"])
}

func TestLogger_ErrorErrIncludesError(t *testing.T) {
	l, buf := capture(logging.LevelInfo)
	l.ErrorErr("rollback failed", errors.New("disk full"), map[string]any{"resource": "cfg.json"})

	var entry logging.LogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "disk full", entry.Fields["error"])
	assert.Equal(t, "cfg.json", entry.Fields["resource"])
}

func TestLogger_OneLinePerEntry(t *testing.T) {
	l, buf := capture(logging.LevelInfo)
	l.Info("one")
	l.Info("two")
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}
