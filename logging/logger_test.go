package logging

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var (
	_ Logger = (*SlogAdapter)(nil)
	_ Logger = NoOpLogger{}
	_ Logger = (*DialogueLogger)(nil)
)

func newBufferLogger(buf *bytes.Buffer) Logger {
	handler := slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogAdapter(slog.New(handler))
}

func TestSlogAdapter_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := newBufferLogger(&buf)

	logger.Debug("d", "k", "v")
	logger.Info("i")
	logger.Warn("w")
	logger.Error("e")

	out := buf.String()
	assert.Contains(t, out, "level=DEBUG")
	assert.Contains(t, out, "level=INFO")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "level=ERROR")
	assert.Contains(t, out, "k=v")
}

func TestDialogueLogger_AttachesProtocol(t *testing.T) {
	var buf bytes.Buffer
	logger := NewDialogueLogger(newBufferLogger(&buf), "dialogmesh/test:0.1.0")

	logger.LogMessageRejected(3, errors.New("bad target"))
	logger.LogMessageAccepted(3, "propose")
	logger.LogUnidentifiedDialogue("stranger", 1)
	logger.LogCodecFailure("decode", errors.New("truncated"))
	logger.LogDialogueEnded("a_b_c_d", "agreed", time.Second)

	out := buf.String()
	assert.Contains(t, out, "protocol=dialogmesh/test:0.1.0")
	assert.Contains(t, out, "message rejected")
	assert.Contains(t, out, "bad target")
	assert.Contains(t, out, "unidentified dialogue")
	assert.Contains(t, out, "dialogue ended")
	assert.Contains(t, out, "end_state=agreed")
}

func TestDialogueLogger_NilFallback(t *testing.T) {
	logger := NewDialogueLogger(nil, "dialogmesh/test:0.1.0")
	require.NotNil(t, logger)

	// must not panic
	logger.LogMessageAccepted(1, "propose")
	logger.LogMessageRejected(1, errors.New("x"))
}
