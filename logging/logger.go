package logging

import (
	"log/slog"
	"time"
)

// Logger defines the minimal logging interface for DialogueMesh.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// DialogueLogger decorates a Logger with convenience methods for the
// recurring events of a dialogue engine. It is cheap to copy.
type DialogueLogger struct {
	Logger
	protocol string
}

// NewDialogueLogger wraps a logger, attaching the protocol identity to every
// domain helper entry. A nil logger is substituted with NoOpLogger.
func NewDialogueLogger(l Logger, protocolID string) *DialogueLogger {
	if l == nil {
		l = NoOpLogger{}
	}
	return &DialogueLogger{Logger: l, protocol: protocolID}
}

// LogMessageRejected records a message that failed consistency or dialogue
// validation together with the violated rule.
func (l *DialogueLogger) LogMessageRejected(messageID int64, reason error) {
	l.Warn("message rejected", "protocol", l.protocol, "message_id", messageID, "reason", reason.Error())
}

// LogMessageAccepted records a successful dialogue transition.
func (l *DialogueLogger) LogMessageAccepted(messageID int64, performative string) {
	l.Debug("message accepted", "protocol", l.protocol, "message_id", messageID, "performative", performative)
}

// LogUnidentifiedDialogue records an inbound message that matched no dialogue.
func (l *DialogueLogger) LogUnidentifiedDialogue(sender string, messageID int64) {
	l.Warn("unidentified dialogue", "protocol", l.protocol, "sender", sender, "message_id", messageID)
}

// LogCodecFailure records an envelope that could not be encoded or decoded.
func (l *DialogueLogger) LogCodecFailure(op string, err error) {
	l.Error("codec failure", "protocol", l.protocol, "op", op, "error", err.Error())
}

// LogDialogueEnded records a dialogue reaching a terminal state.
func (l *DialogueLogger) LogDialogueEnded(label string, endState string, dur time.Duration) {
	l.Info("dialogue ended", "protocol", l.protocol, "label", label, "end_state", endState, "duration", dur)
}
