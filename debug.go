package iterata

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// DebugLogger provides opt-in operational logging for store and explainer
// activity. All methods are safe on a nil receiver.
type DebugLogger struct {
	mu      sync.Mutex
	enabled bool
	writer  io.Writer
}

// NewDebugLogger creates a new debug logger.
// If logPath is empty, logs to stderr.
func NewDebugLogger(enabled bool, logPath string) (*DebugLogger, error) {
	var writer io.Writer = os.Stderr

	if enabled && logPath != "" {
		f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open debug log: %w", err)
		}
		writer = f
	}

	return &DebugLogger{
		enabled: enabled,
		writer:  writer,
	}, nil
}

// Close closes the debug logger if it's writing to a file.
func (l *DebugLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if closer, ok := l.writer.(io.Closer); ok && l.writer != os.Stderr {
		return closer.Close()
	}
	return nil
}

// Log writes a debug message if logging is enabled.
func (l *DebugLogger) Log(format string, args ...any) {
	if l == nil || !l.enabled {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("2006-01-02T15:04:05.000Z07:00")
	msg := fmt.Sprintf(format, args...)
	_, _ = fmt.Fprintf(l.writer, "[%s] [ITERATA DEBUG] %s\n", timestamp, msg)
}

// LogCorrection logs a stored correction.
func (l *DebugLogger) LogCorrection(c *Correction, path string) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("CORRECTION %s field=%s doc=%s -> %s", c.ID, c.FieldPath, c.DocumentID, path)
}

// LogExplanation logs an attached explanation.
func (l *DebugLogger) LogExplanation(e *Explanation) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("EXPLANATION %s category=%s type=%s", e.CorrectionID, e.Category, e.CorrectionType)
}

// LogError logs an error with full details.
func (l *DebugLogger) LogError(operation string, err error) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("ERROR [%s]: %v", operation, err)
}

// LogExplainer logs explainer collaborator activity.
func (l *DebugLogger) LogExplainer(correctionID string, details string) {
	if l == nil || !l.enabled {
		return
	}
	l.Log("EXPLAINER [%s]: %s", correctionID, details)
}

// truncateForLog truncates a string for logging purposes.
func truncateForLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... [truncated, %d bytes total]", len(s))
}
