package accumulator

import (
	"sync"
	"time"

	"github.com/YoshitsuguKoike/gatechain/internal/logging"
)

// Level is a diagnostic severity
type Level string

const (
	LevelError   Level = "error"
	LevelWarning Level = "warning"
	LevelInfo    Level = "info"
	LevelDebug   Level = "debug"
)

// DiagnosticEntry is one append-only diagnostic record
type DiagnosticEntry struct {
	Level     Level                  `json:"level"`
	Stage     string                 `json:"stage"`
	Message   string                 `json:"message"`
	Code      string                 `json:"code,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Option customizes a diagnostic entry
type Option func(*DiagnosticEntry)

// WithCode attaches a machine-readable code
func WithCode(code string) Option {
	return func(e *DiagnosticEntry) { e.Code = code }
}

// WithContext attaches structured context
func WithContext(ctx map[string]interface{}) Option {
	return func(e *DiagnosticEntry) { e.Context = ctx }
}

// DiagnosticAccumulator collects diagnostics for one request and forwards
// each entry to the logger at the matching level.
type DiagnosticAccumulator struct {
	mu      sync.Mutex
	entries []DiagnosticEntry
	logger  logging.Logger
	now     func() time.Time
}

// NewDiagnosticAccumulator creates an empty accumulator
func NewDiagnosticAccumulator(logger logging.Logger) *DiagnosticAccumulator {
	return &DiagnosticAccumulator{logger: logging.OrGlobal(logger), now: time.Now}
}

// Add appends an entry and forwards it to the logger
func (d *DiagnosticAccumulator) Add(level Level, stage, message string, opts ...Option) {
	e := DiagnosticEntry{Level: level, Stage: stage, Message: message, Timestamp: d.now()}
	for _, opt := range opts {
		opt(&e)
	}

	d.mu.Lock()
	d.entries = append(d.entries, e)
	d.mu.Unlock()

	kv := []interface{}{"stage", stage}
	if e.Code != "" {
		kv = append(kv, "code", e.Code)
	}
	for k, v := range e.Context {
		kv = append(kv, k, v)
	}
	switch level {
	case LevelError:
		d.logger.Errorw(message, kv...)
	case LevelWarning:
		d.logger.Warnw(message, kv...)
	case LevelInfo:
		d.logger.Infow(message, kv...)
	default:
		d.logger.Debugw(message, kv...)
	}
}

func (d *DiagnosticAccumulator) Error(stage, message string, opts ...Option) {
	d.Add(LevelError, stage, message, opts...)
}

func (d *DiagnosticAccumulator) Warn(stage, message string, opts ...Option) {
	d.Add(LevelWarning, stage, message, opts...)
}

func (d *DiagnosticAccumulator) Info(stage, message string, opts ...Option) {
	d.Add(LevelInfo, stage, message, opts...)
}

func (d *DiagnosticAccumulator) Debug(stage, message string, opts ...Option) {
	d.Add(LevelDebug, stage, message, opts...)
}

// Entries returns a copy of every entry in insertion order
func (d *DiagnosticAccumulator) Entries() []DiagnosticEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DiagnosticEntry(nil), d.entries...)
}

// ByLevel returns entries at level
func (d *DiagnosticAccumulator) ByLevel(level Level) []DiagnosticEntry {
	var out []DiagnosticEntry
	for _, e := range d.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

func (d *DiagnosticAccumulator) HasErrors() bool   { return len(d.ByLevel(LevelError)) > 0 }
func (d *DiagnosticAccumulator) HasWarnings() bool { return len(d.ByLevel(LevelWarning)) > 0 }

// Summary counts entries per level
func (d *DiagnosticAccumulator) Summary() map[Level]int {
	out := make(map[Level]int)
	for _, e := range d.Entries() {
		out[e.Level]++
	}
	return out
}
