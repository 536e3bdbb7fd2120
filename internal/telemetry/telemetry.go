// Package telemetry is the substrate's structured logger, grounded on the
// teacher's system/runtime/lib/logging package: one append-only log file,
// one line per event, a component tag, an outcome, and a severity score.
// The Renderer (C5) is a short-lived, one-shot process with nothing to
// later drain an in-memory buffer, so it is simply given a nil Logger
// (every method is nil-receiver-safe) rather than any disk-touching
// logger on its hot path; only the Runner and Broker log through a real
// one.
package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Severity mirrors the teacher's health-impact scoring: a small signed
// score so operators can eyeball a log tail for how rough things have been,
// without needing a separate metrics pipeline.
type Severity int

const (
	SeverityInfo     Severity = 0
	SeverityWarn     Severity = 1
	SeverityError    Severity = 2
	SeverityCritical Severity = 3
)

func (s Severity) String() string {
	switch s {
	case SeverityWarn:
		return "warn"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "info"
	}
}

// Entry is one structured log line.
type Entry struct {
	Time      time.Time      `json:"time"`
	Component string         `json:"component"`
	Event     string         `json:"event"`
	Severity  string         `json:"severity"`
	Detail    map[string]any `json:"detail,omitempty"`
}

const maxLogSizeBytes = 10 * 1024 * 1024
const maxRotations = 5

// Logger writes Entries to a single append-only file, rotating it past
// maxLogSizeBytes the same way the teacher's writing.go does: shift
// file.log.1..4 up by one, drop .5, move current to .1.
type Logger struct {
	component string
	path      string
	mu        sync.Mutex
}

// New returns a Logger for component, appending to path. path may be
// empty, in which case Logger silently discards (used by the Renderer's
// zero-config fallback).
func New(component, path string) *Logger {
	return &Logger{component: component, path: path}
}

func (l *Logger) rotateIfNeeded() {
	if l.path == "" {
		return
	}
	info, err := os.Stat(l.path)
	if err != nil || info.Size() < maxLogSizeBytes {
		return
	}
	oldest := fmt.Sprintf("%s.%d", l.path, maxRotations)
	os.Remove(oldest)
	for i := maxRotations - 1; i >= 1; i-- {
		cur := fmt.Sprintf("%s.%d", l.path, i)
		next := fmt.Sprintf("%s.%d", l.path, i+1)
		if _, err := os.Stat(cur); err == nil {
			os.Rename(cur, next)
		}
	}
	os.Rename(l.path, l.path+".1")
}

func (l *Logger) write(severity Severity, event string, detail map[string]any) {
	if l == nil || l.path == "" {
		return
	}
	entry := Entry{
		Time:      time.Now(),
		Component: l.component,
		Event:     event,
		Severity:  severity.String(),
		Detail:    detail,
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.rotateIfNeeded()
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: open %s: %v\n", l.path, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		fmt.Fprintf(os.Stderr, "telemetry: write %s: %v\n", l.path, err)
	}
}

func (l *Logger) Info(event string, detail map[string]any)     { l.write(SeverityInfo, event, detail) }
func (l *Logger) Warn(event string, detail map[string]any)     { l.write(SeverityWarn, event, detail) }
func (l *Logger) Error(event string, detail map[string]any)    { l.write(SeverityError, event, detail) }
func (l *Logger) Critical(event string, detail map[string]any) { l.write(SeverityCritical, event, detail) }
