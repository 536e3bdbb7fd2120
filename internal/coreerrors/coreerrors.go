// Package coreerrors defines the sentinel error kinds shared across the
// freshness-and-coordination substrate. Call sites branch on these with
// errors.Is/errors.As instead of matching error strings, so a source or
// cache failure can be logged, retried, or ignored according to its kind
// without parsing messages.
package coreerrors

import (
	"errors"
	"fmt"
)

// Kind classifies a substrate error into one of the four buckets the
// error-handling design recognizes: fetch, cache format, coordination,
// or renderer.
type Kind int

const (
	// KindFetch marks a Tier 2/3 source fetch that failed or timed out.
	KindFetch Kind = iota
	// KindCacheFormat marks a cache or session-health file that failed
	// to parse or carried an unrecognized schema version.
	KindCacheFormat
	// KindCoordination marks an anomaly in the intent/in-progress
	// marker protocol (e.g. a dead holder, a broken refresh loop).
	KindCoordination
	// KindRenderer marks an unexpected error inside the Renderer's
	// bounded-latency path.
	KindRenderer
)

func (k Kind) String() string {
	switch k {
	case KindFetch:
		return "fetch"
	case KindCacheFormat:
		return "cache_format"
	case KindCoordination:
		return "coordination"
	case KindRenderer:
		return "renderer"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind and the component that
// observed it, so it can travel through logs and be matched structurally.
type Error struct {
	Kind      Kind
	Component string
	Cause     error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s: %s", e.Component, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Component, e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds a substrate Error of the given kind.
func New(kind Kind, component string, cause error) *Error {
	return &Error{Kind: kind, Component: component, Cause: cause}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind == kind
	}
	return false
}
