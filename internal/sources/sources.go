// Package sources implements the source-integration contract of spec.md
// §4.4/§6: each external data producer is wrapped as a Source with a
// declared tier, freshness category, per-fetch timeout, and a pure
// fetch/merge pair. The Broker (internal/broker) is the only caller of
// Fetch and Merge; nothing here talks to the Coordinator or Cache Store
// directly.
package sources

import (
	"context"
	"encoding/json"
	"time"

	"statusline/internal/cachestore"
)

// Tier is one of {instant, session-scoped, globally-shared} (spec.md §3).
// It is a descriptor field read by the Broker to decide how a source may
// be invoked, never a type hierarchy.
type Tier int

const (
	// TierInstant sources are read directly from the stdin payload:
	// never fail, never block.
	TierInstant Tier = iota
	// TierSession sources scan session-local state (transcript, cwd);
	// may take up to a few hundred milliseconds, run concurrently under
	// per-source timeouts.
	TierSession
	// TierGlobal sources reach out to the host or network and must be
	// coordinated via the Refresh-Intent Coordinator to avoid stampedes.
	TierGlobal
)

// GatherContext carries everything a Source's Fetch may need: the raw
// stdin payload fields, the session's working directory/transcript, and
// a context.Context carrying the per-source timeout.
type GatherContext struct {
	Ctx            context.Context
	SessionID      string
	WorkingDir     string
	TranscriptPath string
	Model          string
	ContextWindow  ContextWindow
}

// ContextWindow mirrors the Tier 1 fields consumed straight from stdin
// (spec.md §6).
type ContextWindow struct {
	Size                 int
	InputTokens          int
	OutputTokens         int
	CacheReadInputTokens int
}

// Source is the descriptor contract every data producer implements.
// Fetch may fail; failures never propagate beyond the Broker. Merge is
// pure with respect to the health record it mutates - it only reads
// value and writes into health. fetchedAt is the timestamp the value
// actually became current (the real fetch time on a fresh fetch, or the
// original cache entry's FetchedAt when value is a stale/held-by
// fallback) - Merge must stamp its cache entry with this, never
// time.Now(), or the client-side staleness indicator (internal/render)
// would read a broker-failing source as perpetually fresh.
type Source struct {
	ID        string
	Tier      Tier
	Category  string // freshness category (internal/freshness)
	Timeout   time.Duration
	Fetch     func(GatherContext) (any, error)
	Merge     func(health *cachestore.SessionHealth, value any, fetchedAt time.Time)
}

// decode normalizes a Merge call's value argument to T. The Broker passes
// Merge either the struct a Fetch call just returned (case T) or a
// json.RawMessage read back out of the global cache on a cache-hit or
// held-by path (spec.md §4.4 step 4.2) - Merge implementations decode
// either uniformly rather than branching on which path produced value.
func decode[T any](value any) (T, bool) {
	switch v := value.(type) {
	case T:
		return v, true
	case json.RawMessage:
		var out T
		if err := json.Unmarshal(v, &out); err != nil {
			var zero T
			return zero, false
		}
		return out, true
	default:
		var zero T
		return zero, false
	}
}

// Registry is the fixed list of sources this build wires up, grouped by
// tier per SPEC_FULL.md §12.
func Registry() []Source {
	var all []Source
	all = append(all, tier1Sources()...)
	all = append(all, tier2Sources()...)
	all = append(all, tier3Sources()...)
	return all
}
