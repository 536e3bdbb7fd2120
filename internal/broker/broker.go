// Package broker implements C4, the Data-Source Broker: one end-to-end
// gather cycle per session, orchestrating the three source tiers against
// C1 (internal/freshness), C2 (internal/coordinator), and C3
// (internal/cachestore) per spec.md §4.4.
//
// Grounded on the gather-cycle shape of the teacher's
// statusline/lib/orchestrator.go (tiered fetch, single deadline,
// write-through cache), rebuilt around the cross-process Coordinator
// this module's domain requires in place of the teacher's in-process
// sync.Once memoization.
package broker

import (
	"context"
	"time"

	"statusline/internal/cachestore"
	"statusline/internal/coordinator"
	"statusline/internal/freshness"
	"statusline/internal/session"
	"statusline/internal/sources"
	"statusline/internal/telemetry"
)

// DefaultDeadline is the gather cycle's hard wall-clock ceiling, the
// literal default spec.md §4.4 names ("default 20s, configurable").
const DefaultDeadline = 20 * time.Second

// heldByWaitBound bounds how long a Broker that finds a Tier 3 category
// HeldBy another live process waits before falling back to the stale
// cached value (spec.md §4.4 step 4.2: "bounded; typically <= 3s or
// until deadline").
const heldByWaitBound = 3 * time.Second

// pollInterval is how often a HeldBy wait re-reads the global cache
// looking for the holder's write to land.
const pollInterval = 150 * time.Millisecond

// Input is one gather cycle's parameters (spec.md §4.4: "session_id,
// stdin_payload, existing_health?, deadline").
type Input struct {
	SessionID      string
	WorkingDir     string
	TranscriptPath string
	Model          string
	ContextWindow  sources.ContextWindow
	Deadline       time.Duration
}

// Broker runs gather cycles against one Store/Coordinator/Registry,
// invoking every Source in sources.Registry().
type Broker struct {
	store    *cachestore.Store
	coord    *coordinator.Coordinator
	registry *freshness.Registry
	log      *telemetry.Logger
	sources  []sources.Source
}

// New returns a Broker wired to store/coord/registry, using the fixed
// source list sources.Registry() returns.
func New(store *cachestore.Store, coord *coordinator.Coordinator, registry *freshness.Registry, log *telemetry.Logger) *Broker {
	return &Broker{store: store, coord: coord, registry: registry, log: log, sources: sources.Registry()}
}

// Gather runs one end-to-end gather cycle for in.SessionID: Tier 1
// synchronously, Tier 2 concurrently, Tier 3 through the Coordinator,
// then derives overall status, bakes the pre-rendered width variants, and
// writes the session health record through the Store (spec.md §4.4 steps
// 1-6). The Renderer is never invoked from here.
func (b *Broker) Gather(ctx context.Context, in Input) (*cachestore.SessionHealth, error) {
	deadline := in.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	health := b.store.ReadSession(in.SessionID)
	if health == nil {
		health = &cachestore.SessionHealth{SessionID: in.SessionID, Sources: map[string]cachestore.Entry{}}
	}
	if health.Sources == nil {
		health.Sources = map[string]cachestore.Entry{}
	}
	health.WorkingDir = in.WorkingDir
	health.Alerts = nil // every merge step below re-derives what's still current

	gctx := sources.GatherContext{
		Ctx: ctx, SessionID: in.SessionID, WorkingDir: in.WorkingDir,
		TranscriptPath: in.TranscriptPath, Model: in.Model, ContextWindow: in.ContextWindow,
	}
	accountScope := session.AccountScopeKey(in.TranscriptPath)

	var tier1, tier2, tier3 []sources.Source
	for _, s := range b.sources {
		switch s.Tier {
		case sources.TierInstant:
			tier1 = append(tier1, s)
		case sources.TierSession:
			tier2 = append(tier2, s)
		default:
			tier3 = append(tier3, s)
		}
	}

	for _, s := range tier1 {
		if v, err := s.Fetch(gctx); err == nil {
			s.Merge(health, v, time.Now())
		}
	}

	b.runTier2(gctx, tier2, health)

	for _, s := range tier3 {
		b.runTier3(ctx, gctx, s, accountScope, health)
	}

	b.finalize(health)

	if err := b.store.WriteSession(in.SessionID, health); err != nil {
		return health, err
	}
	return health, nil
}
