package broker

import (
	"context"
	"errors"
	"time"

	"statusline/internal/cachestore"
	"statusline/internal/coordinator"
	"statusline/internal/coreerrors"
	"statusline/internal/sources"
)

// scopedSources are the Tier 3 sources whose cache entries are subdivided
// by account scope key (spec.md §3: sessions sharing a credential slot
// share quota/billing data). Everything else is host-global.
var scopedSources = map[string]bool{"quota": true, "billing": true}

func scopeKeyFor(sourceID, accountScope string) string {
	if scopedSources[sourceID] {
		return accountScope
	}
	return ""
}

// runTier3 implements spec.md §4.4 step 4 for a single Tier 3 source:
// read the cache entry, consult the Registry for freshness, and only
// reach for the Coordinator when the cached value is actually stale.
func (b *Broker) runTier3(ctx context.Context, gctx sources.GatherContext, s sources.Source, accountScope string, health *cachestore.SessionHealth) {
	now := time.Now()
	contextKey := scopeKeyFor(s.ID, accountScope)
	global := b.store.ReadGlobal()
	key := cachestore.EntryKey(s.ID, contextKey)
	entry, cached := global.Entries[key]

	if cached && b.registry.IsFresh(entry.FetchedAt, now, s.Category) {
		s.Merge(health, entry.Value, entry.FetchedAt)
		return
	}

	// The cached entry (if any) is stale or absent: record that this
	// category needs a refresh before attempting to acquire it, so a
	// HeldBy/failed-acquire caller's ContextAwareIndicator can still see
	// how long the refresh has been needed even if this process never
	// becomes the one that fetches it.
	if err := b.coord.SignalNeed(s.Category); err != nil {
		b.log.Warn("coordinator_signal_need_failed", map[string]any{"category": s.Category, "error": err.Error()})
	}

	result, _, err := b.coord.TryAcquire(s.Category)
	if err != nil {
		b.log.Warn("coordinator_acquire_failed", map[string]any{"category": s.Category, "error": err.Error()})
		if cached {
			s.Merge(health, entry.Value, entry.FetchedAt)
		}
		return
	}

	switch result {
	case coordinator.AcquiredByMe:
		b.fetchAndRelease(gctx, s, contextKey, entry, cached, global, health)
	case coordinator.HeldBy:
		if advanced, ok := b.waitForAdvance(ctx, key, entry.FetchedAt); ok {
			s.Merge(health, advanced.Value, advanced.FetchedAt)
		} else if cached {
			s.Merge(health, entry.Value, entry.FetchedAt)
		}
	}
}

// fetchAndRelease runs source.fetch under the acquired in-progress
// marker and always releases it (success clears the intent marker too,
// failure leaves it so the next invocation retries) - spec.md §4.4 step
// 4.3's AcquiredByMe branch.
func (b *Broker) fetchAndRelease(gctx sources.GatherContext, s sources.Source, contextKey string, entry cachestore.Entry, cached bool, global cachestore.GlobalCache, health *cachestore.SessionHealth) {
	fctx, cancel := context.WithTimeout(gctx.Ctx, s.Timeout)
	defer cancel()
	local := gctx
	local.Ctx = fctx

	v, err := s.Fetch(local)
	if err != nil {
		detail := map[string]any{"source": s.ID, "error": err.Error()}
		var ce *coreerrors.Error
		if errors.As(err, &ce) {
			detail["kind"] = ce.Kind.String()
		}
		b.log.Warn("tier3_fetch_failed", detail)
		if relErr := b.coord.Release(s.Category, coordinator.OutcomeFailure); relErr != nil {
			b.log.Warn("coordinator_release_failed", map[string]any{"category": s.Category, "error": relErr.Error()})
		}
		if cached {
			s.Merge(health, entry.Value, entry.FetchedAt)
		}
		return
	}

	fetchedAt := time.Now()
	updated, changed := cachestore.UpsertSource(global, s.ID, v, fetchedAt, contextKey)
	if changed {
		if err := b.store.WriteGlobal(updated); err != nil {
			b.log.Warn("write_global_failed", map[string]any{"source": s.ID, "error": err.Error()})
		}
	}
	if relErr := b.coord.Release(s.Category, coordinator.OutcomeSuccess); relErr != nil {
		b.log.Warn("coordinator_release_failed", map[string]any{"category": s.Category, "error": relErr.Error()})
	}
	s.Merge(health, v, fetchedAt)
}

// waitForAdvance waits for up to heldByWaitBound (capped by ctx's own
// deadline) for a fresher entry than since to land under key - the "wait
// briefly ... re-read the cache entry" half of spec.md §4.4 step 4.3's
// HeldBy branch. Each wait slice is the Store's fsnotify-backed
// WaitForGlobalCacheWrite, which wakes as soon as the holder's rename
// lands instead of sleep-polling on a fixed tick; a write to some other
// key just means another lap around the loop.
func (b *Broker) waitForAdvance(ctx context.Context, key string, since time.Time) (cachestore.Entry, bool) {
	bound := heldByWaitBound
	if dl, ok := ctx.Deadline(); ok {
		if remaining := time.Until(dl); remaining < bound {
			bound = remaining
		}
	}
	deadlineAt := time.Now().Add(bound)
	for {
		global := b.store.ReadGlobal()
		if e, ok := global.Entries[key]; ok && e.FetchedAt.After(since) {
			return e, true
		}
		remaining := time.Until(deadlineAt)
		if remaining <= 0 || ctx.Err() != nil {
			return cachestore.Entry{}, false
		}
		slice := pollInterval
		if remaining < slice {
			slice = remaining
		}
		b.store.WaitForGlobalCacheWrite(slice)
	}
}
