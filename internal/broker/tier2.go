package broker

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"statusline/internal/cachestore"
	"statusline/internal/sources"
)

// tier2MaxRetries bounds the soft-timeout retry backoff.ExponentialBackOff
// runs inside a single Tier 2 source's fetch window - session-scoped
// sources read local, fast-changing state (a transcript mid-write, a git
// index mid-update), so one immediate retry after a short jittered delay
// clears most of what would otherwise show up as a spurious fetch
// failure, without meaningfully eating into the per-source timeout.
const tier2MaxRetries = 2

// runTier2 fetches every Tier 2 source concurrently, each under its own
// per-source timeout derived from the cycle's deadline (spec.md §4.4 step
// 3). Tier 2 sources are session-local and re-scanned every cycle; they
// carry no cache entry and never go through the Coordinator.
func (b *Broker) runTier2(gctx sources.GatherContext, tier2 []sources.Source, health *cachestore.SessionHealth) {
	type result struct {
		s   sources.Source
		v   any
		err error
	}
	results := make(chan result, len(tier2))
	for _, s := range tier2 {
		s := s
		go func() {
			fctx, cancel := context.WithTimeout(gctx.Ctx, s.Timeout)
			defer cancel()
			local := gctx
			local.Ctx = fctx
			v, err := fetchWithRetry(fctx, local, s)
			results <- result{s, v, err}
		}()
	}
	for range tier2 {
		r := <-results
		if r.err != nil {
			b.log.Warn("tier2_fetch_failed", map[string]any{"source": r.s.ID, "error": r.err.Error()})
			continue
		}
		r.s.Merge(health, r.v, time.Now())
	}
}

// fetchWithRetry runs s.Fetch under a bounded exponential backoff, all
// within fctx's own deadline - a retry that would run past the
// per-source timeout simply never gets attempted, since backoff.Retry
// stops the moment the context it's wrapped with is done.
func fetchWithRetry(fctx context.Context, gctx sources.GatherContext, s sources.Source) (any, error) {
	var v any
	var err error

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = 20 * time.Millisecond
	eb.Multiplier = 2
	eb.MaxInterval = 100 * time.Millisecond

	bo := backoff.WithContext(backoff.WithMaxRetries(eb, tier2MaxRetries), fctx)

	_ = backoff.Retry(func() error {
		v, err = s.Fetch(gctx)
		return err
	}, bo)

	return v, err
}
