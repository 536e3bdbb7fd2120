package sources

import (
	"time"

	"statusline/internal/cachestore"
)

// modelValue and contextWindowValue are the Tier 1 value shapes: read
// straight off the stdin payload, never fetched, never able to fail.

type modelValue struct {
	DisplayName string `json:"display_name"`
}

type contextWindowValue struct {
	ContextWindow
}

func tier1Sources() []Source {
	return []Source{
		{
			ID:   "model",
			Tier: TierInstant,
			Fetch: func(g GatherContext) (any, error) {
				return modelValue{DisplayName: g.Model}, nil
			},
			Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
				if v, ok := value.(modelValue); ok {
					h.Model = v.DisplayName
				}
			},
		},
		{
			ID:   "context",
			Tier: TierInstant,
			Fetch: func(g GatherContext) (any, error) {
				return contextWindowValue{g.ContextWindow}, nil
			},
			Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
				if v, ok := value.(contextWindowValue); ok {
					h.ContextTokens = v.InputTokens + v.OutputTokens + v.CacheReadInputTokens
				}
			},
		},
	}
}
