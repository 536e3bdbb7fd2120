package sources

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"statusline/internal/cachestore"
	"statusline/internal/coreerrors"
)

// quotaValue is the shape this module expects back from the upstream
// quota API. The wire format of that API is explicitly out of scope
// (spec.md §1) - this is the minimal contract the core consumes.
type quotaValue struct {
	RemainingPercent float64 `json:"remaining_percent"`
	ResetsAt         string  `json:"resets_at,omitempty"`
}

const defaultQuotaEndpointEnv = "STATUSLINE_QUOTA_URL"

// quotaSource calls the configured upstream quota endpoint with
// github.com/go-resty/resty/v2, the HTTP client SPEC_FULL.md §11 grounds
// on Andrew50-peripheral's use of resty for its own upstream API client.
// With no endpoint configured it fetches nothing, which the Broker treats
// like any other fetch miss (keep stale cache, release on failure).
func quotaSource() Source {
	client := resty.New().SetTimeout(3 * time.Second)
	return Source{
		ID:       "quota",
		Tier:     TierGlobal,
		Category: "quota_broker",
		Timeout:  3 * time.Second,
		Fetch: func(g GatherContext) (any, error) {
			endpoint := os.Getenv(defaultQuotaEndpointEnv)
			if endpoint == "" {
				return quotaValue{}, nil
			}
			var v quotaValue
			resp, err := client.R().
				SetContext(g.Ctx).
				SetResult(&v).
				Get(endpoint)
			if err != nil {
				return nil, coreerrors.New(coreerrors.KindFetch, "quota", err)
			}
			if resp.IsError() {
				return nil, coreerrors.New(coreerrors.KindFetch, "quota", errStatusf(resp.StatusCode()))
			}
			return v, nil
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := decode[quotaValue](value)
			if !ok {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["quota"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
			if v.RemainingPercent > 0 && v.RemainingPercent < 10 {
				h.Alerts = append(h.Alerts, cachestore.Alert{
					Source: "quota", Severity: "critical",
					Message: "account quota nearly exhausted",
				})
			}
		},
	}
}

func errStatusf(code int) error {
	return fmt.Errorf("quota endpoint returned status %d", code)
}
