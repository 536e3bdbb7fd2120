package sources

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"statusline/internal/cachestore"
)

// versionValue reports whether a newer CLI release is available. The
// check itself degrades to "unknown" on any failure rather than erroring,
// since a stale version notice is never worth blocking a render over.
type versionValue struct {
	Current   string `json:"current"`
	Latest    string `json:"latest,omitempty"`
	Outdated  bool   `json:"outdated"`
}

const defaultVersionCmdEnv = "STATUSLINE_VERSION_CMD"

// versionSource shells out to a configurable version-check command
// (mirrors the billing sampler's subprocess discipline) whose expected
// output is two whitespace-separated tokens: "<current> <latest>".
func versionSource() Source {
	return Source{
		ID:       "version",
		Tier:     TierGlobal,
		Category: "version_probe",
		Timeout:  2 * time.Second,
		Fetch: func(g GatherContext) (any, error) {
			command := os.Getenv(defaultVersionCmdEnv)
			if command == "" {
				return versionValue{}, nil
			}
			out, err := runSampler(g.Ctx, command, 2*time.Second)
			if err != nil {
				return versionValue{}, nil
			}
			fields := strings.Fields(string(out))
			v := versionValue{}
			if len(fields) > 0 {
				v.Current = fields[0]
			}
			if len(fields) > 1 {
				v.Latest = fields[1]
				v.Outdated = v.Latest != "" && v.Current != "" && v.Latest != v.Current
			}
			return v, nil
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := decode[versionValue](value)
			if !ok {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["version"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
			if v.Outdated {
				h.Alerts = append(h.Alerts, cachestore.Alert{
					Source: "version", Severity: "info",
					Message: "a newer CLI release is available",
				})
			}
		},
	}
}
