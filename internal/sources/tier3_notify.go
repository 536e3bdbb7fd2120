package sources

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"time"

	"statusline/internal/cachestore"
)

// notifyValue carries the user-facing notices this module surfaces from
// a flat, line-oriented notifications file - one message per line,
// blank lines ignored. The file's location is the only contract; its
// producer is out of scope (spec.md §1).
type notifyValue struct {
	Messages []string `json:"messages,omitempty"`
}

const defaultNotifyFileEnv = "STATUSLINE_NOTIFICATIONS_FILE"

const maxNotifyMessages = 3

func notifySource() Source {
	return Source{
		ID:       "notify",
		Tier:     TierGlobal,
		Category: "notifications",
		Timeout:  500 * time.Millisecond,
		Fetch: func(g GatherContext) (any, error) {
			path := os.Getenv(defaultNotifyFileEnv)
			if path == "" {
				return notifyValue{}, nil
			}
			f, err := os.Open(path)
			if err != nil {
				return notifyValue{}, nil // absent file is not a fetch failure
			}
			defer f.Close()

			var msgs []string
			scanner := bufio.NewScanner(f)
			for scanner.Scan() && len(msgs) < maxNotifyMessages {
				select {
				case <-g.Ctx.Done():
					return notifyValue{Messages: msgs}, g.Ctx.Err()
				default:
				}
				line := strings.TrimSpace(scanner.Text())
				if line != "" {
					msgs = append(msgs, line)
				}
			}
			return notifyValue{Messages: msgs}, scanner.Err()
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := decode[notifyValue](value)
			if !ok || len(v.Messages) == 0 {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["notify"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
			for _, m := range v.Messages {
				h.Alerts = append(h.Alerts, cachestore.Alert{
					Source: "notify", Severity: "info", Message: m,
				})
			}
		},
	}
}

func tier3Sources() []Source {
	return []Source{
		systemSource(),
		quotaSource(),
		billingSource(),
		versionSource(),
		notifySource(),
	}
}
