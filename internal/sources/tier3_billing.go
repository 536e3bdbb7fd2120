package sources

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"statusline/internal/cachestore"
	"statusline/internal/coreerrors"
)

// billingValue is what this module expects the external daily-billing
// sampler to print as a single line of JSON on stdout. The exact tool is
// out of scope (spec.md §1); this is the contract the core consumes.
type billingValue struct {
	TotalCostUSD          float64 `json:"total_cost_usd"`
	BudgetRemainingMin    int     `json:"budget_remaining_minutes"`
}

const defaultBillingCmdEnv = "STATUSLINE_BILLING_CMD"

var errBillingTimedOut = errors.New("billing sampler timed out")

// runSampler demonstrates the subprocess discipline spec.md §4.4 requires
// of any source that delegates fetching to an external script: stderr is
// captured (never discarded), the exit status is always inspected, a
// bounded stderr tail is kept for logging, and a hard wall-clock is
// enforced with the timeout itself treated as a fetch failure.
func runSampler(ctx context.Context, command string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("empty billing sampler command")
	}
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	var stderr strings.Builder
	cmd.Stderr = &stderr

	out, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, coreerrors.New(coreerrors.KindFetch, "sampler", errBillingTimedOut)
	}
	if err != nil {
		tail := stderr.String()
		if len(tail) > 200 {
			tail = tail[len(tail)-200:]
		}
		return nil, coreerrors.New(coreerrors.KindFetch, "sampler", &samplerError{command: command, cause: err, stderrTail: tail})
	}
	return out, nil
}

type samplerError struct {
	command    string
	cause      error
	stderrTail string
}

func (e *samplerError) Error() string {
	return "billing sampler " + e.command + " failed: " + e.cause.Error() + " (stderr: " + e.stderrTail + ")"
}

func (e *samplerError) Unwrap() error { return e.cause }

func billingSource() Source {
	return Source{
		ID:       "billing",
		Tier:     TierGlobal,
		Category: "billing_ccusage",
		Timeout:  20 * time.Second,
		Fetch: func(g GatherContext) (any, error) {
			command := os.Getenv(defaultBillingCmdEnv)
			if command == "" {
				return billingValue{}, nil
			}
			out, err := runSampler(g.Ctx, command, 20*time.Second)
			if err != nil {
				return nil, err
			}
			var v billingValue
			if err := json.Unmarshal(out, &v); err != nil {
				return nil, err
			}
			return v, nil
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := decode[billingValue](value)
			if !ok {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["billing"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
		},
	}
}
