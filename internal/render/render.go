// Package render implements C5, the Display Renderer: a read-only,
// bounded-latency path with a hard contract (spec.md §4.5) - no
// subprocess, no network, no lock, one bounded file read per known path,
// one write to standard output, well under 10ms.
//
// Grounded on the teacher's statusline/statusline.go orchestration loop
// (stdin JSON -> assemble -> stdout), generalized from its inline
// library calls to a cache-lookup-then-format pipeline, since this
// module's Renderer must never itself gather data.
package render

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"statusline/internal/cachestore"
	"statusline/internal/coordinator"
	"statusline/internal/format"
	"statusline/internal/freshness"
	"statusline/internal/paths"
)

// TerminalWidthEnv is the environment variable the entry wrapper sets to
// the caller's terminal width; zero or absent means single-line mode
// (spec.md §4.5 step 2).
const TerminalWidthEnv = "STATUSLINE_TERM_WIDTH"

// loadingMarker flags a brand new session whose health record doesn't
// exist yet (spec.md §4.5 step 3's "not found" branch).
const loadingMarker = "…"

// Renderer is C5. It loads cached state through a Store scoped to its
// own Layout and never performs I/O beyond that bounded read.
type Renderer struct {
	store    *cachestore.Store
	registry *freshness.Registry
	coord    *coordinator.Coordinator
}

// New returns a Renderer backed by a Store rooted at layout. The Store
// is given a nil telemetry.Logger deliberately - the Renderer's latency
// budget rules out a disk-backed logger on its hot path, and nothing
// here is expected to fail loudly enough to need one. The Coordinator is
// only ever used for its IntentAge stat call (never TryAcquire/Release -
// the Renderer must never join the single-flight protocol itself).
func New(layout paths.Layout, registry *freshness.Registry) *Renderer {
	return &Renderer{store: cachestore.New(layout, nil, 8), registry: registry, coord: coordinator.New(layout)}
}

// Run executes the full algorithm against stdin and stdout, recovering
// any panic into a one-character warning token (spec.md §4.5: "the user
// sees something, the host CLI never hangs").
func (rd *Renderer) Run(stdin io.Reader, stdout io.Writer) {
	defer func() {
		if recover() != nil {
			fmt.Fprint(stdout, "?")
		}
	}()
	fmt.Fprint(stdout, rd.Render(stdin, os.Getenv(TerminalWidthEnv)))
}

// Render runs the algorithm against an explicit stdin reader and width
// environment value, returning the line to print. Exported for test and
// for callers that want the string without writing it themselves.
func (rd *Renderer) Render(stdin io.Reader, widthEnvValue string) string {
	payload, ok := parsePayload(stdin)
	if !ok {
		return applyColor("", healthyStatus, minimalLine(Payload{}))
	}

	width := parseWidth(widthEnvValue)
	now := time.Now()

	health := rd.store.ReadSession(payload.SessionID)
	if health == nil {
		return applyColor(payload.ModelName(), healthyStatus, rd.newSessionLine(payload))
	}

	var line string
	if payload.overridesCache(health.WorkingDir, health.Model, health.ContextTokens) {
		line = rd.reRender(payload, health, width)
	} else {
		var ok bool
		line, ok = health.Variants[width]
		if !ok {
			line = health.SingleLine
		}
	}

	line = rd.resolveTokens(line, health, now)
	return applyColor(payload.ModelName(), health.OverallStatus, line)
}

// parsePayload best-effort-parses the stdin JSON payload. Parse failure
// is not an error condition the caller propagates - spec.md §4.5 step 1
// requires falling back to a minimal line and exiting successfully.
func parsePayload(r io.Reader) (Payload, bool) {
	var p Payload
	dec := json.NewDecoder(bufio.NewReader(io.LimitReader(r, 1<<20)))
	if err := dec.Decode(&p); err != nil {
		return Payload{}, false
	}
	return p, true
}

// parseWidth reads the width env var; zero, absent, or unparseable all
// mean single-line mode per spec.md §4.5 step 2.
func parseWidth(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0
	}
	for _, w := range format.Widths {
		if n <= w {
			return w
		}
	}
	return format.Widths[len(format.Widths)-1]
}

func minimalLine(p Payload) string {
	line := p.WorkingDir()
	if line == "" {
		line = "?"
	}
	if p.ModelName() != "" {
		line += " [" + p.ModelName() + "]"
	}
	return line
}

// newSessionLine constructs the "not found" branch of spec.md §4.5 step
// 3: a minimal line from stdin plus any global-cache fallback values
// (most recent billing/quota), tagged with a small loading marker.
func (rd *Renderer) newSessionLine(p Payload) string {
	global := rd.store.ReadGlobal()
	line := minimalLine(p)
	if e, ok := global.Entries["quota"]; ok {
		var v struct {
			RemainingPercent float64 `json:"remaining_percent"`
		}
		if json.Unmarshal(e.Value, &v) == nil {
			line += fmt.Sprintf(" quota:%.0f%%", v.RemainingPercent)
		}
	}
	return line + " " + loadingMarker
}

// reRender is the fallback formatting path (spec.md §4.5 step 3,
// "found but stdin overrides"): the cached variants were baked for the
// cached inputs, so overridden fields require formatting on the spot
// from the cached values merged with the stdin overrides.
func (rd *Renderer) reRender(p Payload, health *cachestore.SessionHealth, width int) string {
	fields := format.Fields{
		Model:         health.Model,
		WorkingDir:    health.WorkingDir,
		ContextTokens: health.ContextTokens,
	}
	if p.WorkingDir() != "" {
		fields.WorkingDir = p.WorkingDir()
	}
	if p.ModelName() != "" {
		fields.Model = p.ModelName()
	}
	if tokens := p.ContextWindow(); tokens.InputTokens+tokens.OutputTokens+tokens.CacheReadInputTokens > 0 {
		fields.ContextTokens = tokens.InputTokens + tokens.OutputTokens + tokens.CacheReadInputTokens
	}
	rehydrateSourceFields(&fields, health)

	if width == 0 {
		return format.SingleLine(fields)
	}
	return format.Render(width, fields)
}

func rehydrateSourceFields(fields *format.Fields, health *cachestore.SessionHealth) {
	if e, ok := health.Sources["git"]; ok {
		var v struct {
			Branch string
			Dirty  bool
			Ahead  int
			Behind int
		}
		if json.Unmarshal(e.Value, &v) == nil {
			fields.GitBranch, fields.GitDirty, fields.GitAhead, fields.GitBehind = v.Branch, v.Dirty, v.Ahead, v.Behind
		}
	}
	if e, ok := health.Sources["quota"]; ok {
		var v struct {
			RemainingPercent float64 `json:"remaining_percent"`
		}
		if json.Unmarshal(e.Value, &v) == nil {
			fields.QuotaRemainingPct = v.RemainingPercent
		}
	}
	if e, ok := health.Sources["billing"]; ok {
		var v struct {
			TotalCostUSD float64 `json:"total_cost_usd"`
		}
		if json.Unmarshal(e.Value, &v) == nil {
			fields.BillingCostUSD = v.TotalCostUSD
		}
	}
	if e, ok := health.Sources["system"]; ok {
		var v struct{ LoadAvg1 float64 }
		if json.Unmarshal(e.Value, &v) == nil {
			fields.SystemLoad = v.LoadAvg1
		}
	}
	for _, a := range health.Alerts {
		fields.Alerts = append(fields.Alerts, a.Message)
	}
}

// resolveTokens implements spec.md §4.5 steps 4-5: apply client-side
// staleness indicators to the quota/billing tokens and a client-side
// age-corrected countdown display, all derived fresh from fetched_at -
// never from anything baked into the variant at gather time.
func (rd *Renderer) resolveTokens(line string, health *cachestore.SessionHealth, now time.Time) string {
	if strings.Contains(line, format.QuotaIndicatorToken) {
		ind := freshness.IndicatorNone
		if e, ok := health.Sources["quota"]; ok {
			ind = rd.contextAwareIndicator(e.FetchedAt, now, "quota_broker")
		}
		line = strings.ReplaceAll(line, format.QuotaIndicatorToken, format.IndicatorGlyph(ind))
	}
	if strings.Contains(line, format.BillingIndicatorToken) {
		ind := freshness.IndicatorNone
		if e, ok := health.Sources["billing"]; ok {
			ind = rd.contextAwareIndicator(e.FetchedAt, now, "billing_ccusage")
		}
		line = strings.ReplaceAll(line, format.BillingIndicatorToken, format.IndicatorGlyph(ind))
	}
	if strings.Contains(line, format.CountdownToken) {
		countdown := "--"
		if e, ok := health.Sources["billing"]; ok {
			var v struct {
				BudgetRemainingMin int `json:"budget_remaining_minutes"`
			}
			if json.Unmarshal(e.Value, &v) == nil {
				countdown = billingCountdown(v.BudgetRemainingMin, e.FetchedAt, now)
			}
		}
		line = strings.ReplaceAll(line, format.CountdownToken, countdown)
	}
	return line
}

// contextAwareIndicator applies spec.md §4.1's context_aware_indicator:
// a live, younger-than-30s intent marker for category means a refresh is
// already in flight, so the plain stale indicator is suppressed; an
// intent marker older than 5 minutes means the refresh loop looks
// broken and the indicator is promoted to critical regardless of the
// plain age-based classification.
func (rd *Renderer) contextAwareIndicator(fetchedAt, now time.Time, category string) freshness.Indicator {
	age, err := rd.coord.IntentAge(category)
	if err != nil {
		age = nil
	}
	return rd.registry.ContextAwareIndicator(fetchedAt, now, category, age)
}
