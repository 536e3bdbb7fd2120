// Package format renders a SessionHealth snapshot into the width-bucketed
// strings spec.md §3/§9 calls pre-rendered variants. It is shared by C4
// (which bakes a variant per width at the end of every gather cycle) and
// C5 (which falls back to calling Render directly when stdin overrides a
// cached field - spec.md §4.5 step 3's "fallback formatting path").
//
// Grounded on the progressive-detail-by-width layout of the teacher's
// statusline/lib/display/formatting.go, generalized from its fixed
// segment list to a data-driven Fields struct.
//
// Render never computes a staleness indicator or an elapsed-time display
// itself - spec.md's data model invariant is explicit that those are
// derived client-side at render time from fetched_at, never stored
// alongside a baked value. Render instead emits fixed tokens
// (QuotaIndicatorToken, BillingIndicatorToken, CountdownToken) at the
// positions those glyphs belong; the Renderer substitutes them
// immediately before writing to standard output, using whatever
// fetched_at it reads at that moment - which may be long after the
// variant was baked.
package format

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"

	"statusline/internal/freshness"
)

// Widths is the fixed set of terminal-width buckets a gather cycle
// pre-renders a variant for (spec.md §3).
var Widths = []int{40, 60, 80, 100, 120, 150, 200}

// Tokens mark positions a baked variant defers to render time. They use
// NUL-delimited sentinels so they can never collide with rendered text.
const (
	QuotaIndicatorToken   = "\x00quota-indicator\x00"
	BillingIndicatorToken = "\x00billing-indicator\x00"
	CountdownToken        = "\x00countdown\x00"
)

// Fields is the flattened, presentation-ready view of a SessionHealth
// record that Render/SingleLine consume. Building it from the raw
// session health record is the caller's job (internal/broker for the
// gather-time bake, internal/render for the stdin-override fallback).
// It deliberately carries no indicator or countdown fields: those are
// resolved by the Renderer after token substitution, never baked here.
type Fields struct {
	Model             string
	WorkingDir        string
	ContextTokens     int
	GitBranch         string
	GitDirty          bool
	GitAhead          int
	GitBehind         int
	QuotaRemainingPct float64
	BillingCostUSD    float64
	SystemLoad        float64
	Alerts            []string
}

// IndicatorGlyph maps a freshness.Indicator to the symbol the Renderer
// substitutes for a token: nothing for fresh, a plain marker for stale,
// an emphatic marker for critical.
func IndicatorGlyph(i freshness.Indicator) string {
	switch i {
	case freshness.IndicatorCritical:
		return "!!"
	case freshness.IndicatorStale:
		return "~"
	default:
		return ""
	}
}

// shortenPath keeps the final path segment and prefixes it with an
// ellipsis once the full path would exceed maxLen, the same tradeoff the
// teacher's path-shortening presentation concern makes.
func shortenPath(path string, maxLen int) string {
	if maxLen < 4 || len(path) <= maxLen {
		return path
	}
	parts := strings.Split(strings.TrimRight(path, "/"), "/")
	if len(parts) <= 1 {
		return path
	}
	return ".../" + parts[len(parts)-1]
}

// Render produces the variant string for the given width bucket. Detail
// is added progressively as width grows: git status at 60+, quota at
// 80+, billing at 100+, system load at 120+, merged alerts at 150+.
// Quota/billing indicators and the billing countdown are left as tokens.
func Render(width int, f Fields) string {
	var b strings.Builder
	b.WriteString(shortenPath(f.WorkingDir, width/3))
	if f.Model != "" {
		fmt.Fprintf(&b, " [%s]", f.Model)
	}
	if f.ContextTokens > 0 {
		fmt.Fprintf(&b, " %s tok", humanize.Comma(int64(f.ContextTokens)))
	}
	if width >= 60 && f.GitBranch != "" {
		dirty := ""
		if f.GitDirty {
			dirty = "*"
		}
		fmt.Fprintf(&b, " git:%s%s", f.GitBranch, dirty)
		if f.GitAhead > 0 || f.GitBehind > 0 {
			fmt.Fprintf(&b, " (+%d/-%d)", f.GitAhead, f.GitBehind)
		}
	}
	if width >= 80 {
		fmt.Fprintf(&b, " quota:%.0f%%%s", f.QuotaRemainingPct, QuotaIndicatorToken)
	}
	if width >= 100 {
		fmt.Fprintf(&b, " $%s%s %s", humanize.FormatFloat("#,###.##", f.BillingCostUSD), BillingIndicatorToken, CountdownToken)
	}
	if width >= 120 {
		fmt.Fprintf(&b, " load:%.1f", f.SystemLoad)
	}
	if width >= 150 && len(f.Alerts) > 0 {
		fmt.Fprintf(&b, " ⚠ %s", strings.Join(f.Alerts, "; "))
	}
	return b.String()
}

// SingleLine is the always-present minimal fallback (spec.md §4.5 step
// 2's "zero or absent width -> single-line mode"): just the shortened
// working directory and model, no tiered detail, no tokens to resolve.
func SingleLine(f Fields) string {
	line := shortenPath(f.WorkingDir, 24)
	if f.Model != "" {
		line += " [" + f.Model + "]"
	}
	return line
}
