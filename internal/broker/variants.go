package broker

import (
	"encoding/json"
	"time"

	"statusline/internal/cachestore"
	"statusline/internal/format"
)

// finalize implements spec.md §4.4 step 5: derive overall status from the
// merged alerts, bake one pre-rendered variant per supported width, and
// set the single-line fallback. The Renderer only ever looks these up.
func (b *Broker) finalize(health *cachestore.SessionHealth) {
	health.OverallStatus = deriveOverallStatus(health.Alerts)

	fields := buildFields(health)
	health.Variants = make(map[int]string, len(format.Widths))
	for _, w := range format.Widths {
		health.Variants[w] = format.Render(w, fields)
	}
	health.SingleLine = format.SingleLine(fields)
	health.UpdatedAt = time.Now()
}

func deriveOverallStatus(alerts []cachestore.Alert) string {
	hasWarning := false
	for _, a := range alerts {
		switch a.Severity {
		case "critical":
			return "critical"
		case "warning":
			hasWarning = true
		}
	}
	if hasWarning {
		return "warning"
	}
	return "healthy"
}

// buildFields flattens a SessionHealth's raw per-source JSON into the
// format package's presentation-ready Fields. It never computes a
// freshness indicator: those stay tokens in the baked variant and are
// resolved by the Renderer at render time (spec.md's data model
// invariant - staleness is never derived from anything but a fresh read
// of fetched_at against the current wall clock).
func buildFields(health *cachestore.SessionHealth) format.Fields {
	f := format.Fields{
		Model:         health.Model,
		WorkingDir:    health.WorkingDir,
		ContextTokens: health.ContextTokens,
	}

	if e, ok := health.Sources["git"]; ok {
		var v struct {
			Branch string
			Dirty  bool
			Ahead  int
			Behind int
		}
		if json.Unmarshal(e.Value, &v) == nil {
			f.GitBranch, f.GitDirty, f.GitAhead, f.GitBehind = v.Branch, v.Dirty, v.Ahead, v.Behind
		}
	}
	if e, ok := health.Sources["quota"]; ok {
		var v struct {
			RemainingPercent float64 `json:"remaining_percent"`
		}
		if json.Unmarshal(e.Value, &v) == nil {
			f.QuotaRemainingPct = v.RemainingPercent
		}
	}
	if e, ok := health.Sources["billing"]; ok {
		var v struct {
			TotalCostUSD float64 `json:"total_cost_usd"`
		}
		if json.Unmarshal(e.Value, &v) == nil {
			f.BillingCostUSD = v.TotalCostUSD
		}
	}
	if e, ok := health.Sources["system"]; ok {
		var v struct{ LoadAvg1 float64 }
		if json.Unmarshal(e.Value, &v) == nil {
			f.SystemLoad = v.LoadAvg1
		}
	}
	for _, a := range health.Alerts {
		f.Alerts = append(f.Alerts, a.Message)
	}
	return f
}
