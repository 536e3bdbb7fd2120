package broker

import (
	"encoding/json"
	"testing"
	"time"

	"statusline/internal/cachestore"
	"statusline/internal/format"
)

func TestDeriveOverallStatus(t *testing.T) {
	cases := []struct {
		name   string
		alerts []cachestore.Alert
		want   string
	}{
		{"no alerts", nil, "healthy"},
		{"one warning", []cachestore.Alert{{Severity: "warning"}}, "warning"},
		{"one critical", []cachestore.Alert{{Severity: "critical"}}, "critical"},
		{"warning then critical", []cachestore.Alert{{Severity: "warning"}, {Severity: "critical"}}, "critical"},
		{"unknown severity treated as non-blocking", []cachestore.Alert{{Severity: "unknown"}}, "healthy"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := deriveOverallStatus(c.alerts); got != c.want {
				t.Errorf("deriveOverallStatus(%v) = %q, want %q", c.alerts, got, c.want)
			}
		})
	}
}

func TestBuildFieldsFlattensSources(t *testing.T) {
	gitRaw, _ := json.Marshal(map[string]any{"Branch": "main", "Dirty": true, "Ahead": 1, "Behind": 0})
	quotaRaw, _ := json.Marshal(map[string]any{"remaining_percent": 55.0})
	billingRaw, _ := json.Marshal(map[string]any{"total_cost_usd": 2.5})
	systemRaw, _ := json.Marshal(map[string]any{"LoadAvg1": 0.5})

	health := &cachestore.SessionHealth{
		Model:         "opus",
		WorkingDir:    "/p",
		ContextTokens: 42,
		Sources: map[string]cachestore.Entry{
			"git":     {Value: gitRaw},
			"quota":   {Value: quotaRaw},
			"billing": {Value: billingRaw},
			"system":  {Value: systemRaw},
		},
		Alerts: []cachestore.Alert{{Message: "low disk"}},
	}

	f := buildFields(health)
	if f.Model != "opus" || f.WorkingDir != "/p" || f.ContextTokens != 42 {
		t.Errorf("base fields not copied correctly: %+v", f)
	}
	if f.GitBranch != "main" || !f.GitDirty || f.GitAhead != 1 {
		t.Errorf("git fields not flattened correctly: %+v", f)
	}
	if f.QuotaRemainingPct != 55.0 {
		t.Errorf("QuotaRemainingPct = %v, want 55.0", f.QuotaRemainingPct)
	}
	if f.BillingCostUSD != 2.5 {
		t.Errorf("BillingCostUSD = %v, want 2.5", f.BillingCostUSD)
	}
	if f.SystemLoad != 0.5 {
		t.Errorf("SystemLoad = %v, want 0.5", f.SystemLoad)
	}
	if len(f.Alerts) != 1 || f.Alerts[0] != "low disk" {
		t.Errorf("Alerts = %v, want [\"low disk\"]", f.Alerts)
	}
}

func TestBuildFieldsToleratesMissingSources(t *testing.T) {
	health := &cachestore.SessionHealth{Model: "opus"}
	f := buildFields(health)
	if f.GitBranch != "" || f.QuotaRemainingPct != 0 || f.BillingCostUSD != 0 {
		t.Errorf("absent sources should leave their fields zero-valued, got %+v", f)
	}
}

func TestFinalizeBakesAllWidthsAndSingleLine(t *testing.T) {
	b := &Broker{}
	health := &cachestore.SessionHealth{
		Model:      "opus",
		WorkingDir: "/home/user/project",
	}
	b.finalize(health)

	if health.OverallStatus != "healthy" {
		t.Errorf("OverallStatus = %q, want healthy", health.OverallStatus)
	}
	if len(health.Variants) != len(format.Widths) {
		t.Errorf("baked %d variants, want %d", len(health.Variants), len(format.Widths))
	}
	for _, w := range format.Widths {
		if _, ok := health.Variants[w]; !ok {
			t.Errorf("missing baked variant for width %d", w)
		}
	}
	if health.SingleLine == "" {
		t.Error("SingleLine should always be set")
	}
	if health.UpdatedAt.IsZero() {
		t.Error("UpdatedAt should be stamped by finalize")
	}
	if time.Since(health.UpdatedAt) > 5*time.Second {
		t.Error("UpdatedAt should reflect the current time")
	}
}
