package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"

	"statusline/internal/freshness"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load(\"\", nil): %v", err)
	}
	if cfg.CacheBase == "" {
		t.Error("CacheBase should default to a non-empty path")
	}
	if cfg.GatherDeadlineMS != 20_000 {
		t.Errorf("GatherDeadlineMS = %d, want 20000", cfg.GatherDeadlineMS)
	}
	if len(cfg.Categories) == 0 {
		t.Error("Categories should default to freshness.DefaultCategories()")
	}
}

func TestLoadFromYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "cache_base: /custom/base\ngather_deadline_ms: 5000\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheBase != "/custom/base" {
		t.Errorf("CacheBase = %q, want /custom/base", cfg.CacheBase)
	}
	if cfg.GatherDeadlineMS != 5000 {
		t.Errorf("GatherDeadlineMS = %d, want 5000", cfg.GatherDeadlineMS)
	}
}

func TestLoadMissingConfigFileIsNotAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	if err != nil {
		t.Fatalf("an absent config file should be silently skipped, got %v", err)
	}
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	t.Setenv("STATUSLINE_CACHE_BASE", "/env/base")
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheBase != "/env/base" {
		t.Errorf("CacheBase = %q, want /env/base (from env)", cfg.CacheBase)
	}
}

func TestLoadFlagsOverrideEnv(t *testing.T) {
	t.Setenv("STATUSLINE_CACHE_BASE", "/env/base")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("cache_base", "/flag/base", "")
	if err := fs.Set("cache_base", "/flag/base"); err != nil {
		t.Fatalf("fs.Set: %v", err)
	}

	cfg, err := Load("", fs)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheBase != "/flag/base" {
		t.Errorf("CacheBase = %q, want /flag/base (flags beat env)", cfg.CacheBase)
	}
}

func TestLoadRejectsInvalidThresholdOrdering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := "categories:\n  quota_broker:\n    freshms: 1000\n    stalems: 500\n    criticalms: 2000\n"
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := Load(path, nil)
	if err == nil {
		t.Fatal("a category with stale < fresh should fail the fresh<stale<critical invariant check")
	}
}

func TestLoadMergesCategoriesFileOverrides(t *testing.T) {
	dir := t.TempDir()
	catPath := filepath.Join(dir, "categories.yaml")
	catDoc := "quota_broker:\n  fresh_ms: 1000\n  stale_ms: 2000\n  critical_ms: 3000\n"
	if err := os.WriteFile(catPath, []byte(catDoc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfgPath := filepath.Join(dir, "config.yaml")
	cfgDoc := "categories_file: " + catPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(cfgDoc), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(cfgPath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := freshness.Thresholds{FreshMS: 1000, StaleMS: 2000, CriticalMS: 3000}
	if cfg.Categories["quota_broker"] != want {
		t.Errorf("quota_broker thresholds = %+v, want %+v (categories_file override)", cfg.Categories["quota_broker"], want)
	}
	// Other default categories should still be present - the override
	// merges, it does not replace the whole map.
	if _, ok := cfg.Categories["git_status"]; !ok {
		t.Error("categories not named in the override file should keep their defaults")
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := Config{GatherDeadlineMS: 1500, RunnerTimeoutMS: 2500, WrapperTimeoutMS: 500}
	if got := cfg.Deadline(); got.Milliseconds() != 1500 {
		t.Errorf("Deadline() = %v, want 1500ms", got)
	}
	if got := cfg.RunnerTimeout(); got.Milliseconds() != 2500 {
		t.Errorf("RunnerTimeout() = %v, want 2500ms", got)
	}
	if got := cfg.WrapperTimeout(); got.Milliseconds() != 500 {
		t.Errorf("WrapperTimeout() = %v, want 500ms", got)
	}
}
