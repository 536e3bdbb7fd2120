package sources

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"statusline/internal/cachestore"
)

func findGitSource(t *testing.T) Source {
	t.Helper()
	for _, s := range tier2Sources() {
		if s.ID == "git" {
			return s
		}
	}
	t.Fatal("tier2Sources must include the git source")
	return Source{}
}

func findTranscriptSource(t *testing.T) Source {
	t.Helper()
	for _, s := range tier2Sources() {
		if s.ID == "transcript" {
			return s
		}
	}
	t.Fatal("tier2Sources must include the transcript source")
	return Source{}
}

func TestGitSourceEmptyWorkingDirIsNotAFailure(t *testing.T) {
	s := findGitSource(t)
	v, err := s.Fetch(GatherContext{Ctx: context.Background(), WorkingDir: ""})
	if err != nil {
		t.Fatalf("an empty working dir should never fail the fetch, got %v", err)
	}
	gv, ok := v.(gitValue)
	if !ok || gv.Branch != "" {
		t.Errorf("an empty working dir should yield a zero-value gitValue, got %+v", v)
	}
}

func TestGitSourceNonRepoDirIsNotAFailure(t *testing.T) {
	s := findGitSource(t)
	dir := t.TempDir() // no .git here
	v, err := s.Fetch(GatherContext{Ctx: context.Background(), WorkingDir: dir})
	if err != nil {
		t.Fatalf("a directory with no .git should never fail the fetch, got %v", err)
	}
	gv, ok := v.(gitValue)
	if !ok || gv.Branch != "" {
		t.Errorf("a non-repo dir should yield a zero-value gitValue, got %+v", v)
	}
}

func TestGitSourceMergeSkipsEmptyBranch(t *testing.T) {
	s := findGitSource(t)
	h := &cachestore.SessionHealth{Sources: map[string]cachestore.Entry{}}
	s.Merge(h, gitValue{}, time.Now())
	if _, ok := h.Sources["git"]; ok {
		t.Error("Merge should not write a git entry when the branch is empty (not a repo / detection skipped)")
	}
}

func TestGitSourceMergeWritesEntry(t *testing.T) {
	s := findGitSource(t)
	h := &cachestore.SessionHealth{Sources: map[string]cachestore.Entry{}}
	s.Merge(h, gitValue{Branch: "main", Dirty: true, Ahead: 1}, time.Now())

	entry, ok := h.Sources["git"]
	if !ok {
		t.Fatal("Merge should write a git entry when a branch was detected")
	}
	var v gitValue
	if err := json.Unmarshal(entry.Value, &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Branch != "main" || !v.Dirty || v.Ahead != 1 {
		t.Errorf("round-tripped value = %+v, want Branch=main Dirty=true Ahead=1", v)
	}
}

func TestTranscriptSourceAbsentPathIsNotAFailure(t *testing.T) {
	s := findTranscriptSource(t)
	v, err := s.Fetch(GatherContext{Ctx: context.Background(), TranscriptPath: ""})
	if err != nil {
		t.Fatalf("an empty transcript path should never fail, got %v", err)
	}
	tv, ok := v.(transcriptValue)
	if !ok || tv.TotalCostUSD != 0 {
		t.Errorf("an empty path should yield a zero-value transcriptValue, got %+v", v)
	}
}

func TestTranscriptSourceAggregatesRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	content := `{"cost_usd":0.5,"lines_added":10,"lines_removed":2,"duration_ms":100}
{"cost_usd":0.25,"lines_added":3,"lines_removed":1,"duration_ms":50}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := findTranscriptSource(t)
	v, err := s.Fetch(GatherContext{Ctx: context.Background(), TranscriptPath: path})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	tv := v.(transcriptValue)
	if tv.TotalCostUSD != 0.75 {
		t.Errorf("TotalCostUSD = %v, want 0.75", tv.TotalCostUSD)
	}
	if tv.TotalLines != 16 {
		t.Errorf("TotalLines = %d, want 16", tv.TotalLines)
	}
	if tv.TotalDurationMS != 150 {
		t.Errorf("TotalDurationMS = %d, want 150", tv.TotalDurationMS)
	}
	if tv.LikelySecret {
		t.Error("ordinary transcript records should not trip the secret heuristic")
	}
}

func TestTranscriptSourceFlagsLikelySecret(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "transcript.jsonl")
	content := `{"cost_usd":0.1}
not-json-but-contains sk-abcdef1234567890
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := findTranscriptSource(t)
	v, err := s.Fetch(GatherContext{Ctx: context.Background(), TranscriptPath: path})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !v.(transcriptValue).LikelySecret {
		t.Error("a line containing a secret-shaped token should set LikelySecret")
	}
}

func TestTranscriptSourceMergeAddsAlertOnLikelySecret(t *testing.T) {
	s := findTranscriptSource(t)
	h := &cachestore.SessionHealth{Sources: map[string]cachestore.Entry{}}
	s.Merge(h, transcriptValue{LikelySecret: true}, time.Now())

	if len(h.Alerts) != 1 {
		t.Fatalf("expected exactly one alert, got %d", len(h.Alerts))
	}
	if h.Alerts[0].Severity != "warning" {
		t.Errorf("secret-shaped token alert severity = %q, want warning", h.Alerts[0].Severity)
	}
}
