package sources

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"statusline/internal/cachestore"
)

// gitValue carries the repository status a Tier 2 git source produces.
// Grounded on system/runtime/lib/git.Info's branch/dirty/ahead/behind
// shape, re-fetched here with explicit subprocess discipline (captured
// stderr, bounded timeout) since spec.md §4.4 requires it for any source
// that shells out.
type gitValue struct {
	Branch  string
	Dirty   bool
	Ahead   int
	Behind  int
	Stashes int
}

func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		tail := stderr.String()
		if len(tail) > 200 {
			tail = tail[len(tail)-200:]
		}
		return "", fmt.Errorf("git %s: %w (stderr: %s)", strings.Join(args, " "), err, tail)
	}
	return strings.TrimSpace(string(out)), nil
}

func gitSource() Source {
	return Source{
		ID:       "git",
		Tier:     TierSession,
		Category: "git_status",
		Timeout:  500 * time.Millisecond,
		Fetch: func(g GatherContext) (any, error) {
			if g.WorkingDir == "" {
				return gitValue{}, nil
			}
			if _, err := os.Stat(filepath.Join(g.WorkingDir, ".git")); err != nil {
				return gitValue{}, nil
			}
			v := gitValue{}
			branch, err := runGit(g.Ctx, g.WorkingDir, "rev-parse", "--abbrev-ref", "HEAD")
			if err != nil || branch == "" {
				return gitValue{}, nil
			}
			v.Branch = branch

			if status, err := runGit(g.Ctx, g.WorkingDir, "status", "--porcelain"); err == nil && status != "" {
				v.Dirty = true
			}
			if counts, err := runGit(g.Ctx, g.WorkingDir, "rev-list", "--left-right", "--count", "HEAD...@{upstream}"); err == nil {
				var ahead, behind int
				fmt.Sscanf(counts, "%d%d", &ahead, &behind)
				v.Ahead, v.Behind = ahead, behind
			}
			if stashes, err := runGit(g.Ctx, g.WorkingDir, "stash", "list"); err == nil && stashes != "" {
				v.Stashes = len(strings.Split(stashes, "\n"))
			}
			return v, nil
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := value.(gitValue)
			if !ok || v.Branch == "" {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["git"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
		},
	}
}

// transcriptRecord is the minimal shape this module reads out of a
// Claude Code transcript JSONL file - one JSON object per line, fields
// ignored when absent so unrelated record shapes degrade gracefully.
type transcriptRecord struct {
	CostUSD      float64 `json:"cost_usd"`
	LinesAdded   int     `json:"lines_added"`
	LinesRemoved int     `json:"lines_removed"`
	DurationMS   int     `json:"duration_ms"`
}

type transcriptValue struct {
	TotalCostUSD    float64
	TotalLines      int
	TotalDurationMS int
	LikelySecret    bool
}

// fallbackSecretPatterns is the same conservative minimal set the
// teacher's hooks/lib/safety/detection.go falls back to when its JSONC
// pattern config can't be loaded.
var fallbackSecretPatterns = []string{
	"sk-", "ghp_", "xox", "AKIA", "BEGIN PRIVATE",
}

func containsLikelySecret(text string) bool {
	for _, p := range fallbackSecretPatterns {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

func transcriptSource() Source {
	return Source{
		ID:       "transcript",
		Tier:     TierSession,
		Category: "transcript_stats",
		Timeout:  300 * time.Millisecond,
		Fetch: func(g GatherContext) (any, error) {
			v := transcriptValue{}
			if g.TranscriptPath == "" {
				return v, nil
			}
			f, err := os.Open(g.TranscriptPath)
			if err != nil {
				return v, nil // absent transcript is not a fetch failure, just no data
			}
			defer f.Close()

			scanner := bufio.NewScanner(f)
			scanner.Buffer(make([]byte, 64*1024), 1024*1024)
			for scanner.Scan() {
				select {
				case <-g.Ctx.Done():
					return v, g.Ctx.Err()
				default:
				}
				line := scanner.Text()
				if line == "" {
					continue
				}
				var rec transcriptRecord
				if err := json.Unmarshal([]byte(line), &rec); err == nil {
					v.TotalCostUSD += rec.CostUSD
					v.TotalLines += rec.LinesAdded + rec.LinesRemoved
					v.TotalDurationMS += rec.DurationMS
				}
				if !v.LikelySecret && containsLikelySecret(line) {
					v.LikelySecret = true
				}
			}
			return v, scanner.Err()
		},
		Merge: func(h *cachestore.SessionHealth, value any, fetchedAt time.Time) {
			v, ok := value.(transcriptValue)
			if !ok {
				return
			}
			raw, _ := json.Marshal(v)
			h.Sources["transcript"] = cachestore.Entry{Value: raw, FetchedAt: fetchedAt}
			if v.LikelySecret {
				h.Alerts = append(h.Alerts, cachestore.Alert{
					Source: "transcript", Severity: "warning",
					Message: "transcript may contain a secret-shaped token",
				})
			}
		},
	}
}

func tier2Sources() []Source {
	return []Source{gitSource(), transcriptSource()}
}
