// Package cachestore implements C3, the Cache Store: an atomic,
// versioned, per-source global cache plus a session-scoped health record,
// both rewritten wholesale via internal/atomicfile so no reader ever sees
// a partial file.
//
// Grounded on the Save/LoadCache shape of
// f968b8d6_groblegark-gastown's statusline-cache.go (temp-file-plus-rename
// JSON cache keyed by "how stale can this get before falling back"), with
// a process-local hashicorp/golang-lru front door (SPEC_FULL.md §11) so a
// single gather cycle that touches several Tier 3 sources doesn't re-read
// the global cache file once per source.
package cachestore

import (
	"encoding/json"
	"os"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"statusline/internal/atomicfile"
	"statusline/internal/paths"
	"statusline/internal/telemetry"
)

// SchemaVersion is bumped whenever GlobalCache's or SessionHealth's wire
// shape changes incompatibly. ReadGlobal treats a mismatch as absent.
const SchemaVersion = 1

// Entry is the cache entry triple from spec.md §3: a value, when it was
// fetched, and an optional scope (e.g. a repository path) subdividing the
// source's cache.
type Entry struct {
	Value      json.RawMessage `json:"value"`
	FetchedAt  time.Time       `json:"fetched_at"`
	ContextKey string          `json:"context_key,omitempty"`
}

// GlobalCache is the one-per-host versioned map from source identifier to
// its last-known entry.
type GlobalCache struct {
	Version int              `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

func emptyGlobalCache() GlobalCache {
	return GlobalCache{Version: SchemaVersion, Entries: map[string]Entry{}}
}

// Alert is a merged, user-facing health signal a source.merge step may
// attach to a SessionHealth (e.g. "quota nearly exhausted").
type Alert struct {
	Source   string `json:"source"`
	Severity string `json:"severity"` // healthy | warning | critical | unknown
	Message  string `json:"message"`
}

// SessionHealth is the complete per-session state the Broker writes and
// the Renderer reads: last-known values for every source, merged alerts,
// and the pre-rendered width variants (spec.md §3, §9).
type SessionHealth struct {
	Version       int              `json:"version"`
	SessionID     string           `json:"session_id"`
	WorkingDir    string           `json:"working_dir"`
	Model         string           `json:"model"`
	ContextTokens int              `json:"context_tokens"`
	Sources       map[string]Entry `json:"sources"`
	Alerts        []Alert          `json:"alerts,omitempty"`
	OverallStatus string           `json:"overall_status"`
	Variants      map[int]string   `json:"variants"`
	SingleLine    string           `json:"single_line"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// Store is the Cache Store, scoped to one on-disk Layout with an
// in-process LRU front for the global cache and recently-touched
// sessions.
type Store struct {
	layout      paths.Layout
	log         *telemetry.Logger
	globalCache *GlobalCache // last-read-or-written snapshot, single-entry memo
	sessions    *lru.Cache[string, *SessionHealth]
}

// New returns a Store rooted at layout. sessionCacheSize bounds the
// in-process session-health LRU (0 uses a sensible default).
func New(layout paths.Layout, log *telemetry.Logger, sessionCacheSize int) *Store {
	if sessionCacheSize <= 0 {
		sessionCacheSize = 64
	}
	c, _ := lru.New[string, *SessionHealth](sessionCacheSize)
	return &Store{layout: layout, log: log, sessions: c}
}

// ReadGlobal returns the current global cache, or an empty one (never an
// error) if the file is absent, malformed, or carries a mismatched
// schema version.
func (s *Store) ReadGlobal() GlobalCache {
	data, err := os.ReadFile(s.layout.GlobalCacheFile())
	if err != nil {
		return emptyGlobalCache()
	}
	var cache GlobalCache
	if err := json.Unmarshal(data, &cache); err != nil {
		s.log.Warn("global_cache_parse_failed", map[string]any{"error": err.Error()})
		return emptyGlobalCache()
	}
	if cache.Version != SchemaVersion {
		s.log.Warn("global_cache_version_mismatch", map[string]any{"found": cache.Version, "want": SchemaVersion})
		return emptyGlobalCache()
	}
	if cache.Entries == nil {
		cache.Entries = map[string]Entry{}
	}
	return cache
}

// WriteGlobal atomically rewrites the global cache file.
func (s *Store) WriteGlobal(cache GlobalCache) error {
	cache.Version = SchemaVersion
	data, err := json.Marshal(cache)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(s.layout.GlobalCacheFile(), data, 0o644); err != nil {
		return err
	}
	s.globalCache = &cache
	return nil
}

// EntryKey computes the GlobalCache.Entries key for a source/contextKey
// pair: the bare source ID when unscoped, or "sourceID@contextKey" when a
// context (e.g. an account scope key) subdivides the source's cache.
func EntryKey(sourceID, contextKey string) string {
	if contextKey == "" {
		return sourceID
	}
	return sourceID + "@" + contextKey
}

// UpsertSource merges value into cache under sourceID/contextKey,
// enforcing the monotonic-fetchedAt invariant (spec.md §3): a newer
// write never replaces a more recent fetchedAt for the same key. It
// returns the updated cache and whether a write is actually needed.
func UpsertSource(cache GlobalCache, sourceID string, value any, fetchedAt time.Time, contextKey string) (GlobalCache, bool) {
	key := EntryKey(sourceID, contextKey)
	if cache.Entries == nil {
		cache.Entries = map[string]Entry{}
	}
	if existing, ok := cache.Entries[key]; ok && !existing.FetchedAt.Before(fetchedAt) {
		return cache, false
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return cache, false
	}
	cache.Entries[key] = Entry{Value: raw, FetchedAt: fetchedAt, ContextKey: contextKey}
	return cache, true
}

// ReadSession returns the session's health record, or nil if absent or
// unparseable (a parse failure is logged, never returned as an error -
// spec.md §4.3).
func (s *Store) ReadSession(sessionID string) *SessionHealth {
	if h, ok := s.sessions.Get(sessionID); ok {
		return h
	}
	data, err := os.ReadFile(s.layout.SessionHealthFile(sessionID))
	if err != nil {
		return nil
	}
	var h SessionHealth
	if err := json.Unmarshal(data, &h); err != nil {
		s.log.Warn("session_health_parse_failed", map[string]any{"session_id": sessionID, "error": err.Error()})
		return nil
	}
	if h.Version != SchemaVersion {
		s.log.Warn("session_health_version_mismatch", map[string]any{"session_id": sessionID})
		return nil
	}
	s.sessions.Add(sessionID, &h)
	return &h
}

// WriteSession atomically rewrites a session's health file.
func (s *Store) WriteSession(sessionID string, h *SessionHealth) error {
	h.Version = SchemaVersion
	h.SessionID = sessionID
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(s.layout.SessionHealthFile(sessionID), data, 0o644); err != nil {
		return err
	}
	s.sessions.Add(sessionID, h)
	return nil
}

// ListSessionIDs returns every session ID with a health file on disk, for
// inactive-session cleanup sweeps.
func (s *Store) ListSessionIDs() ([]string, error) {
	entries, err := os.ReadDir(s.layout.SessionHealthDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		name := e.Name()
		if len(name) > 5 && name[len(name)-5:] == ".json" && name != "global-cache.json" {
			ids = append(ids, name[:len(name)-5])
		}
	}
	return ids, nil
}

// RemoveSession deletes a session's health file, used by cleanup sweeps
// once a session has been inactive past its window.
func (s *Store) RemoveSession(sessionID string) error {
	s.sessions.Remove(sessionID)
	err := os.Remove(s.layout.SessionHealthFile(sessionID))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}
