// Package session defines the Session data model (spec.md §3) and the
// deterministic account-scope-key derivation used to group sessions that
// share a credential slot (and therefore share global quota data).
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// Session is an identified interaction, created the first time its
// identifier is observed on standard input.
type Session struct {
	ID             string
	WorkingDir     string
	TranscriptPath string
	Model          string
	ContextTokens  int
	LastSeen       time.Time
}

// DefaultInactivityWindow is the default silence window (spec.md §3)
// after which a session is considered inactive and eligible for cleanup.
const DefaultInactivityWindow = time.Hour

// IsInactive reports whether the session has been silent longer than
// window as of now.
func (s Session) IsInactive(now time.Time, window time.Duration) bool {
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	return now.Sub(s.LastSeen) > window
}

// marker is the path segment whose prefix is hashed to derive the account
// scope key, per spec.md §3: "Derived deterministically from the
// transcript path by locating the marker segment /projects/ and hashing
// the prefix."
const marker = "/projects/"

// AccountScopeKey derives the 8-hex-char account scope key from a
// transcript path. Two sessions whose transcript paths share the same
// prefix up to (and including) the /projects/ marker resolve to the same
// key, and therefore the same credential slot / global quota data.
//
// When transcriptPath doesn't contain the marker, the whole path is
// hashed instead (degrades gracefully rather than erroring - a malformed
// or test-only transcript path still yields a stable, if coarser, key).
func AccountScopeKey(transcriptPath string) string {
	prefix := transcriptPath
	if idx := strings.Index(transcriptPath, marker); idx >= 0 {
		prefix = transcriptPath[:idx+len(marker)]
	}
	sum := sha256.Sum256([]byte(prefix))
	return hex.EncodeToString(sum[:])[:8]
}
