package cachestore

import (
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

func modTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// WaitForGlobalCacheWrite blocks until the global cache file is written
// (renamed into place) or timeout elapses, whichever comes first. It
// backs the Broker's bounded HeldBy wait (spec.md §4.4 step 4.3.2): rather
// than sleep-polling the cache file on a fixed tick, it watches the
// session-health directory for the rename atomicfile.Write performs and
// wakes up as soon as it happens.
//
// If the watcher can't be established (platform without inotify support,
// permission issues), it falls back to polling every 200ms - a watch is
// an optimization, not a correctness requirement, since the caller always
// re-reads the cache after this returns regardless of why it returned.
func (s *Store) WaitForGlobalCacheWrite(timeout time.Duration) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.pollForGlobalCacheWrite(timeout)
		return
	}
	defer watcher.Close()

	if err := watcher.Add(s.layout.SessionHealthDir()); err != nil {
		s.pollForGlobalCacheWrite(timeout)
		return
	}

	target := s.layout.GlobalCacheFile()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		select {
		case ev, ok := <-watcher.Events:
			if !ok {
				return
			}
			if ev.Name == target && (ev.Op&(fsnotify.Write|fsnotify.Create) != 0) {
				return
			}
		case <-watcher.Errors:
			return
		case <-deadline.C:
			return
		}
	}
}

func (s *Store) pollForGlobalCacheWrite(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	target := s.layout.GlobalCacheFile()
	lastMod := modTime(target)
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		if m := modTime(target); !m.Equal(lastMod) {
			return
		}
	}
}
