// Package atomicfile provides the write-temp-then-rename primitive every
// on-disk structure in this module relies on: the global cache, session
// health records, and intent/in-progress markers are all written this way
// so no reader ever observes a partially-written file.
package atomicfile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// counter disambiguates temp file names for concurrent writers inside the
// same process; the PID plus this counter plus a uuid prevents collision
// across processes racing to write different targets on the same host.
var counter uint64

// Write atomically replaces path's contents with data. It writes to a
// uniquely-named temp file in the same directory as path (so the rename
// is same-filesystem, hence atomic), fsyncs it, then renames over the
// target. The temp file is removed on any failure before rename.
func Write(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}

	n := atomic.AddUint64(&counter, 1)
	tmpName := fmt.Sprintf(".%s.%d.%d.%s.tmp", filepath.Base(path), os.Getpid(), n, uuid.NewString())
	tmpPath := filepath.Join(dir, tmpName)

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("atomicfile: create temp %s: %w", tmpPath, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: write temp %s: %w", tmpPath, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: sync temp %s: %w", tmpPath, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: close temp %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("atomicfile: rename %s -> %s: %w", tmpPath, path, err)
	}
	return nil
}

// CreateExclusive atomically creates path if and only if it does not
// already exist, writing data. It reports os.ErrExist (wrapped) when the
// target already exists, which the Coordinator uses to implement the
// single-flight "only one in-progress marker" guarantee without a lock.
func CreateExclusive(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("atomicfile: mkdir %s: %w", dir, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.Write(data)
	return err
}

// Sweep removes leftover temp files under dir older than maxAge. It is
// invoked opportunistically by any Broker invocation that decides, under
// its own per-process cooldown, that it is eligible to run the sweep —
// not on a dedicated timer.
func Sweep(dir string, maxAge func(os.FileInfo) bool) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, entry := range entries {
		name := entry.Name()
		if len(name) == 0 || name[0] != '.' {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if maxAge(info) {
			if err := os.Remove(filepath.Join(dir, name)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}
