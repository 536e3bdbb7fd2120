// Package coordinator implements C2, the Refresh-Intent Coordinator: a
// cross-process single-flight primitive built from two sibling files per
// category (an intent marker and a PID-bearing in-progress marker), with
// no advisory locks — just atomic create and PID liveness probing.
//
// Grounded on the lock-free coordination shape of
// f4fcfbec_vilaca-ci-dashboard's expiration_refresher.go and
// 776b55c8_nscaledev-uni-core's refresh_ahead.go (single-flight refresh
// ahead of expiry), adapted from their in-process sync.Mutex/singleflight
// style to a cross-process file-based equivalent since this substrate has
// no shared memory between the sibling statusline processes.
package coordinator

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"statusline/internal/atomicfile"
	"statusline/internal/paths"
)

// Outcome is passed to Release to decide which markers to clear.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
)

// AcquireResult is the three-way result of TryAcquire.
type AcquireResult int

const (
	// AcquiredByMe means the caller may now fetch; it owns the in-progress marker.
	AcquiredByMe AcquireResult = iota
	// HeldBy means another live process is refreshing this category.
	HeldBy
)

// Holder describes who holds an in-progress marker and since when.
type Holder struct {
	PID   int
	Since time.Time
}

// Coordinator is the file-backed single-flight primitive, scoped to one
// Layout (one host's on-disk state).
type Coordinator struct {
	layout paths.Layout
}

// New returns a Coordinator rooted at layout.
func New(layout paths.Layout) *Coordinator {
	return &Coordinator{layout: layout}
}

// SignalNeed touches (creates if absent) the intent marker for category.
// Idempotent: repeated calls just advance the marker's mtime.
func (c *Coordinator) SignalNeed(category string) error {
	path := c.layout.IntentFile(category)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	}
	// File absent (or Chtimes unsupported) - create it.
	return atomicfile.Write(path, []byte(strconv.FormatInt(now.Unix(), 10)), 0o644)
}

// IntentAge returns the intent marker's age, or nil if no marker exists.
func (c *Coordinator) IntentAge(category string) (*time.Duration, error) {
	info, err := os.Stat(c.layout.IntentFile(category))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	age := time.Since(info.ModTime())
	return &age, nil
}

// pidAlive probes liveness the POSIX way: signal 0 delivers no signal but
// still fails with ESRCH if the process doesn't exist, and EPERM if it
// exists but we lack permission (which still counts as alive).
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.EPERM {
		return true
	}
	return false
}

func holderPath(layout paths.Layout, category string) string {
	return layout.InProgressFile(category)
}

func readHolder(path string) (Holder, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Holder{}, false, nil
		}
		return Holder{}, false, err
	}
	info, statErr := os.Stat(path)
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	if convErr != nil {
		// Malformed marker - treat as a dead holder so takeover proceeds.
		return Holder{}, true, nil
	}
	h := Holder{PID: pid}
	if statErr == nil {
		h.Since = info.ModTime()
	}
	return h, true, nil
}

// TryAcquire attempts to become the sole refresher for category. If no
// in-progress marker exists, it atomically creates one holding the
// caller's PID and returns AcquiredByMe. If one exists but its PID is no
// longer alive, it is overwritten (takeover) and AcquiredByMe is
// returned. Otherwise HeldBy is returned along with the holder's PID and
// marker mtime.
func (c *Coordinator) TryAcquire(category string) (AcquireResult, Holder, error) {
	path := holderPath(c.layout, category)
	payload := []byte(strconv.Itoa(os.Getpid()))

	if err := atomicfile.CreateExclusive(path, payload, 0o644); err == nil {
		return AcquiredByMe, Holder{PID: os.Getpid(), Since: time.Now()}, nil
	} else if !os.IsExist(err) {
		return HeldBy, Holder{}, fmt.Errorf("coordinator: create in-progress marker: %w", err)
	}

	holder, exists, err := readHolder(path)
	if err != nil {
		return HeldBy, Holder{}, err
	}
	if !exists {
		// Marker vanished between create-exclusive failing and our read
		// (the prior holder released). Retry once.
		if err := atomicfile.CreateExclusive(path, payload, 0o644); err == nil {
			return AcquiredByMe, Holder{PID: os.Getpid(), Since: time.Now()}, nil
		}
		return HeldBy, Holder{}, nil
	}

	if pidAlive(holder.PID) {
		return HeldBy, holder, nil
	}

	// Dead holder: takeover. Overwrite unconditionally - we already know
	// the prior owner cannot contest this.
	if err := atomicfile.Write(path, payload, 0o644); err != nil {
		return HeldBy, holder, fmt.Errorf("coordinator: takeover write: %w", err)
	}
	return AcquiredByMe, Holder{PID: os.Getpid(), Since: time.Now()}, nil
}

// Release clears the in-progress marker always. On success it also
// clears the intent marker (the need has been met); on failure the
// intent marker is left in place so the next invocation retries.
func (c *Coordinator) Release(category string, outcome Outcome) error {
	inProgress := holderPath(c.layout, category)
	if err := os.Remove(inProgress); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("coordinator: remove in-progress marker: %w", err)
	}
	if outcome == OutcomeSuccess {
		intent := c.layout.IntentFile(category)
		if err := os.Remove(intent); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("coordinator: remove intent marker: %w", err)
		}
	}
	return nil
}
