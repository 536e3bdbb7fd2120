package coordinator

import (
	"os"
	"testing"
	"time"

	"statusline/internal/paths"
)

func newTestCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	return New(paths.New(t.TempDir()))
}

func TestTryAcquireFirstCallerWins(t *testing.T) {
	c := newTestCoordinator(t)

	result, holder, err := c.TryAcquire("quota_broker")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if result != AcquiredByMe {
		t.Fatalf("first caller should acquire, got %v", result)
	}
	if holder.PID != os.Getpid() {
		t.Errorf("holder.PID = %d, want own pid %d", holder.PID, os.Getpid())
	}
}

func TestTryAcquireSecondCallerBlockedByLiveHolder(t *testing.T) {
	c := newTestCoordinator(t)

	if result, _, err := c.TryAcquire("quota_broker"); err != nil || result != AcquiredByMe {
		t.Fatalf("setup: first TryAcquire = %v, %v", result, err)
	}

	// The in-progress marker now holds our own (live) PID, so a second
	// attempt must see it as held rather than taking over.
	result, holder, err := c.TryAcquire("quota_broker")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if result != HeldBy {
		t.Fatalf("second caller should see HeldBy while the first holder is alive, got %v", result)
	}
	if holder.PID != os.Getpid() {
		t.Errorf("holder.PID = %d, want %d", holder.PID, os.Getpid())
	}
}

func TestTryAcquireTakesOverDeadHolder(t *testing.T) {
	c := newTestCoordinator(t)
	layout := c.layout

	// A PID essentially guaranteed not to be alive on any real system.
	deadPID := "999999"
	if err := os.MkdirAll(layout.IntentsDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(layout.InProgressFile("quota_broker"), []byte(deadPID), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, holder, err := c.TryAcquire("quota_broker")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if result != AcquiredByMe {
		t.Fatalf("a dead holder's marker should be taken over, got %v", result)
	}
	if holder.PID != os.Getpid() {
		t.Errorf("holder.PID after takeover = %d, want %d", holder.PID, os.Getpid())
	}
}

func TestTryAcquireTakesOverMalformedMarker(t *testing.T) {
	c := newTestCoordinator(t)
	layout := c.layout

	if err := os.MkdirAll(layout.IntentsDir(), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(layout.InProgressFile("quota_broker"), []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, _, err := c.TryAcquire("quota_broker")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if result != AcquiredByMe {
		t.Fatalf("a malformed marker should be treated as a dead holder, got %v", result)
	}
}

func TestReleaseSuccessClearsBothMarkers(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.SignalNeed("quota_broker"); err != nil {
		t.Fatalf("SignalNeed: %v", err)
	}
	if _, _, err := c.TryAcquire("quota_broker"); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	if err := c.Release("quota_broker", OutcomeSuccess); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := os.Stat(c.layout.InProgressFile("quota_broker")); !os.IsNotExist(err) {
		t.Error("in-progress marker should be gone after a successful release")
	}
	if _, err := os.Stat(c.layout.IntentFile("quota_broker")); !os.IsNotExist(err) {
		t.Error("intent marker should be gone after a successful release")
	}
}

func TestReleaseFailureKeepsIntentMarker(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.SignalNeed("quota_broker"); err != nil {
		t.Fatalf("SignalNeed: %v", err)
	}
	if _, _, err := c.TryAcquire("quota_broker"); err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}

	if err := c.Release("quota_broker", OutcomeFailure); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if _, err := os.Stat(c.layout.InProgressFile("quota_broker")); !os.IsNotExist(err) {
		t.Error("in-progress marker should always be cleared on release")
	}
	if _, err := os.Stat(c.layout.IntentFile("quota_broker")); err != nil {
		t.Error("intent marker should survive a failed release so the next invocation retries")
	}
}

func TestReleaseWithoutPriorAcquireIsNotAnError(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.Release("never_acquired", OutcomeSuccess); err != nil {
		t.Errorf("releasing a category with no markers should be a no-op, got %v", err)
	}
}

func TestIntentAgeNilWhenAbsent(t *testing.T) {
	c := newTestCoordinator(t)
	age, err := c.IntentAge("quota_broker")
	if err != nil {
		t.Fatalf("IntentAge: %v", err)
	}
	if age != nil {
		t.Errorf("IntentAge with no marker should be nil, got %v", *age)
	}
}

func TestIntentAgeReflectsRecency(t *testing.T) {
	c := newTestCoordinator(t)
	if err := c.SignalNeed("quota_broker"); err != nil {
		t.Fatalf("SignalNeed: %v", err)
	}
	age, err := c.IntentAge("quota_broker")
	if err != nil {
		t.Fatalf("IntentAge: %v", err)
	}
	if age == nil {
		t.Fatal("IntentAge should report an age right after SignalNeed")
	}
	if *age < 0 || *age > 5*time.Second {
		t.Errorf("IntentAge right after SignalNeed = %v, want close to zero", *age)
	}
}
