// ABOUTME: Tests for entity helper methods: Clone, IsTerminal, Restartable, Ready.
// ABOUTME: No persistence involved; these are pure value-type checks.
package model

import "testing"

func TestWorkerStateIsTerminal(t *testing.T) {
	if !WorkerDismissed.IsTerminal() {
		t.Errorf("dismissed should be terminal")
	}
	for _, s := range []WorkerState{WorkerStarting, WorkerReady, WorkerWorking, WorkerStopping, WorkerStopped} {
		if s.IsTerminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRoleRestartable(t *testing.T) {
	if RoleNotifier.Restartable() {
		t.Errorf("notifier should not be restartable")
	}
	if !RoleCoordinator.Restartable() {
		t.Errorf("coordinator should be restartable")
	}
}

func TestWorkerCloneIsIndependent(t *testing.T) {
	pid := 123
	w := &Worker{Handle: "alpha", PID: &pid, RecentOutput: []string{"line1"}}
	clone := w.Clone()

	*clone.PID = 999
	clone.RecentOutput[0] = "changed"

	if *w.PID != 123 {
		t.Errorf("mutating clone.PID affected original: %d", *w.PID)
	}
	if w.RecentOutput[0] != "line1" {
		t.Errorf("mutating clone.RecentOutput affected original: %s", w.RecentOutput[0])
	}
}

func TestSpawnQueueItemReadyAndEffectiveStatus(t *testing.T) {
	item := &SpawnQueueItem{Status: SpawnPending, BlockedByCount: 1}
	if item.Ready() {
		t.Errorf("item with blockedByCount>0 should not be ready")
	}
	if item.EffectiveStatus() != SpawnBlocked {
		t.Errorf("expected derived status blocked, got %s", item.EffectiveStatus())
	}

	item.BlockedByCount = 0
	if !item.Ready() {
		t.Errorf("item with blockedByCount=0 and status pending should be ready")
	}
	if item.EffectiveStatus() != SpawnPending {
		t.Errorf("expected effective status pending, got %s", item.EffectiveStatus())
	}

	item.Status = SpawnSpawned
	if item.Ready() {
		t.Errorf("a spawned item is never ready again")
	}
}

func TestPriorityRank(t *testing.T) {
	if PriorityCritical.Rank() <= PriorityHigh.Rank() {
		t.Errorf("critical should outrank high")
	}
	if PriorityHigh.Rank() <= PriorityNormal.Rank() {
		t.Errorf("high should outrank normal")
	}
	if PriorityNormal.Rank() <= PriorityLow.Rank() {
		t.Errorf("normal should outrank low")
	}
}

func TestBlackboardMessageReadSetMonotonic(t *testing.T) {
	m := &BlackboardMessage{}
	if m.IsRead("alpha") {
		t.Errorf("fresh message should not be read")
	}
	m.MarkRead("alpha")
	if !m.IsRead("alpha") {
		t.Errorf("expected alpha to be marked read")
	}
	if m.IsRead("beta") {
		t.Errorf("beta should not be marked read")
	}
}
