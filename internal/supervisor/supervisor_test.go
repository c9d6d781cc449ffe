// ABOUTME: Tests for worker spawn/dismiss/broadcast, permission gating, and health ticks.
// ABOUTME: Uses the fake launcher and git so no real process or git command runs.
package supervisor

import (
	"testing"
	"time"

	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/gitutil"
	"github.com/fleetforge/fleetd/internal/launcher"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/storage"
)

func newTestSupervisor(t *testing.T) (*Supervisor, *launcher.Fake, *gitutil.Fake, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(1_700_000_000_000)
	store, err := storage.Open("", fc)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	hub := pushhub.New()
	fl := launcher.NewFake()
	fg := gitutil.NewFake()
	sup := New(store, hub, fc, fl, fg, DefaultConfig())
	return sup, fl, fg, fc
}

func role(r model.Role) *model.Role { return &r }

func TestSpawnCreatesWorkerAndTracksProcess(t *testing.T) {
	sup, fl, _, _ := newTestSupervisor(t)

	w, err := sup.Spawn(SpawnRequest{
		Handle:     "alice",
		Role:       model.RoleWorker,
		SpawnMode:  model.SpawnModeProcess,
		WorkingDir: "/tmp/repo",
		Command:    "agent",
		DepthLevel: 0,
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if w.State != model.WorkerReady {
		t.Fatalf("expected ready state, got %s", w.State)
	}
	if len(fl.Processes) != 1 {
		t.Fatalf("expected one launched process, got %d", len(fl.Processes))
	}
}

func TestSpawnAllocatesWorktreeForGitRole(t *testing.T) {
	sup, _, fg, _ := newTestSupervisor(t)

	_, err := sup.Spawn(SpawnRequest{
		Handle:     "bob",
		Role:       model.RoleArchitect,
		SpawnMode:  model.SpawnModeProcess,
		WorkingDir: "/tmp/repo",
		Command:    "agent",
	})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if len(fg.Worktrees) != 1 {
		t.Fatalf("expected a worktree to be allocated, got %d", len(fg.Worktrees))
	}
}

func TestSpawnRejectsDuplicateHandle(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	req := SpawnRequest{Handle: "dup", Role: model.RoleScout, SpawnMode: model.SpawnModeNative}
	if _, err := sup.Spawn(req); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	if _, err := sup.Spawn(req); !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestSpawnRejectsOverDepth(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	_, err := sup.Spawn(SpawnRequest{Handle: "deep", Role: model.RoleWorker, SpawnMode: model.SpawnModeNative, DepthLevel: 99})
	if !errs.Is(err, errs.KindInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestSpawnDeniesWithoutPermission(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	r := role(model.RoleWorker)
	_, err := sup.Spawn(SpawnRequest{Handle: "nope", Role: model.RoleWorker, SpawnMode: model.SpawnModeNative, CallerRole: r})
	if !errs.Is(err, errs.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestDismissIsIdempotentOnTerminalWorker(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	if _, err := sup.Spawn(SpawnRequest{Handle: "once", Role: model.RoleScout, SpawnMode: model.SpawnModeNative}); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	ok, err := sup.Dismiss("once", nil)
	if err != nil || !ok {
		t.Fatalf("first dismiss: ok=%v err=%v", ok, err)
	}
	ok, err = sup.Dismiss("once", nil)
	if err != nil || ok {
		t.Fatalf("second dismiss should be a no-op: ok=%v err=%v", ok, err)
	}
}

func TestDismissSignalsThenKillsAfterGrace(t *testing.T) {
	sup, fl, _, _ := newTestSupervisor(t)
	sup.cfg.DismissGraceMs = 10

	_, err := sup.Spawn(SpawnRequest{Handle: "slow", Role: model.RoleWorker, SpawnMode: model.SpawnModeProcess, WorkingDir: "/tmp/repo", Command: "agent"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	proc := fl.Processes[0]

	// The fake never exits on its own; once the supervisor force-kills it
	// (because it ignored the graceful signal), simulate the OS reaping it.
	go func() {
		for !proc.WasKilled() {
			time.Sleep(time.Millisecond)
		}
		proc.Exit(137)
	}()

	done := make(chan struct{})
	go func() {
		sup.Dismiss("slow", nil)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("dismiss did not return")
	}

	if !proc.WasSignaled() {
		t.Fatal("expected process to have been signaled")
	}
	if !proc.WasKilled() {
		t.Fatal("expected process to have been force-killed after grace period elapsed")
	}
}

func TestHeartbeatUpdatesLastHeartbeat(t *testing.T) {
	sup, _, _, fc := newTestSupervisor(t)

	_, err := sup.Spawn(SpawnRequest{Handle: "hb", Role: model.RoleScout, SpawnMode: model.SpawnModeNative})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	fc.Advance(5000)
	sup.Heartbeat("hb", fc.NowMillis())

	w, err := sup.store.GetWorkerByHandle("hb")
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if w.LastHeartbeat != fc.NowMillis() {
		t.Fatalf("expected heartbeat to be updated, got %d want %d", w.LastHeartbeat, fc.NowMillis())
	}
}

func TestHeartbeatOnUnknownHandleIsSilent(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)
	sup.Heartbeat("ghost", 123)
}

func TestClassifyHealthThresholds(t *testing.T) {
	cases := []struct {
		gapMs  int64
		errors int
		want   model.Health
	}{
		{gapMs: 1000, errors: 0, want: model.HealthHealthy},
		{gapMs: 29999, errors: 4, want: model.HealthHealthy},
		{gapMs: 30000, errors: 0, want: model.HealthDegraded},
		{gapMs: 0, errors: 5, want: model.HealthDegraded},
		{gapMs: 119999, errors: 19, want: model.HealthDegraded},
		{gapMs: 120000, errors: 0, want: model.HealthUnhealthy},
		{gapMs: 0, errors: 20, want: model.HealthUnhealthy},
	}
	for _, c := range cases {
		if got := classify(c.gapMs, c.errors); got != c.want {
			t.Errorf("classify(%d, %d) = %s, want %s", c.gapMs, c.errors, got, c.want)
		}
	}
}

func TestTickHealthMarksUnhealthyAndRestarts(t *testing.T) {
	sup, fl, _, fc := newTestSupervisor(t)

	_, err := sup.Spawn(SpawnRequest{Handle: "w1", Role: model.RoleWorker, SpawnMode: model.SpawnModeProcess, WorkingDir: "/tmp/repo", Command: "agent"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}

	fc.Advance(200_000)
	sup.TickHealth()

	w, err := sup.store.GetWorkerByHandle("w1")
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if w.RestartCount != 1 {
		t.Fatalf("expected one restart, got %d", w.RestartCount)
	}
	if w.Health != model.HealthHealthy {
		t.Fatalf("expected restart to restore healthy status, got %s", w.Health)
	}
	if len(fl.Processes) != 2 {
		t.Fatalf("expected a second process to have been launched, got %d", len(fl.Processes))
	}
}

func TestGetStatusAggregatesWorkers(t *testing.T) {
	sup, _, _, _ := newTestSupervisor(t)

	for _, h := range []string{"w1", "w2"} {
		if _, err := sup.Spawn(SpawnRequest{Handle: h, Role: model.RoleScout, SpawnMode: model.SpawnModeNative}); err != nil {
			t.Fatalf("spawn %s: %v", h, err)
		}
	}
	status, err := sup.GetStatus()
	if err != nil {
		t.Fatalf("get status: %v", err)
	}
	if status.Total != 2 {
		t.Fatalf("expected 2 workers, got %d", status.Total)
	}
}
