// ABOUTME: Tests for worker persistence, handle uniqueness, and filtered listing.
package storage

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

func newTestWorker(id, handle string) *model.Worker {
	return &model.Worker{
		ID:            id,
		Handle:        handle,
		TeamName:      "alpha",
		Role:          model.RoleWorker,
		State:         model.WorkerStarting,
		Health:        model.HealthHealthy,
		SpawnMode:     model.SpawnModeProcess,
		DepthLevel:    0,
		LastHeartbeat: 1000,
		SpawnedAt:     1000,
	}
}

func TestCreateAndGetWorker(t *testing.T) {
	s := newTestStore(t)
	w := newTestWorker("w1", "scout-1")
	if err := s.CreateWorker(w); err != nil {
		t.Fatalf("create worker: %v", err)
	}

	got, err := s.GetWorker("w1")
	if err != nil {
		t.Fatalf("get worker: %v", err)
	}
	if got.Handle != "scout-1" || got.Role != model.RoleWorker {
		t.Errorf("unexpected worker: %+v", got)
	}
}

func TestCreateWorkerDuplicateActiveHandleConflicts(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateWorker(newTestWorker("w1", "scout-1")); err != nil {
		t.Fatalf("first create: %v", err)
	}
	err := s.CreateWorker(newTestWorker("w2", "scout-1"))
	if !errs.Is(err, errs.KindConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCreateWorkerAllowsReusingDismissedHandle(t *testing.T) {
	s := newTestStore(t)
	first := newTestWorker("w1", "scout-1")
	if err := s.CreateWorker(first); err != nil {
		t.Fatalf("first create: %v", err)
	}
	first.State = model.WorkerDismissed
	if err := s.UpdateWorker(first); err != nil {
		t.Fatalf("dismiss: %v", err)
	}

	if err := s.CreateWorker(newTestWorker("w2", "scout-1")); err != nil {
		t.Fatalf("expected reuse of dismissed handle to succeed, got %v", err)
	}
}

func TestGetWorkerNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetWorker("missing")
	if !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestListWorkersFiltersByState(t *testing.T) {
	s := newTestStore(t)
	w1 := newTestWorker("w1", "scout-1")
	w2 := newTestWorker("w2", "scout-2")
	w2.State = model.WorkerReady
	if err := s.CreateWorker(w1); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateWorker(w2); err != nil {
		t.Fatal(err)
	}

	ready := model.WorkerReady
	got, err := s.ListWorkers(WorkerFilter{State: &ready})
	if err != nil {
		t.Fatalf("list workers: %v", err)
	}
	if len(got) != 1 || got[0].ID != "w2" {
		t.Errorf("expected only w2, got %+v", got)
	}
}

func TestStatusCounts(t *testing.T) {
	s := newTestStore(t)
	if err := s.CreateWorker(newTestWorker("w1", "scout-1")); err != nil {
		t.Fatal(err)
	}
	w2 := newTestWorker("w2", "scout-2")
	w2.State = model.WorkerReady
	w2.RestartCount = 2
	if err := s.CreateWorker(w2); err != nil {
		t.Fatal(err)
	}

	sc, err := s.StatusCounts(2_000_000)
	if err != nil {
		t.Fatalf("status counts: %v", err)
	}
	if sc.Total != 2 {
		t.Errorf("expected 2 total, got %d", sc.Total)
	}
	if sc.RestartsTotal != 2 {
		t.Errorf("expected 2 total restarts, got %d", sc.RestartsTotal)
	}
}
