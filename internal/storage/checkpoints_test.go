// ABOUTME: Tests for checkpoint persistence.
package storage

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/model"
)

func TestCreateAndListCheckpoints(t *testing.T) {
	s := newTestStore(t)
	cp := &model.Checkpoint{
		ID: "c1", FromHandle: "scout-1", ToHandle: "scout-2",
		Body: model.CheckpointBody{Goal: "fix flaky test", Now: "tracked down root cause"},
		Status: model.CheckpointPending, CreatedAt: 1000,
	}
	if err := s.CreateCheckpoint(cp); err != nil {
		t.Fatalf("create checkpoint: %v", err)
	}

	got, err := s.GetCheckpoint("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Body.Goal != "fix flaky test" {
		t.Errorf("unexpected checkpoint body: %+v", got.Body)
	}

	list, err := s.ListCheckpointsForHandle("scout-2")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Errorf("expected 1 checkpoint, got %d", len(list))
	}

	if err := s.UpdateCheckpointStatus("c1", model.CheckpointAccepted); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, err = s.GetCheckpoint("c1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.CheckpointAccepted {
		t.Errorf("expected accepted status, got %s", got.Status)
	}
}
