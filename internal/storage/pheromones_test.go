// ABOUTME: Tests for pheromone trail persistence, query filters, and the decay sweep.
package storage

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/model"
)

func TestDepositAndDecayPheromones(t *testing.T) {
	s := newTestStore(t)
	if err := s.DepositPheromone(&model.PheromoneTrail{
		ID: "p1", SwarmID: "s1", DepositorHandle: "scout-1", ResourceID: "file.go",
		ResourceType: "file", TrailType: "success", Intensity: 1.0, CreatedAt: 1000,
	}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	activity, err := s.GetResourceActivity("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 1 || activity[0].TotalIntensity != 1.0 {
		t.Errorf("unexpected activity: %+v", activity)
	}

	if _, _, err := s.DecayPheromones(0.01, 0.05); err != nil {
		t.Fatalf("decay: %v", err)
	}
	activity, err = s.GetResourceActivity("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 0 {
		t.Errorf("expected trail pruned below minIntensity, got %+v", activity)
	}
}

func TestQueryAndGetResourceTrails(t *testing.T) {
	s := newTestStore(t)
	deposit := func(id, resourceType, trailType string, createdAt int64) {
		if err := s.DepositPheromone(&model.PheromoneTrail{
			ID: id, SwarmID: "s1", DepositorHandle: "scout-1", ResourceID: "file.go",
			ResourceType: resourceType, TrailType: trailType, Intensity: 1.0, CreatedAt: createdAt,
		}); err != nil {
			t.Fatalf("deposit %s: %v", id, err)
		}
	}
	deposit("p1", "file", "success", 1000)
	deposit("p2", "file", "failure", 2000)
	deposit("p3", "dir", "success", 3000)

	all, err := s.GetResourceTrails("s1", "file.go")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].ID != "p1" || all[1].ID != "p2" {
		t.Fatalf("expected p1,p2 oldest-first, got %+v", all)
	}

	filtered, err := s.QueryPheromones("s1", "file", "success")
	if err != nil {
		t.Fatal(err)
	}
	if len(filtered) != 1 || filtered[0].ID != "p1" {
		t.Fatalf("expected only p1 to match, got %+v", filtered)
	}

	unfiltered, err := s.QueryPheromones("s1", "", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(unfiltered) != 3 {
		t.Fatalf("expected all 3 with no filters, got %d", len(unfiltered))
	}
}
