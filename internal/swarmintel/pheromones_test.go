// ABOUTME: Tests for pheromone deposit, hot-resource activity ranking, and decay.
// ABOUTME: Checks that a strong decay weakens and then prunes a trail.
package swarmintel

import "testing"

func TestDepositAndGetActivity(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Deposit("s1", "scout-1", "file.go", "file", "success", 2.0, nil); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	activity, err := svc.GetActivity("s1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(activity) != 1 || activity[0].TotalIntensity != 2.0 {
		t.Fatalf("unexpected activity: %+v", activity)
	}
}

func TestProcessDecayRemovesWeakTrails(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Deposit("s1", "scout-1", "file.go", "file", "success", 1.0, nil); err != nil {
		t.Fatal(err)
	}
	result, err := svc.ProcessDecay(0.99, 0.05)
	if err != nil {
		t.Fatalf("decay: %v", err)
	}
	if result.Decayed != 1 || result.Removed != 1 {
		t.Fatalf("expected one trail decayed and removed, got %+v", result)
	}
}
