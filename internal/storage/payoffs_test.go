// ABOUTME: Tests for payoff definition persistence.
package storage

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/model"
)

func TestUpsertAndGetPayoff(t *testing.T) {
	s := newTestStore(t)
	p := &model.PayoffDefinition{TaskID: "t1", Type: "completion", BaseValue: 10, Multiplier: 1.5}
	if err := s.UpsertPayoff(p); err != nil {
		t.Fatalf("upsert payoff: %v", err)
	}

	p.BaseValue = 20
	if err := s.UpsertPayoff(p); err != nil {
		t.Fatalf("upsert payoff again: %v", err)
	}

	got, err := s.GetPayoff("t1", "completion")
	if err != nil {
		t.Fatal(err)
	}
	if got.BaseValue != 20 {
		t.Errorf("expected upsert to overwrite base value, got %+v", got)
	}
}
