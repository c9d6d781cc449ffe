// ABOUTME: Shared test scaffolding for the swarm-intelligence service tests.
package swarmintel

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/storage"
)

func newTestService(t *testing.T) (*Service, *clock.Fake) {
	t.Helper()
	fc := clock.NewFake(1_700_000_000_000)
	store, err := storage.Open("", fc)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return New(store, pushhub.New(), fc), fc
}
