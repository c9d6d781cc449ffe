// ABOUTME: Service, component G: thin deterministic wrappers over storage
// ABOUTME: for pheromones, beliefs, credits, consensus, bidding, payoffs. See spec.md §4.G.
package swarmintel

import (
	"github.com/fleetforge/fleetd/internal/clock"
	"github.com/fleetforge/fleetd/internal/pushhub"
	"github.com/fleetforge/fleetd/internal/storage"
)

// Service is component G. Every public method is a thin, well-typed
// wrapper over B with deterministic semantics, per spec.md §4.G: it
// stamps IDs and timestamps, calls one storage operation (or a small
// transactional sequence for multi-leg ones like transfer and
// acceptBid), and publishes the resulting event. It never holds state of
// its own.
type Service struct {
	store *storage.Store
	hub   *pushhub.Hub
	clock clock.Clock
}

// New constructs a Service.
func New(store *storage.Store, hub *pushhub.Hub, c clock.Clock) *Service {
	return &Service{store: store, hub: hub, clock: c}
}

func (s *Service) publish(subj pushhub.Subject, eventType string, data map[string]any) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(subj, pushhub.Event{Type: eventType, Data: data})
	if subj.Kind != pushhub.SubjectAll {
		s.hub.Publish(pushhub.Subject{Kind: pushhub.SubjectAll}, pushhub.Event{Type: eventType, Data: data})
	}
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
