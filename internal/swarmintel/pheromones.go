// ABOUTME: Pheromone trail deposit, query, and decay. See spec.md §4.G Pheromones.
package swarmintel

import (
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
)

// Deposit records a new stigmergic trail on a resource.
func (s *Service) Deposit(swarmID, depositorHandle, resourceID, resourceType, trailType string, intensity float64, metadata map[string]string) (*model.PheromoneTrail, error) {
	p := &model.PheromoneTrail{
		ID:              ids.New(),
		SwarmID:         swarmID,
		DepositorHandle: depositorHandle,
		ResourceID:      resourceID,
		ResourceType:    resourceType,
		TrailType:       trailType,
		Intensity:       intensity,
		Metadata:        metadata,
		CreatedAt:       s.clock.NowMillis(),
	}
	if err := s.store.DepositPheromone(p); err != nil {
		return nil, err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: swarmID}, "pheromone:deposit",
		map[string]any{"id": p.ID, "swarmId": swarmID, "resourceId": resourceID})
	return p, nil
}

// Query lists a swarm's deposits, optionally narrowed by resource and
// trail type, per spec.md §4.G Pheromones.query.
func (s *Service) Query(swarmID, resourceType, trailType string) ([]*model.PheromoneTrail, error) {
	return s.store.QueryPheromones(swarmID, resourceType, trailType)
}

// GetResourceTrails returns every deposit on one resource.
func (s *Service) GetResourceTrails(swarmID, resourceID string) ([]*model.PheromoneTrail, error) {
	return s.store.GetResourceTrails(swarmID, resourceID)
}

// GetActivity ranks the swarm's hottest resources by summed intensity,
// per spec.md §4.G Pheromones.getActivity.
func (s *Service) GetActivity(swarmID string, limit int) ([]*model.ResourceActivity, error) {
	return s.store.GetResourceActivity(swarmID, limit)
}

// DecayResult is ProcessDecay's outcome.
type DecayResult struct {
	Decayed int64 // trails whose intensity was reduced (all of them)
	Removed int64 // trails deleted for falling below minIntensity
}

// ProcessDecay multiplies every trail's intensity by (1-rate) and removes
// those that fall below minIntensity, per spec.md §4.G
// Pheromones.processDecay. Intended to run off a periodic tick driven by
// the injected Clock, never time.Now directly (spec.md §5.G), so tests
// can advance decay deterministically.
func (s *Service) ProcessDecay(rate, minIntensity float64) (DecayResult, error) {
	decayed, removed, err := s.store.DecayPheromones(1-rate, minIntensity)
	if err != nil {
		return DecayResult{}, err
	}
	result := DecayResult{Decayed: decayed, Removed: removed}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectAll}, "pheromone:decay",
		map[string]any{"decayed": result.Decayed, "removed": result.Removed})
	return result, nil
}
