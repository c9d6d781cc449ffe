// ABOUTME: Agent belief assertion and swarm-consensus aggregation. See spec.md §4.G Beliefs.
package swarmintel

import (
	"sort"

	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
)

// Upsert records or updates an agent's belief about a subject, per
// spec.md §4.G Beliefs.upsert.
func (s *Service) Upsert(swarmID, agentHandle, subject, beliefType, value string, confidence float64, evidence []string) (*model.Belief, error) {
	b := &model.Belief{
		AgentHandle: agentHandle,
		Subject:     subject,
		BeliefType:  beliefType,
		Value:       value,
		Confidence:  clampUnit(confidence),
		Evidence:    evidence,
		UpdatedAt:   s.clock.NowMillis(),
	}
	if err := s.store.UpsertBelief(swarmID, b); err != nil {
		return nil, err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: swarmID}, "belief:updated",
		map[string]any{"swarmId": swarmID, "agentHandle": agentHandle, "subject": subject})
	return b, nil
}

// GetSwarmConsensus aggregates every belief on subject whose confidence is
// at least minConfidence into a majority value and participation rate,
// per spec.md §4.G Beliefs.getSwarmConsensus. Ties on the majority count
// break lexicographically on the value string, matching Consensus's
// tie-break rule.
func (s *Service) GetSwarmConsensus(swarmID, subject string, minConfidence float64) (*model.Consensus, error) {
	beliefs, err := s.store.ListBeliefsForSubject(swarmID, subject)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	qualifying := 0
	for _, b := range beliefs {
		if b.Confidence < minConfidence {
			continue
		}
		counts[b.Value]++
		qualifying++
	}

	c := &model.Consensus{
		Subject:          subject,
		ParticipantCount: len(beliefs),
	}
	if qualifying == 0 {
		return c, nil
	}

	values := make([]string, 0, len(counts))
	for v := range counts {
		values = append(values, v)
	}
	sort.Strings(values)

	best := values[0]
	for _, v := range values[1:] {
		if counts[v] > counts[best] {
			best = v
		}
	}
	c.MajorityValue = best
	c.AgreeingCount = counts[best]
	if len(beliefs) > 0 {
		c.ParticipationPct = float64(qualifying) / float64(len(beliefs))
	}
	return c, nil
}
