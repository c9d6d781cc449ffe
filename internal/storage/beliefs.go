// ABOUTME: Belief persistence and swarm-consensus aggregation queries.
// ABOUTME: See spec.md §4.G.
package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// UpsertBelief records or updates an agent's belief about a subject,
// keyed by (swarm, agent, subject, type), per spec.md §4.G Beliefs.assert.
func (s *Store) UpsertBelief(swarmID string, b *model.Belief) error {
	evidence, err := json.Marshal(b.Evidence)
	if err != nil {
		return errs.Internal("marshal belief evidence: %v", err)
	}
	_, execErr := s.db.Exec(`
		INSERT INTO beliefs (swarm_id, agent_handle, subject, belief_type, value, confidence, evidence, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(swarm_id, agent_handle, subject, belief_type)
		DO UPDATE SET value = excluded.value, confidence = excluded.confidence,
			evidence = excluded.evidence, updated_at = excluded.updated_at`,
		swarmID, b.AgentHandle, b.Subject, b.BeliefType, b.Value, b.Confidence, string(evidence), b.UpdatedAt,
	)
	if execErr != nil {
		return errs.Storage(execErr, "upsert belief")
	}
	return nil
}

// ListBeliefsForSubject returns every agent's belief about a subject
// within a swarm, used by SwarmConsensus.
func (s *Store) ListBeliefsForSubject(swarmID, subject string) ([]*model.Belief, error) {
	rows, err := s.db.Query(`
		SELECT agent_handle, subject, belief_type, value, confidence, evidence, updated_at
		FROM beliefs WHERE swarm_id = ? AND subject = ?`, swarmID, subject)
	if err != nil {
		return nil, errs.Storage(err, "list beliefs")
	}
	defer rows.Close()

	var out []*model.Belief
	for rows.Next() {
		var b model.Belief
		var evidence string
		if err := rows.Scan(&b.AgentHandle, &b.Subject, &b.BeliefType, &b.Value, &b.Confidence, &evidence, &b.UpdatedAt); err != nil {
			return nil, errs.Storage(err, "scan belief")
		}
		_ = json.Unmarshal([]byte(evidence), &b.Evidence)
		out = append(out, &b)
	}
	return out, nil
}

// GetBelief fetches a single agent's belief, errs.NotFound if absent.
func (s *Store) GetBelief(swarmID, agentHandle, subject, beliefType string) (*model.Belief, error) {
	var b model.Belief
	var evidence string
	err := s.db.QueryRow(`
		SELECT agent_handle, subject, belief_type, value, confidence, evidence, updated_at
		FROM beliefs WHERE swarm_id = ? AND agent_handle = ? AND subject = ? AND belief_type = ?`,
		swarmID, agentHandle, subject, beliefType,
	).Scan(&b.AgentHandle, &b.Subject, &b.BeliefType, &b.Value, &b.Confidence, &evidence, &b.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("belief")
	}
	if err != nil {
		return nil, errs.Storage(err, "get belief")
	}
	_ = json.Unmarshal([]byte(evidence), &b.Evidence)
	return &b, nil
}
