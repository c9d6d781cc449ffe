// ABOUTME: Payoff definition persistence for task completion incentives.
// ABOUTME: See spec.md §4.G.
package storage

import (
	"database/sql"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// UpsertPayoff records or replaces a (task, type) reward rule, per spec.md
// §4.G Payoffs.define.
func (s *Store) UpsertPayoff(p *model.PayoffDefinition) error {
	_, err := s.db.Exec(`
		INSERT INTO payoffs (task_id, type, base_value, multiplier, deadline, decay_rate)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(task_id, type) DO UPDATE SET
			base_value = excluded.base_value, multiplier = excluded.multiplier,
			deadline = excluded.deadline, decay_rate = excluded.decay_rate`,
		p.TaskID, p.Type, p.BaseValue, p.Multiplier, p.Deadline, p.DecayRate,
	)
	if err != nil {
		return errs.Storage(err, "upsert payoff")
	}
	return nil
}

// GetPayoff fetches a single (task, type) payoff definition.
func (s *Store) GetPayoff(taskID, payoffType string) (*model.PayoffDefinition, error) {
	var p model.PayoffDefinition
	err := s.db.QueryRow(`
		SELECT task_id, type, base_value, multiplier, deadline, decay_rate
		FROM payoffs WHERE task_id = ? AND type = ?`, taskID, payoffType,
	).Scan(&p.TaskID, &p.Type, &p.BaseValue, &p.Multiplier, &p.Deadline, &p.DecayRate)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("payoff for task %s type %s", taskID, payoffType)
	}
	if err != nil {
		return nil, errs.Storage(err, "get payoff")
	}
	return &p, nil
}

// ListPayoffsForTask returns every payoff type defined for a task.
func (s *Store) ListPayoffsForTask(taskID string) ([]*model.PayoffDefinition, error) {
	rows, err := s.db.Query(`SELECT task_id, type, base_value, multiplier, deadline, decay_rate FROM payoffs WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, errs.Storage(err, "list payoffs")
	}
	defer rows.Close()

	var out []*model.PayoffDefinition
	for rows.Next() {
		var p model.PayoffDefinition
		if err := rows.Scan(&p.TaskID, &p.Type, &p.BaseValue, &p.Multiplier, &p.Deadline, &p.DecayRate); err != nil {
			return nil, errs.Storage(err, "scan payoff")
		}
		out = append(out, &p)
	}
	return out, nil
}
