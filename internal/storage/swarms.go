// ABOUTME: Swarm persistence: create, lookup, listing, member counting.
// ABOUTME: See spec.md §3.
package storage

import (
	"database/sql"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// CreateSwarm inserts a new swarm.
func (s *Store) CreateSwarm(sw *model.Swarm) error {
	_, err := s.db.Exec(
		`INSERT INTO swarms (id, name, description, max_agents, created_at) VALUES (?,?,?,?,?)`,
		sw.ID, sw.Name, sw.Description, sw.MaxAgents, sw.CreatedAt,
	)
	if err != nil {
		return errs.Storage(err, "insert swarm")
	}
	return nil
}

// GetSwarm fetches a swarm by ID, errs.NotFound if absent.
func (s *Store) GetSwarm(id string) (*model.Swarm, error) {
	var sw model.Swarm
	err := s.db.QueryRow(
		`SELECT id, name, description, max_agents, created_at FROM swarms WHERE id = ?`, id,
	).Scan(&sw.ID, &sw.Name, &sw.Description, &sw.MaxAgents, &sw.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("swarm " + id)
	}
	if err != nil {
		return nil, errs.Storage(err, "get swarm")
	}
	return &sw, nil
}

// ListSwarms returns every swarm ordered by creation time.
func (s *Store) ListSwarms() ([]*model.Swarm, error) {
	rows, err := s.db.Query(`SELECT id, name, description, max_agents, created_at FROM swarms ORDER BY created_at, id`)
	if err != nil {
		return nil, errs.Storage(err, "list swarms")
	}
	defer rows.Close()

	var out []*model.Swarm
	for rows.Next() {
		var sw model.Swarm
		if err := rows.Scan(&sw.ID, &sw.Name, &sw.Description, &sw.MaxAgents, &sw.CreatedAt); err != nil {
			return nil, errs.Storage(err, "scan swarm")
		}
		out = append(out, &sw)
	}
	return out, nil
}

// SwarmMemberCount counts active (non-dismissed) workers in a swarm, used
// by spec.md §4.D join()'s maxAgents enforcement.
func (s *Store) SwarmMemberCount(swarmID string) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM workers WHERE swarm_id = ? AND state != 'dismissed'`, swarmID,
	).Scan(&n)
	if err != nil {
		return 0, errs.Storage(err, "count swarm members")
	}
	return n, nil
}
