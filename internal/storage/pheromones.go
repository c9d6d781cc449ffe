// ABOUTME: Pheromone trail persistence: deposit, filtered query, decay sweep.
// ABOUTME: See spec.md §4.G.
package storage

import (
	"encoding/json"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// DepositPheromone inserts a new trail deposit, per spec.md §4.G
// Pheromones.deposit.
func (s *Store) DepositPheromone(p *model.PheromoneTrail) error {
	meta, err := json.Marshal(p.Metadata)
	if err != nil {
		return errs.Internal("marshal pheromone metadata: %v", err)
	}
	_, execErr := s.db.Exec(`
		INSERT INTO pheromones (
			id, swarm_id, depositor_handle, resource_id, resource_type,
			trail_type, intensity, metadata_json, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		p.ID, p.SwarmID, p.DepositorHandle, p.ResourceID, p.ResourceType,
		p.TrailType, p.Intensity, string(meta), p.CreatedAt,
	)
	if execErr != nil {
		return errs.Storage(execErr, "insert pheromone")
	}
	return nil
}

// DecayPheromones multiplies every trail's intensity by factor (in (0,1])
// and deletes trails that decay below minIntensity, per spec.md §4.G
// Pheromones.decay, run on a PHEROMONE_DECAY_INTERVAL_MS tick. Returns the
// count of trails decayed (all of them) and the count removed.
func (s *Store) DecayPheromones(factor, minIntensity float64) (decayed int64, removed int64, err error) {
	res, execErr := s.db.Exec(`UPDATE pheromones SET intensity = intensity * ?`, factor)
	if execErr != nil {
		return 0, 0, errs.Storage(execErr, "decay pheromones")
	}
	decayed, _ = res.RowsAffected()

	delRes, delErr := s.db.Exec(`DELETE FROM pheromones WHERE intensity < ?`, minIntensity)
	if delErr != nil {
		return 0, 0, errs.Storage(delErr, "prune decayed pheromones")
	}
	removed, _ = delRes.RowsAffected()
	return decayed, removed, nil
}

func scanPheromone(row interface{ Scan(...any) error }) (*model.PheromoneTrail, error) {
	var p model.PheromoneTrail
	var meta string
	if err := row.Scan(
		&p.ID, &p.SwarmID, &p.DepositorHandle, &p.ResourceID, &p.ResourceType,
		&p.TrailType, &p.Intensity, &meta, &p.CreatedAt,
	); err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(meta), &p.Metadata)
	return &p, nil
}

const pheromoneColumns = `id, swarm_id, depositor_handle, resource_id, resource_type,
	trail_type, intensity, metadata_json, created_at`

// QueryPheromones lists a swarm's trail deposits, optionally narrowed by
// resourceType and/or trailType (either empty skips that filter), newest
// first, per spec.md §4.G Pheromones.query.
func (s *Store) QueryPheromones(swarmID, resourceType, trailType string) ([]*model.PheromoneTrail, error) {
	rows, err := s.db.Query(`
		SELECT `+pheromoneColumns+` FROM pheromones
		WHERE swarm_id = ?
			AND (? = '' OR resource_type = ?)
			AND (? = '' OR trail_type = ?)
		ORDER BY created_at DESC, id DESC`,
		swarmID, resourceType, resourceType, trailType, trailType)
	if err != nil {
		return nil, errs.Storage(err, "query pheromones")
	}
	defer rows.Close()

	var out []*model.PheromoneTrail
	for rows.Next() {
		p, err := scanPheromone(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan pheromone")
		}
		out = append(out, p)
	}
	return out, nil
}

// GetResourceTrails returns every deposit on one resource, oldest first,
// per spec.md §4.G Pheromones.getResourceTrails.
func (s *Store) GetResourceTrails(swarmID, resourceID string) ([]*model.PheromoneTrail, error) {
	rows, err := s.db.Query(`
		SELECT `+pheromoneColumns+` FROM pheromones
		WHERE swarm_id = ? AND resource_id = ?
		ORDER BY created_at ASC, id ASC`, swarmID, resourceID)
	if err != nil {
		return nil, errs.Storage(err, "get resource trails")
	}
	defer rows.Close()

	var out []*model.PheromoneTrail
	for rows.Next() {
		p, err := scanPheromone(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan pheromone")
		}
		out = append(out, p)
	}
	return out, nil
}

// GetResourceActivity aggregates pheromone intensity per resource within a
// swarm, ordered hottest first, per spec.md §4.G Pheromones.getActivity.
func (s *Store) GetResourceActivity(swarmID string, limit int) ([]*model.ResourceActivity, error) {
	rows, err := s.db.Query(`
		SELECT resource_id, resource_type, SUM(intensity), COUNT(*)
		FROM pheromones WHERE swarm_id = ?
		GROUP BY resource_id, resource_type
		ORDER BY SUM(intensity) DESC
		LIMIT ?`, swarmID, limit)
	if err != nil {
		return nil, errs.Storage(err, "get resource activity")
	}
	defer rows.Close()

	var out []*model.ResourceActivity
	for rows.Next() {
		var a model.ResourceActivity
		if err := rows.Scan(&a.ResourceID, &a.ResourceType, &a.TotalIntensity, &a.TrailCount); err != nil {
			return nil, errs.Storage(err, "scan resource activity")
		}
		out = append(out, &a)
	}
	return out, nil
}
