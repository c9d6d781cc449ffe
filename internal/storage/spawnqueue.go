// ABOUTME: Spawn queue item persistence: enqueue, dependency lookup, status transitions.
// ABOUTME: See spec.md §4.E.
package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// CreateSpawnItem inserts a new spawn queue request. BlockedByCount is
// derived from how many of DependsOn are not yet spawned, per spec.md
// §4.E rule 4.
func (s *Store) CreateSpawnItem(item *model.SpawnQueueItem) error {
	return s.withTx(func(tx *sql.Tx) error {
		blocked := 0
		for _, dep := range item.DependsOn {
			var status string
			err := tx.QueryRow(`SELECT status FROM spawn_queue WHERE id = ?`, dep).Scan(&status)
			if err == sql.ErrNoRows {
				return errs.InvariantViolation("spawn item depends on unknown item %s", dep)
			}
			if err != nil {
				return errs.Storage(err, "check dependency")
			}
			if status != string(model.SpawnSpawned) {
				blocked++
			}
		}
		item.BlockedByCount = blocked

		deps, err := json.Marshal(item.DependsOn)
		if err != nil {
			return errs.Internal("marshal dependsOn: %v", err)
		}

		_, err = tx.Exec(`
			INSERT INTO spawn_queue (
				id, requester_handle, target_agent_type, depth_level, priority,
				status, depends_on, blocked_by_count, payload_task, payload_context,
				payload_checkpoint, created_at, processed_at, spawned_worker_id, reject_reason
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			item.ID, item.RequesterHandle, string(item.TargetAgentType), item.DepthLevel,
			string(item.Priority), string(item.Status), string(deps), item.BlockedByCount,
			item.Payload.Task, item.Payload.Context, item.Payload.Checkpoint,
			item.CreatedAt, item.ProcessedAt, item.SpawnedWorkerID, item.RejectReason,
		)
		if err != nil {
			return errs.Storage(err, "insert spawn item")
		}
		return nil
	})
}

const spawnQueueColumns = `id, requester_handle, target_agent_type, depth_level, priority,
	status, depends_on, blocked_by_count, payload_task, payload_context,
	payload_checkpoint, created_at, processed_at, spawned_worker_id, reject_reason`

func scanSpawnItem(row interface{ Scan(...any) error }) (*model.SpawnQueueItem, error) {
	var it model.SpawnQueueItem
	var targetType, priority, status, deps string
	if err := row.Scan(
		&it.ID, &it.RequesterHandle, &targetType, &it.DepthLevel, &priority, &status,
		&deps, &it.BlockedByCount, &it.Payload.Task, &it.Payload.Context,
		&it.Payload.Checkpoint, &it.CreatedAt, &it.ProcessedAt, &it.SpawnedWorkerID, &it.RejectReason,
	); err != nil {
		return nil, err
	}
	it.TargetAgentType = model.Role(targetType)
	it.Priority = model.Priority(priority)
	it.Status = model.SpawnQueueStatus(status)
	if deps != "" {
		_ = json.Unmarshal([]byte(deps), &it.DependsOn)
	}
	return &it, nil
}

// GetSpawnItem fetches a queue item by ID.
func (s *Store) GetSpawnItem(id string) (*model.SpawnQueueItem, error) {
	row := s.db.QueryRow(`SELECT `+spawnQueueColumns+` FROM spawn_queue WHERE id = ?`, id)
	it, err := scanSpawnItem(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("spawn queue item " + id)
	}
	if err != nil {
		return nil, errs.Storage(err, "get spawn item")
	}
	return it, nil
}

// ListReadySpawnItems returns pending, unblocked items ordered by priority
// desc, createdAt asc, per spec.md §4.E scheduler ordering.
func (s *Store) ListReadySpawnItems(limit int) ([]*model.SpawnQueueItem, error) {
	rows, err := s.db.Query(`
		SELECT `+spawnQueueColumns+` FROM spawn_queue
		WHERE status = 'pending' AND blocked_by_count = 0
		ORDER BY
			CASE priority WHEN 'critical' THEN 3 WHEN 'high' THEN 2 WHEN 'normal' THEN 1 ELSE 0 END DESC,
			created_at ASC, id ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, errs.Storage(err, "list ready spawn items")
	}
	defer rows.Close()

	var out []*model.SpawnQueueItem
	for rows.Next() {
		it, err := scanSpawnItem(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan spawn item")
		}
		out = append(out, it)
	}
	return out, nil
}

// ListSpawnItemsByStatus returns every item in the given status.
func (s *Store) ListSpawnItemsByStatus(status model.SpawnQueueStatus) ([]*model.SpawnQueueItem, error) {
	rows, err := s.db.Query(`SELECT `+spawnQueueColumns+` FROM spawn_queue WHERE status = ? ORDER BY created_at, id`, string(status))
	if err != nil {
		return nil, errs.Storage(err, "list spawn items by status")
	}
	defer rows.Close()

	var out []*model.SpawnQueueItem
	for rows.Next() {
		it, err := scanSpawnItem(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan spawn item")
		}
		out = append(out, it)
	}
	return out, nil
}

// UpdateSpawnItemStatus transitions an item's status and, when it
// transitions to spawned, decrements blocked_by_count on every item that
// depends on it, unblocking followers per spec.md §4.E rule 4.
func (s *Store) UpdateSpawnItemStatus(id string, status model.SpawnQueueStatus, processedAt int64, spawnedWorkerID *string, rejectReason string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`
			UPDATE spawn_queue SET status = ?, processed_at = ?, spawned_worker_id = ?, reject_reason = ?
			WHERE id = ?`, string(status), processedAt, spawnedWorkerID, rejectReason, id)
		if err != nil {
			return errs.Storage(err, "update spawn item status")
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return errs.NotFound("spawn queue item " + id)
		}

		if status != model.SpawnSpawned {
			return nil
		}

		rows, err := tx.Query(`SELECT id, depends_on FROM spawn_queue WHERE blocked_by_count > 0`)
		if err != nil {
			return errs.Storage(err, "scan dependents")
		}
		type dependent struct {
			id   string
			deps []string
		}
		var dependents []dependent
		for rows.Next() {
			var did, depsJSON string
			if err := rows.Scan(&did, &depsJSON); err != nil {
				rows.Close()
				return errs.Storage(err, "scan dependent row")
			}
			var deps []string
			_ = json.Unmarshal([]byte(depsJSON), &deps)
			dependents = append(dependents, dependent{id: did, deps: deps})
		}
		rows.Close()

		for _, d := range dependents {
			for _, dep := range d.deps {
				if dep == id {
					if _, err := tx.Exec(`UPDATE spawn_queue SET blocked_by_count = blocked_by_count - 1 WHERE id = ?`, d.id); err != nil {
						return errs.Storage(err, "unblock dependent")
					}
					break
				}
			}
		}
		return nil
	})
}
