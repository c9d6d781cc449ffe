// ABOUTME: Worker persistence: create, state transitions, filtered listing.
// ABOUTME: Enforces handle uniqueness inside a BEGIN IMMEDIATE transaction.
package storage

import (
	"database/sql"
	"strings"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// CreateWorker inserts a new worker. Violating the "one active worker per
// handle" partial unique index surfaces as errs.Conflict (spec.md §3
// invariant i).
func (s *Store) CreateWorker(w *model.Worker) error {
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO workers (
				id, handle, team_name, role, state, health, pid, session_id,
				worktree_path, branch, swarm_id, spawn_mode, depth_level,
				restart_count, last_error, last_heartbeat, spawned_at, dismissed_at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			w.ID, w.Handle, w.TeamName, string(w.Role), string(w.State), string(w.Health),
			w.PID, w.SessionID, w.WorktreePath, w.Branch, w.SwarmID, string(w.SpawnMode),
			w.DepthLevel, w.RestartCount, w.LastError, w.LastHeartbeat, w.SpawnedAt, w.DismissedAt,
		)
		if err != nil {
			if strings.Contains(err.Error(), "UNIQUE constraint failed") {
				return errs.Conflict("a non-dismissed worker already holds handle " + w.Handle)
			}
			return errs.Storage(err, "insert worker")
		}
		return nil
	})
}

func scanWorker(row interface{ Scan(...any) error }) (*model.Worker, error) {
	var w model.Worker
	var role, state, health, spawnMode string
	if err := row.Scan(
		&w.ID, &w.Handle, &w.TeamName, &role, &state, &health, &w.PID, &w.SessionID,
		&w.WorktreePath, &w.Branch, &w.SwarmID, &spawnMode, &w.DepthLevel,
		&w.RestartCount, &w.LastError, &w.LastHeartbeat, &w.SpawnedAt, &w.DismissedAt,
	); err != nil {
		return nil, err
	}
	w.Role = model.Role(role)
	w.State = model.WorkerState(state)
	w.Health = model.Health(health)
	w.SpawnMode = model.SpawnMode(spawnMode)
	return &w, nil
}

const workerColumns = `id, handle, team_name, role, state, health, pid, session_id,
	worktree_path, branch, swarm_id, spawn_mode, depth_level,
	restart_count, last_error, last_heartbeat, spawned_at, dismissed_at`

// GetWorker fetches a worker by ID, errs.NotFound if absent.
func (s *Store) GetWorker(id string) (*model.Worker, error) {
	row := s.db.QueryRow(`SELECT `+workerColumns+` FROM workers WHERE id = ?`, id)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("worker " + id)
	}
	if err != nil {
		return nil, errs.Storage(err, "get worker")
	}
	return w, nil
}

// GetWorkerByHandle fetches the active (non-dismissed) worker holding
// handle, errs.NotFound if none.
func (s *Store) GetWorkerByHandle(handle string) (*model.Worker, error) {
	row := s.db.QueryRow(`SELECT `+workerColumns+` FROM workers WHERE handle = ? AND state != 'dismissed'`, handle)
	w, err := scanWorker(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("worker handle " + handle)
	}
	if err != nil {
		return nil, errs.Storage(err, "get worker by handle")
	}
	return w, nil
}

// WorkerFilter narrows ListWorkers; zero-value fields are unconstrained.
type WorkerFilter struct {
	SwarmID *string
	State   *model.WorkerState
	Role    *model.Role
}

// ListWorkers returns workers matching filter ordered by spawnedAt, id
// (spec.md §4.D: stable listing order).
func (s *Store) ListWorkers(filter WorkerFilter) ([]*model.Worker, error) {
	q := `SELECT ` + workerColumns + ` FROM workers WHERE 1=1`
	var args []any
	if filter.SwarmID != nil {
		q += ` AND swarm_id = ?`
		args = append(args, *filter.SwarmID)
	}
	if filter.State != nil {
		q += ` AND state = ?`
		args = append(args, string(*filter.State))
	}
	if filter.Role != nil {
		q += ` AND role = ?`
		args = append(args, string(*filter.Role))
	}
	q += ` ORDER BY spawned_at, id`

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, errs.Storage(err, "list workers")
	}
	defer rows.Close()

	var out []*model.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan worker")
		}
		out = append(out, w)
	}
	return out, nil
}

// UpdateWorker persists the full mutable state of w (spec.md §4.D: every
// state transition, heartbeat, and restart increment writes through).
func (s *Store) UpdateWorker(w *model.Worker) error {
	res, err := s.db.Exec(`
		UPDATE workers SET
			state = ?, health = ?, pid = ?, session_id = ?, worktree_path = ?,
			branch = ?, swarm_id = ?, restart_count = ?, last_error = ?,
			last_heartbeat = ?, dismissed_at = ?
		WHERE id = ?`,
		string(w.State), string(w.Health), w.PID, w.SessionID, w.WorktreePath,
		w.Branch, w.SwarmID, w.RestartCount, w.LastError, w.LastHeartbeat,
		w.DismissedAt, w.ID,
	)
	if err != nil {
		return errs.Storage(err, "update worker")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("worker " + w.ID)
	}
	return nil
}

// StatusCounts computes the aggregate view spec.md §4.D getStatus() needs.
func (s *Store) StatusCounts(nowMillis int64) (*model.StatusCounts, error) {
	sc := &model.StatusCounts{
		ByState:  make(map[model.WorkerState]int),
		ByRole:   make(map[model.Role]int),
		ByHealth: make(map[model.Health]int),
	}

	rows, err := s.db.Query(`SELECT state, role, health, restart_count, spawned_at FROM workers WHERE state != 'dismissed'`)
	if err != nil {
		return nil, errs.Storage(err, "status counts")
	}
	defer rows.Close()

	oldest := int64(0)
	for rows.Next() {
		var state, role, health string
		var restarts int
		var spawnedAt int64
		if err := rows.Scan(&state, &role, &health, &restarts, &spawnedAt); err != nil {
			return nil, errs.Storage(err, "scan status counts")
		}
		sc.Total++
		sc.ByState[model.WorkerState(state)]++
		sc.ByRole[model.Role(role)]++
		sc.ByHealth[model.Health(health)]++
		sc.RestartsTotal += restarts
		if oldest == 0 || spawnedAt < oldest {
			oldest = spawnedAt
		}
	}
	sc.OldestSpawnAt = oldest

	hourAgo := nowMillis - 3_600_000
	var restartsLastHour sql.NullInt64
	if err := s.db.QueryRow(
		`SELECT SUM(restart_count) FROM workers WHERE last_heartbeat >= ?`, hourAgo,
	).Scan(&restartsLastHour); err != nil {
		return nil, errs.Storage(err, "restarts last hour")
	}
	sc.RestartsLast1h = int(restartsLastHour.Int64)

	return sc, nil
}
