// ABOUTME: Checkpoint persistence for worker progress snapshots.
// ABOUTME: See spec.md §4.B.
package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// CreateCheckpoint inserts a new handoff checkpoint.
func (s *Store) CreateCheckpoint(c *model.Checkpoint) error {
	body, err := json.Marshal(c.Body)
	if err != nil {
		return errs.Internal("marshal checkpoint body: %v", err)
	}
	_, execErr := s.db.Exec(`
		INSERT INTO checkpoints (id, from_handle, to_handle, body_json, status, created_at)
		VALUES (?,?,?,?,?,?)`,
		c.ID, c.FromHandle, c.ToHandle, string(body), string(c.Status), c.CreatedAt,
	)
	if execErr != nil {
		return errs.Storage(execErr, "insert checkpoint")
	}
	return nil
}

func scanCheckpoint(row interface{ Scan(...any) error }) (*model.Checkpoint, error) {
	var c model.Checkpoint
	var status, body string
	if err := row.Scan(&c.ID, &c.FromHandle, &c.ToHandle, &body, &status, &c.CreatedAt); err != nil {
		return nil, err
	}
	c.Status = model.CheckpointStatus(status)
	_ = json.Unmarshal([]byte(body), &c.Body)
	return &c, nil
}

// GetCheckpoint fetches a checkpoint by ID.
func (s *Store) GetCheckpoint(id string) (*model.Checkpoint, error) {
	row := s.db.QueryRow(`SELECT id, from_handle, to_handle, body_json, status, created_at FROM checkpoints WHERE id = ?`, id)
	c, err := scanCheckpoint(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("checkpoint " + id)
	}
	if err != nil {
		return nil, errs.Storage(err, "get checkpoint")
	}
	return c, nil
}

// ListCheckpointsForHandle returns checkpoints addressed to handle, newest
// first.
func (s *Store) ListCheckpointsForHandle(handle string) ([]*model.Checkpoint, error) {
	rows, err := s.db.Query(`
		SELECT id, from_handle, to_handle, body_json, status, created_at FROM checkpoints
		WHERE to_handle = ? ORDER BY created_at DESC, id DESC`, handle)
	if err != nil {
		return nil, errs.Storage(err, "list checkpoints")
	}
	defer rows.Close()

	var out []*model.Checkpoint
	for rows.Next() {
		c, err := scanCheckpoint(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan checkpoint")
		}
		out = append(out, c)
	}
	return out, nil
}

// UpdateCheckpointStatus transitions a checkpoint's review state.
func (s *Store) UpdateCheckpointStatus(id string, status model.CheckpointStatus) error {
	res, err := s.db.Exec(`UPDATE checkpoints SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return errs.Storage(err, "update checkpoint status")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("checkpoint " + id)
	}
	return nil
}
