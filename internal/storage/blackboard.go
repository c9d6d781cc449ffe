// ABOUTME: Blackboard message persistence: post, filtered listing, read tracking, archival.
// ABOUTME: See spec.md §4.B.
package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// PostMessage inserts a new blackboard message.
func (s *Store) PostMessage(m *model.BlackboardMessage) error {
	readBy, err := marshalReadBy(m.ReadBy)
	if err != nil {
		return err
	}
	_, execErr := s.db.Exec(`
		INSERT INTO blackboard_messages (
			id, swarm_id, sender_handle, message_type, target_handle, priority,
			payload, read_by, created_at, archived_at, expires_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.SwarmID, m.SenderHandle, string(m.MessageType), m.TargetHandle,
		string(m.Priority), m.Payload, readBy, m.CreatedAt, m.ArchivedAt, m.ExpiresAt,
	)
	if execErr != nil {
		return errs.Storage(execErr, "insert blackboard message")
	}
	return nil
}

func marshalReadBy(readBy map[string]bool) (string, error) {
	handles := make([]string, 0, len(readBy))
	for h, read := range readBy {
		if read {
			handles = append(handles, h)
		}
	}
	b, err := json.Marshal(handles)
	if err != nil {
		return "", errs.Internal("marshal readBy: %v", err)
	}
	return string(b), nil
}

func unmarshalReadBy(raw string) map[string]bool {
	var handles []string
	_ = json.Unmarshal([]byte(raw), &handles)
	out := make(map[string]bool, len(handles))
	for _, h := range handles {
		out[h] = true
	}
	return out
}

const blackboardColumns = `id, swarm_id, sender_handle, message_type, target_handle, priority,
	payload, read_by, created_at, archived_at, expires_at`

func scanMessage(row interface{ Scan(...any) error }) (*model.BlackboardMessage, error) {
	var m model.BlackboardMessage
	var msgType, priority, readBy string
	if err := row.Scan(
		&m.ID, &m.SwarmID, &m.SenderHandle, &msgType, &m.TargetHandle, &priority,
		&m.Payload, &readBy, &m.CreatedAt, &m.ArchivedAt, &m.ExpiresAt,
	); err != nil {
		return nil, err
	}
	m.MessageType = model.MessageType(msgType)
	m.Priority = model.Priority(priority)
	m.ReadBy = unmarshalReadBy(readBy)
	return &m, nil
}

// ListMessages returns non-archived messages for a swarm, broadcast or
// targeted at handle, newest last.
func (s *Store) ListMessages(swarmID, handle string, nowMillis int64) ([]*model.BlackboardMessage, error) {
	rows, err := s.db.Query(`
		SELECT `+blackboardColumns+` FROM blackboard_messages
		WHERE swarm_id = ? AND archived_at IS NULL
		  AND (target_handle IS NULL OR target_handle = ?)
		  AND (expires_at IS NULL OR expires_at > ?)
		ORDER BY created_at, id`, swarmID, handle, nowMillis)
	if err != nil {
		return nil, errs.Storage(err, "list messages")
	}
	defer rows.Close()

	var out []*model.BlackboardMessage
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan message")
		}
		out = append(out, m)
	}
	return out, nil
}

// MarkMessageRead adds handle to a message's monotonic read set.
func (s *Store) MarkMessageRead(id, handle string) error {
	return s.withTx(func(tx *sql.Tx) error {
		var readBy string
		if err := tx.QueryRow(`SELECT read_by FROM blackboard_messages WHERE id = ?`, id).Scan(&readBy); err != nil {
			if err == sql.ErrNoRows {
				return errs.NotFound("blackboard message " + id)
			}
			return errs.Storage(err, "get message read_by")
		}
		set := unmarshalReadBy(readBy)
		set[handle] = true
		marshalled, err := marshalReadBy(set)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(`UPDATE blackboard_messages SET read_by = ? WHERE id = ?`, marshalled, id); err != nil {
			return errs.Storage(err, "update message read_by")
		}
		return nil
	})
}

// ArchiveMessage marks a message archived so it drops out of ListMessages.
func (s *Store) ArchiveMessage(id string, archivedAt int64) error {
	res, err := s.db.Exec(`UPDATE blackboard_messages SET archived_at = ? WHERE id = ? AND archived_at IS NULL`, archivedAt, id)
	if err != nil {
		return errs.Storage(err, "archive message")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.NotFound("blackboard message " + id)
	}
	return nil
}

// ExpireMessages archives every message whose TTL has passed as of
// nowMillis, per SPEC_FULL.md §4's additive expiresAt field.
func (s *Store) ExpireMessages(nowMillis int64) (int64, error) {
	res, err := s.db.Exec(
		`UPDATE blackboard_messages SET archived_at = ? WHERE expires_at IS NOT NULL AND expires_at <= ? AND archived_at IS NULL`,
		nowMillis, nowMillis,
	)
	if err != nil {
		return 0, errs.Storage(err, "expire messages")
	}
	n, _ := res.RowsAffected()
	return n, nil
}
