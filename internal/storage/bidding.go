// ABOUTME: Task bid persistence, including acceptance closing out sibling bids.
// ABOUTME: See spec.md §4.G.
package storage

import (
	"database/sql"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// PlaceBid upserts a pending bid: when the bidder already has a pending
// bid on the task (the "one pending bid per (task, bidder)" partial unique
// index), that bid's id, amount, confidence and createdAt are replaced.
func (s *Store) PlaceBid(b *model.TaskBid) error {
	_, err := s.db.Exec(`
		INSERT INTO bids (id, task_id, bidder_handle, amount, confidence, status, created_at)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(task_id, bidder_handle) WHERE status = 'pending'
		DO UPDATE SET id = excluded.id, amount = excluded.amount,
			confidence = excluded.confidence, created_at = excluded.created_at`,
		b.ID, b.TaskID, b.BidderHandle, b.Amount, b.Confidence, string(b.Status), b.CreatedAt,
	)
	if err != nil {
		return errs.Storage(err, "place bid")
	}
	return nil
}

const bidColumns = `id, task_id, bidder_handle, amount, confidence, status, created_at`

func scanBid(row interface{ Scan(...any) error }) (*model.TaskBid, error) {
	var b model.TaskBid
	var status string
	if err := row.Scan(&b.ID, &b.TaskID, &b.BidderHandle, &b.Amount, &b.Confidence, &status, &b.CreatedAt); err != nil {
		return nil, err
	}
	b.Status = model.BidStatus(status)
	return &b, nil
}

// ListPendingBids returns every pending bid on a task, per spec.md §4.G
// Bidding.evaluateBids.
func (s *Store) ListPendingBids(taskID string) ([]*model.TaskBid, error) {
	rows, err := s.db.Query(`SELECT `+bidColumns+` FROM bids WHERE task_id = ? AND status = 'pending' ORDER BY amount DESC, created_at ASC`, taskID)
	if err != nil {
		return nil, errs.Storage(err, "list pending bids")
	}
	defer rows.Close()

	var out []*model.TaskBid
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, errs.Storage(err, "scan bid")
		}
		out = append(out, b)
	}
	return out, nil
}

// SettleAuction accepts winnerBidID and rejects every other pending bid on
// the same task in one transaction, per the Open Question decision in
// DESIGN.md: the stored bid amount is never rewritten to the auction's
// effective price, only the winner's status changes.
func (s *Store) SettleAuction(taskID, winnerBidID string) error {
	return s.withTx(func(tx *sql.Tx) error {
		res, err := tx.Exec(`UPDATE bids SET status = 'accepted' WHERE id = ? AND task_id = ? AND status = 'pending'`, winnerBidID, taskID)
		if err != nil {
			return errs.Storage(err, "accept winning bid")
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return errs.InvariantViolation("bid %s is not a pending bid on task %s", winnerBidID, taskID)
		}
		if _, err := tx.Exec(`UPDATE bids SET status = 'rejected' WHERE task_id = ? AND id != ? AND status = 'pending'`, taskID, winnerBidID); err != nil {
			return errs.Storage(err, "reject sibling bids")
		}
		return nil
	})
}
