// ABOUTME: Consensus proposal and vote persistence.
// ABOUTME: See spec.md §4.G.
package storage

import (
	"database/sql"
	"encoding/json"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// CreateProposal opens a new vote, per spec.md §4.G Consensus.propose.
func (s *Store) CreateProposal(p *model.Proposal) error {
	opts, err := json.Marshal(p.Options)
	if err != nil {
		return errs.Internal("marshal proposal options: %v", err)
	}
	_, execErr := s.db.Exec(`
		INSERT INTO proposals (
			id, swarm_id, proposer_handle, subject, options, status, deadline,
			created_at, closed_at, winner, quorum, participation
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.SwarmID, p.ProposerHandle, p.Subject, string(opts), string(p.Status),
		p.Deadline, p.CreatedAt, p.ClosedAt, p.Winner, p.Quorum, p.Participation,
	)
	if execErr != nil {
		return errs.Storage(execErr, "insert proposal")
	}
	return nil
}

func scanProposal(row interface{ Scan(...any) error }) (*model.Proposal, error) {
	var p model.Proposal
	var status, opts string
	if err := row.Scan(
		&p.ID, &p.SwarmID, &p.ProposerHandle, &p.Subject, &opts, &status, &p.Deadline,
		&p.CreatedAt, &p.ClosedAt, &p.Winner, &p.Quorum, &p.Participation,
	); err != nil {
		return nil, err
	}
	p.Status = model.ProposalStatus(status)
	_ = json.Unmarshal([]byte(opts), &p.Options)
	return &p, nil
}

const proposalColumns = `id, swarm_id, proposer_handle, subject, options, status, deadline,
	created_at, closed_at, winner, quorum, participation`

// GetProposal fetches a proposal by ID.
func (s *Store) GetProposal(id string) (*model.Proposal, error) {
	row := s.db.QueryRow(`SELECT `+proposalColumns+` FROM proposals WHERE id = ?`, id)
	p, err := scanProposal(row)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("proposal " + id)
	}
	if err != nil {
		return nil, errs.Storage(err, "get proposal")
	}
	return p, nil
}

// CastVote records or replaces a voter's ballot. A proposal accepts votes
// only while open, per spec.md §4.G invariant "votes after close are
// rejected".
func (s *Store) CastVote(v *model.Vote) error {
	return s.withTx(func(tx *sql.Tx) error {
		var status string
		if err := tx.QueryRow(`SELECT status FROM proposals WHERE id = ?`, v.ProposalID).Scan(&status); err != nil {
			if err == sql.ErrNoRows {
				return errs.NotFound("proposal " + v.ProposalID)
			}
			return errs.Storage(err, "get proposal status")
		}
		if status != string(model.ProposalOpen) {
			return errs.InvariantViolation("proposal %s is closed", v.ProposalID)
		}
		if _, err := tx.Exec(`
			INSERT INTO votes (proposal_id, voter_handle, option, cast_at) VALUES (?,?,?,?)
			ON CONFLICT(proposal_id, voter_handle) DO UPDATE SET option = excluded.option, cast_at = excluded.cast_at`,
			v.ProposalID, v.VoterHandle, v.Option, v.CastAt,
		); err != nil {
			return errs.Storage(err, "cast vote")
		}
		return nil
	})
}

// GetVote fetches one voter's ballot on a proposal, errs.NotFound if they
// haven't voted.
func (s *Store) GetVote(proposalID, voterHandle string) (*model.Vote, error) {
	var v model.Vote
	err := s.db.QueryRow(
		`SELECT proposal_id, voter_handle, option, cast_at FROM votes WHERE proposal_id = ? AND voter_handle = ?`,
		proposalID, voterHandle,
	).Scan(&v.ProposalID, &v.VoterHandle, &v.Option, &v.CastAt)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("vote by %s on proposal %s", voterHandle, proposalID)
	}
	if err != nil {
		return nil, errs.Storage(err, "get vote")
	}
	return &v, nil
}

// TallyVotes counts ballots per option for a proposal.
func (s *Store) TallyVotes(proposalID string) (map[string]int, int, error) {
	rows, err := s.db.Query(`SELECT option FROM votes WHERE proposal_id = ?`, proposalID)
	if err != nil {
		return nil, 0, errs.Storage(err, "tally votes")
	}
	defer rows.Close()

	tally := make(map[string]int)
	total := 0
	for rows.Next() {
		var opt string
		if err := rows.Scan(&opt); err != nil {
			return nil, 0, errs.Storage(err, "scan vote")
		}
		tally[opt]++
		total++
	}
	return tally, total, nil
}

// CloseProposal finalizes a proposal with the winning option and
// participation rate, transitioning it out of the open state.
func (s *Store) CloseProposal(id, winner string, participation float64, closedAt int64) error {
	res, err := s.db.Exec(`
		UPDATE proposals SET status = 'closed', winner = ?, participation = ?, closed_at = ?
		WHERE id = ? AND status = 'open'`, winner, participation, closedAt, id)
	if err != nil {
		return errs.Storage(err, "close proposal")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errs.InvariantViolation("proposal %s already closed or missing", id)
	}
	return nil
}
