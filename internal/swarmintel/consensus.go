// ABOUTME: Proposal voting and tally. See spec.md §4.G Consensus.
package swarmintel

import (
	"sort"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
)

// CreateProposal opens a new vote, per spec.md §4.G Consensus.propose.
// deadline is optional (nil means no expiry).
func (s *Service) CreateProposal(swarmID, proposerHandle, subject string, options []string, quorum int, deadline *int64) (*model.Proposal, error) {
	p := &model.Proposal{
		ID:             ids.New(),
		SwarmID:        swarmID,
		ProposerHandle: proposerHandle,
		Subject:        subject,
		Options:        options,
		Status:         model.ProposalOpen,
		Deadline:       deadline,
		Quorum:         quorum,
		CreatedAt:      s.clock.NowMillis(),
	}
	if err := s.store.CreateProposal(p); err != nil {
		return nil, err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: swarmID}, "consensus:proposal",
		map[string]any{"id": p.ID, "swarmId": swarmID, "subject": subject})
	return p, nil
}

// CastVote records a ballot, rejected if the proposal is closed, past its
// deadline, or the voter has already cast one, per spec.md §4.G
// Consensus.castVote.
func (s *Service) CastVote(proposalID, voterHandle, option string) error {
	p, err := s.store.GetProposal(proposalID)
	if err != nil {
		return err
	}
	if p.Status != model.ProposalOpen {
		return errs.InvariantViolation("proposal %s is closed", proposalID)
	}
	if p.Deadline != nil && s.clock.NowMillis() >= *p.Deadline {
		return errs.InvariantViolation("proposal %s deadline has passed", proposalID)
	}
	if _, err := s.store.GetVote(proposalID, voterHandle); err == nil {
		return errs.InvariantViolation("voter %s already voted on proposal %s", voterHandle, proposalID)
	} else if !errs.Is(err, errs.KindNotFound) {
		return err
	}

	v := &model.Vote{ProposalID: proposalID, VoterHandle: voterHandle, Option: option, CastAt: s.clock.NowMillis()}
	if err := s.store.CastVote(v); err != nil {
		return err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: p.SwarmID}, "consensus:vote",
		map[string]any{"proposalId": proposalID, "voterHandle": voterHandle, "option": option})
	return nil
}

// CloseAndTally transitions a proposal open → closed, computing the
// winning option (ties broken lexicographically), quorum, and
// participation, per spec.md §4.G Consensus.closeAndTally. Participation
// is votes cast over the proposal's stated quorum target (with a zero
// quorum: 1.0 if any votes were cast, 0 if none were) — spec.md names no
// total-electorate source, so the proposal's own quorum target is the
// only denominator available.
func (s *Service) CloseAndTally(proposalID string) (*model.Proposal, error) {
	p, err := s.store.GetProposal(proposalID)
	if err != nil {
		return nil, err
	}
	tally, total, err := s.store.TallyVotes(proposalID)
	if err != nil {
		return nil, err
	}

	winner := ""
	if total > 0 {
		options := make([]string, 0, len(tally))
		for opt := range tally {
			options = append(options, opt)
		}
		sort.Strings(options)
		winner = options[0]
		for _, opt := range options[1:] {
			if tally[opt] > tally[winner] {
				winner = opt
			}
		}
	}

	participation := 0.0
	if p.Quorum > 0 {
		participation = float64(total) / float64(p.Quorum)
	} else if total > 0 {
		participation = 1.0
	}

	closedAt := s.clock.NowMillis()
	if err := s.store.CloseProposal(proposalID, winner, participation, closedAt); err != nil {
		return nil, err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: p.SwarmID}, "consensus:result",
		map[string]any{"proposalId": proposalID, "winner": winner, "participation": participation})
	return s.store.GetProposal(proposalID)
}
