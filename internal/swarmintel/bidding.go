// ABOUTME: Task bid submission and first/second-price auction evaluation. See spec.md §4.G Bidding.
package swarmintel

import (
	"sort"

	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
)

// SubmitBid places a pending bid, upserted over (task, bidder, pending)
// by storage's partial unique index, per spec.md §4.G Bidding.submitBid.
func (s *Service) SubmitBid(taskID, bidderHandle string, amount, confidence float64) (*model.TaskBid, error) {
	b := &model.TaskBid{
		ID:           ids.New(),
		TaskID:       taskID,
		BidderHandle: bidderHandle,
		Amount:       amount,
		Confidence:   clampUnit(confidence),
		Status:       model.BidPending,
		CreatedAt:    s.clock.NowMillis(),
	}
	if err := s.store.PlaceBid(b); err != nil {
		return nil, err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectAll}, "bidding:bid",
		map[string]any{"id": b.ID, "taskId": taskID, "bidderHandle": bidderHandle, "amount": amount})
	return b, nil
}

// EvaluateBids scores every pending bid on taskID as w_bid*normalizedBid +
// w_conf*confidence + w_rep*reputation, per spec.md §4.G
// Bidding.evaluateBids. preferLowerBids flips bid normalization so a
// lower amount scores higher (for reverse/cost auctions). reputations
// supplies each bidder's reputation score; a bidder missing from it
// scores zero reputation.
func (s *Service) EvaluateBids(taskID string, reputations map[string]float64, weightBid, weightConfidence, weightReputation float64, preferLowerBids bool) (*model.AuctionResult, error) {
	bids, err := s.store.ListPendingBids(taskID)
	if err != nil {
		return nil, err
	}
	result := &model.AuctionResult{TaskID: taskID, Scores: map[string]float64{}}
	if len(bids) == 0 {
		return result, nil
	}

	minAmt, maxAmt := bids[0].Amount, bids[0].Amount
	for _, b := range bids {
		if b.Amount < minAmt {
			minAmt = b.Amount
		}
		if b.Amount > maxAmt {
			maxAmt = b.Amount
		}
	}

	normalize := func(amount float64) float64 {
		if maxAmt == minAmt {
			return 1.0
		}
		n := (amount - minAmt) / (maxAmt - minAmt)
		if preferLowerBids {
			n = 1.0 - n
		}
		return n
	}

	var winner *model.TaskBid
	for _, b := range bids {
		rep := reputations[b.BidderHandle]
		score := weightBid*normalize(b.Amount) + weightConfidence*b.Confidence + weightReputation*rep
		result.Scores[b.ID] = score
		if winner == nil || score > result.Scores[winner.ID] {
			winner = b
		}
	}

	result.WinnerHandle = winner.BidderHandle
	result.WinningBidID = winner.ID
	result.EffectivePrice = winner.Amount
	return result, nil
}

// RunSecondPriceAuction picks the winner by raw bid amount descending and
// returns an effective price equal to the second-highest bid (or the
// winner's own bid if it's the only one), per spec.md §4.G Bidding's
// second-price rule. The stored bid amount is never rewritten to this
// effective price (Open Question decision, see DESIGN.md).
func (s *Service) RunSecondPriceAuction(taskID string) (*model.AuctionResult, error) {
	bids, err := s.store.ListPendingBids(taskID)
	if err != nil {
		return nil, err
	}
	result := &model.AuctionResult{TaskID: taskID}
	if len(bids) == 0 {
		return result, nil
	}

	ordered := append([]*model.TaskBid(nil), bids...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Amount > ordered[j].Amount })

	winner := ordered[0]
	effective := winner.Amount
	if len(ordered) > 1 {
		effective = ordered[1].Amount
	}

	result.WinnerHandle = winner.BidderHandle
	result.WinningBidID = winner.ID
	result.EffectivePrice = effective
	return result, nil
}

// AcceptBid settles the auction: the chosen bid becomes accepted and
// every other pending bid on the same task becomes rejected, in one
// transaction, per spec.md §4.G Bidding.acceptBid.
func (s *Service) AcceptBid(taskID, winningBidID string) error {
	if err := s.store.SettleAuction(taskID, winningBidID); err != nil {
		return err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectAll}, "bidding:accepted",
		map[string]any{"taskId": taskID, "winningBidId": winningBidID})
	s.publish(pushhub.Subject{Kind: pushhub.SubjectAll}, "bidding:auction_complete",
		map[string]any{"taskId": taskID, "winningBidId": winningBidID})
	return nil
}
