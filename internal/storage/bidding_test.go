// ABOUTME: Tests for task bid persistence and acceptance closing sibling bids.
package storage

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/model"
)

func TestPlaceBidDuplicatePendingReplaces(t *testing.T) {
	s := newTestStore(t)
	bid := &model.TaskBid{ID: "b1", TaskID: "t1", BidderHandle: "scout-1", Amount: 10, Status: model.BidPending, CreatedAt: 1}
	if err := s.PlaceBid(bid); err != nil {
		t.Fatalf("first bid: %v", err)
	}
	if err := s.PlaceBid(&model.TaskBid{ID: "b2", TaskID: "t1", BidderHandle: "scout-1", Amount: 15, Status: model.BidPending, CreatedAt: 2}); err != nil {
		t.Fatalf("second pending bid: %v", err)
	}
	pending, err := s.ListPendingBids("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "b2" || pending[0].Amount != 15 {
		t.Fatalf("expected the second bid to replace the first, got %+v", pending)
	}
}

func TestSettleAuctionAcceptsWinnerRejectsSiblings(t *testing.T) {
	s := newTestStore(t)
	bids := []*model.TaskBid{
		{ID: "b1", TaskID: "t1", BidderHandle: "scout-1", Amount: 10, Status: model.BidPending, CreatedAt: 1},
		{ID: "b2", TaskID: "t1", BidderHandle: "scout-2", Amount: 15, Status: model.BidPending, CreatedAt: 2},
	}
	for _, b := range bids {
		if err := s.PlaceBid(b); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.SettleAuction("t1", "b2"); err != nil {
		t.Fatalf("settle auction: %v", err)
	}

	pending, err := s.ListPendingBids("t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("expected no pending bids left, got %+v", pending)
	}

	// Winner's stored amount is untouched by settlement — the effective
	// price is computed by the caller, never written back to the bid row.
	winner, err := scanBid(s.db.QueryRow(`SELECT `+bidColumns+` FROM bids WHERE id = 'b2'`))
	if err != nil {
		t.Fatal(err)
	}
	if winner.Status != model.BidAccepted || winner.Amount != 15 {
		t.Errorf("unexpected winner state: %+v", winner)
	}
}
