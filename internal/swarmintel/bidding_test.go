// ABOUTME: Tests for bid submission, weighted evaluation, second-price auction, and acceptance.
// ABOUTME: Covers sibling-bid closure once a winner is accepted.
package swarmintel

import "testing"

func TestEvaluateBidsScoresAndPicksWinner(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.SubmitBid("task-1", "a", 10, 0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitBid("task-1", "b", 20, 0.9); err != nil {
		t.Fatal(err)
	}
	reputations := map[string]float64{"a": 0.2, "b": 0.9}
	result, err := svc.EvaluateBids("task-1", reputations, 0.3, 0.3, 0.4, false)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.WinnerHandle != "b" {
		t.Fatalf("expected b (higher bid, confidence, reputation) to win, got %+v", result)
	}
}

func TestEvaluateBidsPreferLowerBidsFlipsNormalization(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.SubmitBid("task-1", "cheap", 5, 0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitBid("task-1", "expensive", 50, 0.5); err != nil {
		t.Fatal(err)
	}
	result, err := svc.EvaluateBids("task-1", nil, 1.0, 0, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	if result.WinnerHandle != "cheap" {
		t.Fatalf("expected cheap to win under preferLowerBids, got %+v", result)
	}
}

func TestSecondPriceAuctionEffectivePrice(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.SubmitBid("task-1", "a", 100, 0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitBid("task-1", "b", 80, 0.5); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitBid("task-1", "c", 60, 0.5); err != nil {
		t.Fatal(err)
	}
	result, err := svc.RunSecondPriceAuction("task-1")
	if err != nil {
		t.Fatalf("auction: %v", err)
	}
	if result.WinnerHandle != "a" || result.EffectivePrice != 80 {
		t.Fatalf("expected a to win at the second-highest bid of 80, got %+v", result)
	}
}

func TestSecondPriceAuctionSingleBidderPaysOwnBid(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.SubmitBid("task-1", "solo", 42, 0.5); err != nil {
		t.Fatal(err)
	}
	result, err := svc.RunSecondPriceAuction("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if result.EffectivePrice != 42 {
		t.Fatalf("expected sole bidder to pay their own bid, got %+v", result)
	}
}

func TestAcceptBidRejectsSiblings(t *testing.T) {
	svc, _ := newTestService(t)
	winner, err := svc.SubmitBid("task-1", "a", 10, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.SubmitBid("task-1", "b", 20, 0.5); err != nil {
		t.Fatal(err)
	}
	if err := svc.AcceptBid("task-1", winner.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	pending, err := svc.store.ListPendingBids("task-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected the sibling bid rejected and none left pending, got %+v", pending)
	}
}
