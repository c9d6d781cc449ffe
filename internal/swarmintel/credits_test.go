// ABOUTME: Tests for credit accounts, transfers, reputation, and the leaderboard.
// ABOUTME: Covers insufficient-balance rejection and transaction history ordering.
package swarmintel

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

func TestRecordTransactionAndLeaderboard(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.RecordTransaction("s1", "a", model.TxEarn, 10, "task done"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if _, err := svc.RecordTransaction("s1", "b", model.TxEarn, 25, "task done"); err != nil {
		t.Fatalf("record: %v", err)
	}
	board, err := svc.GetLeaderboard("s1", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 2 || board[0].AgentHandle != "b" {
		t.Fatalf("expected b first, got %+v", board)
	}
}

func TestTransferAtomicAndInsufficientBalance(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.RecordTransaction("s1", "a", model.TxEarn, 10, "seed"); err != nil {
		t.Fatal(err)
	}
	if err := svc.Transfer("s1", "a", "b", 4, "gift"); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	a, err := svc.GetOrCreate("s1", "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := svc.GetOrCreate("s1", "b")
	if err != nil {
		t.Fatal(err)
	}
	if a.Balance != 6 || b.Balance != 4 {
		t.Fatalf("expected a=6 b=4, got a=%f b=%f", a.Balance, b.Balance)
	}

	err = svc.Transfer("s1", "a", "b", 100, "too much")
	if !errs.Is(err, errs.KindInsufficientFunds) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
}

func TestUpdateReputationSuccessAndFailure(t *testing.T) {
	svc, _ := newTestService(t)
	next, err := svc.UpdateReputation("s1", "a", true, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if next != 0.5 {
		t.Fatalf("expected rep 0 + 0.5*(1-0) = 0.5, got %f", next)
	}
	next, err = svc.UpdateReputation("s1", "a", true, 0.5)
	if err != nil {
		t.Fatal(err)
	}
	if next != 0.75 {
		t.Fatalf("expected rep 0.5 + 0.5*(1-0.5) = 0.75, got %f", next)
	}
	next, err = svc.UpdateReputation("s1", "a", false, 1.0)
	if err != nil {
		t.Fatal(err)
	}
	if next != 0 {
		t.Fatalf("expected full-weight failure to zero reputation, got %f", next)
	}
}

func TestGetTransactionHistoryMostRecentFirst(t *testing.T) {
	svc, fc := newTestService(t)
	if _, err := svc.RecordTransaction("s1", "a", model.TxEarn, 1, "first"); err != nil {
		t.Fatal(err)
	}
	fc.Advance(1000)
	if _, err := svc.RecordTransaction("s1", "a", model.TxEarn, 1, "second"); err != nil {
		t.Fatal(err)
	}
	hist, err := svc.GetTransactionHistory("s1", "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].Reason != "second" {
		t.Fatalf("expected most recent first, got %+v", hist)
	}
}
