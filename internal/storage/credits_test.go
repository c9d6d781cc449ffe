// ABOUTME: Tests for credit account and transaction persistence.
// ABOUTME: Covers the transfer transaction's atomicity across both accounts.
package storage

import (
	"testing"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

func TestApplyTransactionEarnIncreasesBalance(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyTransaction(&model.CreditTransaction{
		ID: "tx1", SwarmID: "s1", AgentHandle: "scout-1", Type: model.TxEarn, Amount: 10, CreatedAt: 1000,
	})
	if err != nil {
		t.Fatalf("apply transaction: %v", err)
	}

	acct, err := s.GetOrCreateAccount("s1", "scout-1")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 10 || acct.TotalEarned != 10 || acct.TaskCount != 1 {
		t.Errorf("unexpected account state: %+v", acct)
	}
}

func TestApplyTransactionSpendBelowZeroFails(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyTransaction(&model.CreditTransaction{
		ID: "tx1", SwarmID: "s1", AgentHandle: "scout-1", Type: model.TxSpend, Amount: -5, CreatedAt: 1000,
	})
	if !errs.Is(err, errs.KindInsufficientFunds) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}

	acct, err := s.GetOrCreateAccount("s1", "scout-1")
	if err != nil {
		t.Fatal(err)
	}
	if acct.Balance != 0 {
		t.Errorf("expected balance unchanged after failed spend, got %f", acct.Balance)
	}
}

func TestGetLeaderboardOrdersByBalanceDesc(t *testing.T) {
	s := newTestStore(t)
	for _, tx := range []*model.CreditTransaction{
		{ID: "tx1", SwarmID: "s1", AgentHandle: "a", Type: model.TxEarn, Amount: 5, CreatedAt: 1},
		{ID: "tx2", SwarmID: "s1", AgentHandle: "b", Type: model.TxEarn, Amount: 20, CreatedAt: 2},
	} {
		if err := s.ApplyTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}

	board, err := s.GetLeaderboard("s1", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(board) != 2 || board[0].AgentHandle != "b" {
		t.Errorf("expected b first, got %+v", board)
	}
}

func TestGetLeaderboardOrdersByRequestedColumn(t *testing.T) {
	s := newTestStore(t)
	for _, tx := range []*model.CreditTransaction{
		{ID: "tx1", SwarmID: "s1", AgentHandle: "a", Type: model.TxEarn, Amount: 20, CreatedAt: 1},
		{ID: "tx2", SwarmID: "s1", AgentHandle: "b", Type: model.TxEarn, Amount: 5, CreatedAt: 2},
	} {
		if err := s.ApplyTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.UpdateReputation("s1", "a", 0.1); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateReputation("s1", "b", 0.9); err != nil {
		t.Fatal(err)
	}

	byBalance, err := s.GetLeaderboard("s1", "balance", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(byBalance) != 2 || byBalance[0].AgentHandle != "a" {
		t.Errorf("expected a first by balance, got %+v", byBalance)
	}

	byReputation, err := s.GetLeaderboard("s1", "reputation", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(byReputation) != 2 || byReputation[0].AgentHandle != "b" {
		t.Errorf("expected b first by reputation, got %+v", byReputation)
	}
}

func TestTransferMovesBalanceBothLegs(t *testing.T) {
	s := newTestStore(t)
	if err := s.ApplyTransaction(&model.CreditTransaction{
		ID: "tx1", SwarmID: "s1", AgentHandle: "a", Type: model.TxEarn, Amount: 10, CreatedAt: 1,
	}); err != nil {
		t.Fatal(err)
	}

	err := s.Transfer(
		&model.CreditTransaction{ID: "tx2", SwarmID: "s1", AgentHandle: "a", Type: model.TxSpend, Amount: -4, Reason: "transfer", CreatedAt: 2},
		&model.CreditTransaction{ID: "tx3", SwarmID: "s1", AgentHandle: "b", Type: model.TxBonus, Amount: 4, Reason: "transfer", CreatedAt: 2},
	)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	a, err := s.GetOrCreateAccount("s1", "a")
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.GetOrCreateAccount("s1", "b")
	if err != nil {
		t.Fatal(err)
	}
	if a.Balance != 6 || b.Balance != 4 {
		t.Errorf("expected a=6 b=4, got a=%f b=%f", a.Balance, b.Balance)
	}
}

func TestTransferInsufficientBalanceAppliesNeitherLeg(t *testing.T) {
	s := newTestStore(t)
	err := s.Transfer(
		&model.CreditTransaction{ID: "tx1", SwarmID: "s1", AgentHandle: "a", Type: model.TxSpend, Amount: -10, CreatedAt: 1},
		&model.CreditTransaction{ID: "tx2", SwarmID: "s1", AgentHandle: "b", Type: model.TxBonus, Amount: 10, CreatedAt: 1},
	)
	if !errs.Is(err, errs.KindInsufficientFunds) {
		t.Fatalf("expected insufficient balance, got %v", err)
	}
	b, gErr := s.GetOrCreateAccount("s1", "b")
	if gErr != nil {
		t.Fatal(gErr)
	}
	if b.Balance != 0 {
		t.Errorf("expected recipient leg not applied, got balance %f", b.Balance)
	}
}

func TestUpdateReputationAndTransactionHistory(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateReputation("s1", "a", 0.75); err != nil {
		t.Fatalf("update reputation: %v", err)
	}
	acct, err := s.GetOrCreateAccount("s1", "a")
	if err != nil {
		t.Fatal(err)
	}
	if acct.ReputationScore != 0.75 {
		t.Errorf("expected reputation 0.75, got %f", acct.ReputationScore)
	}

	for _, tx := range []*model.CreditTransaction{
		{ID: "tx1", SwarmID: "s1", AgentHandle: "a", Type: model.TxEarn, Amount: 5, CreatedAt: 1},
		{ID: "tx2", SwarmID: "s1", AgentHandle: "a", Type: model.TxEarn, Amount: 5, CreatedAt: 2},
	} {
		if err := s.ApplyTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}
	hist, err := s.GetTransactionHistory("s1", "a", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hist) != 2 || hist[0].ID != "tx2" {
		t.Fatalf("expected tx2 first (most recent), got %+v", hist)
	}
}
