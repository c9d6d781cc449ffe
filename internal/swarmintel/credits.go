// ABOUTME: Credit ledger, reputation update, transfer, and leaderboard. See spec.md §4.G Credits.
package swarmintel

import (
	"github.com/fleetforge/fleetd/internal/ids"
	"github.com/fleetforge/fleetd/internal/model"
	"github.com/fleetforge/fleetd/internal/pushhub"
)

// GetOrCreate fetches an agent's credit account, creating a zero-balance
// one if it doesn't exist, per spec.md §4.G Credits.getOrCreate.
func (s *Service) GetOrCreate(swarmID, agentHandle string) (*model.CreditAccount, error) {
	return s.store.GetOrCreateAccount(swarmID, agentHandle)
}

// RecordTransaction applies an earn/spend/bonus/penalty ledger entry
// atomically, per spec.md §4.G Credits.recordTransaction.
func (s *Service) RecordTransaction(swarmID, agentHandle string, txType model.TransactionType, amount float64, reason string) (*model.CreditTransaction, error) {
	tx := &model.CreditTransaction{
		ID:          ids.New(),
		SwarmID:     swarmID,
		AgentHandle: agentHandle,
		Type:        txType,
		Amount:      amount,
		Reason:      reason,
		CreatedAt:   s.clock.NowMillis(),
	}
	if err := s.store.ApplyTransaction(tx); err != nil {
		return nil, err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: swarmID}, "credits:transaction",
		map[string]any{"id": tx.ID, "swarmId": swarmID, "agentHandle": agentHandle, "type": string(txType), "amount": amount})
	return tx, nil
}

// Transfer moves amount from one agent's balance to another's atomically,
// per spec.md §4.G Credits.transfer. amount must be positive; the debit
// leg fails with errs.InsufficientBalance (and neither leg is applied) if
// fromHandle can't cover it.
func (s *Service) Transfer(swarmID, fromHandle, toHandle string, amount float64, reason string) error {
	now := s.clock.NowMillis()
	fromTx := &model.CreditTransaction{ID: ids.New(), SwarmID: swarmID, AgentHandle: fromHandle, Type: model.TxSpend, Amount: -amount, Reason: reason, CreatedAt: now}
	toTx := &model.CreditTransaction{ID: ids.New(), SwarmID: swarmID, AgentHandle: toHandle, Type: model.TxBonus, Amount: amount, Reason: reason, CreatedAt: now}
	if err := s.store.Transfer(fromTx, toTx); err != nil {
		return err
	}
	s.publish(pushhub.Subject{Kind: pushhub.SubjectSwarm, ID: swarmID}, "credits:transfer",
		map[string]any{"swarmId": swarmID, "from": fromHandle, "to": toHandle, "amount": amount})
	return nil
}

// UpdateReputation applies spec.md §4.G's reputation update rule for a
// success or failure event with weight w ∈ (0,1]: success moves the score
// toward 1 (rep' = rep + w(1-rep)), failure moves it toward 0 (rep' = rep
// - w*rep); the result is bounded to [0,1].
func (s *Service) UpdateReputation(swarmID, agentHandle string, success bool, weight float64) (float64, error) {
	acct, err := s.store.GetOrCreateAccount(swarmID, agentHandle)
	if err != nil {
		return 0, err
	}
	rep := acct.ReputationScore
	var next float64
	if success {
		next = rep + weight*(1-rep)
	} else {
		next = rep - weight*rep
	}
	next = clampUnit(next)
	if err := s.store.UpdateReputation(swarmID, agentHandle, next); err != nil {
		return 0, err
	}
	return next, nil
}

// GetLeaderboard returns the top agents in a swarm ordered by orderBy
// ("balance", "reputation", or "taskCount"), per spec.md §4.G
// Credits.getLeaderboard.
func (s *Service) GetLeaderboard(swarmID, orderBy string, limit int) ([]*model.LeaderboardEntry, error) {
	return s.store.GetLeaderboard(swarmID, orderBy, limit)
}

// GetTransactionHistory returns an agent's ledger entries, most recent
// first, per spec.md §4.G Credits.getTransactionHistory.
func (s *Service) GetTransactionHistory(swarmID, agentHandle string, limit int) ([]*model.CreditTransaction, error) {
	return s.store.GetTransactionHistory(swarmID, agentHandle, limit)
}
