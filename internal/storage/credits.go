// ABOUTME: Credit account and transaction ledger persistence.
// ABOUTME: Transfers run inside one transaction so no reader sees a half-applied move. See spec.md §4.G.
package storage

import (
	"database/sql"
	"fmt"

	"github.com/fleetforge/fleetd/internal/errs"
	"github.com/fleetforge/fleetd/internal/model"
)

// leaderboardColumns whitelists the columns GetLeaderboard may order by,
// since orderBy is caller-supplied and must never reach the query
// unvalidated.
var leaderboardColumns = map[string]string{
	"balance":    "balance",
	"reputation": "reputation_score",
	"taskCount":  "task_count",
}

// GetOrCreateAccount fetches an agent's credit account, creating a
// zero-balance one if it doesn't exist yet.
func (s *Store) GetOrCreateAccount(swarmID, agentHandle string) (*model.CreditAccount, error) {
	acct, err := s.getAccount(s.db, swarmID, agentHandle)
	if err == nil {
		return acct, nil
	}
	if !errs.Is(err, errs.KindNotFound) {
		return nil, err
	}
	_, execErr := s.db.Exec(
		`INSERT INTO credit_accounts (swarm_id, agent_handle) VALUES (?,?)`, swarmID, agentHandle,
	)
	if execErr != nil {
		return nil, errs.Storage(execErr, "create credit account")
	}
	return &model.CreditAccount{SwarmID: swarmID, AgentHandle: agentHandle}, nil
}

type queryRower interface {
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) getAccount(q queryRower, swarmID, agentHandle string) (*model.CreditAccount, error) {
	var a model.CreditAccount
	err := q.QueryRow(`
		SELECT swarm_id, agent_handle, balance, reputation_score, total_earned, task_count, success_count
		FROM credit_accounts WHERE swarm_id = ? AND agent_handle = ?`, swarmID, agentHandle,
	).Scan(&a.SwarmID, &a.AgentHandle, &a.Balance, &a.ReputationScore, &a.TotalEarned, &a.TaskCount, &a.SuccessCount)
	if err == sql.ErrNoRows {
		return nil, errs.NotFound("credit account")
	}
	if err != nil {
		return nil, errs.Storage(err, "get credit account")
	}
	return &a, nil
}

// ApplyTransaction records a ledger entry and updates the account balance
// atomically, per spec.md §4.G Credits.earn/spend. Spend transactions
// (negative amount) that would drive balance below zero fail with
// errs.InsufficientBalance instead of being applied.
func (s *Store) ApplyTransaction(tx *model.CreditTransaction) error {
	return s.withTx(func(sqlTx *sql.Tx) error {
		return applyTransactionLeg(sqlTx, tx)
	})
}

// applyTransactionLeg performs one ledger entry's balance update and
// insert within an already-open transaction, shared by ApplyTransaction
// and Transfer's two legs.
func applyTransactionLeg(sqlTx *sql.Tx, tx *model.CreditTransaction) error {
	if _, err := sqlTx.Exec(
		`INSERT INTO credit_accounts (swarm_id, agent_handle) VALUES (?,?) ON CONFLICT DO NOTHING`,
		tx.SwarmID, tx.AgentHandle,
	); err != nil {
		return errs.Storage(err, "ensure credit account")
	}

	var balance float64
	if err := sqlTx.QueryRow(
		`SELECT balance FROM credit_accounts WHERE swarm_id = ? AND agent_handle = ?`,
		tx.SwarmID, tx.AgentHandle,
	).Scan(&balance); err != nil {
		return errs.Storage(err, "get credit account balance")
	}

	newBalance := balance + tx.Amount
	if newBalance < 0 {
		return errs.InsufficientBalance("agent %s balance %.2f cannot cover %.2f", tx.AgentHandle, balance, tx.Amount)
	}

	taskDelta, successDelta, earnedDelta := 0, 0, 0.0
	if tx.Type == model.TxEarn {
		taskDelta = 1
		successDelta = 1
		earnedDelta = tx.Amount
	}

	if _, err := sqlTx.Exec(`
		UPDATE credit_accounts SET balance = ?, total_earned = total_earned + ?,
			task_count = task_count + ?, success_count = success_count + ?
		WHERE swarm_id = ? AND agent_handle = ?`,
		newBalance, earnedDelta, taskDelta, successDelta, tx.SwarmID, tx.AgentHandle,
	); err != nil {
		return errs.Storage(err, "update credit account")
	}

	if _, err := sqlTx.Exec(`
		INSERT INTO credit_transactions (id, swarm_id, agent_handle, type, amount, reason, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		tx.ID, tx.SwarmID, tx.AgentHandle, string(tx.Type), tx.Amount, tx.Reason, tx.CreatedAt,
	); err != nil {
		return errs.Storage(err, "insert credit transaction")
	}
	return nil
}

// Transfer debits fromTx and credits toTx in one transaction, per spec.md
// §4.G Credits.transfer's "atomic two-leg with InsufficientBalance
// check". If the debit leg would drive the sender below zero, neither leg
// is applied.
func (s *Store) Transfer(fromTx, toTx *model.CreditTransaction) error {
	return s.withTx(func(sqlTx *sql.Tx) error {
		if err := applyTransactionLeg(sqlTx, fromTx); err != nil {
			return err
		}
		return applyTransactionLeg(sqlTx, toTx)
	})
}

// UpdateReputation sets an agent's reputation score directly, per spec.md
// §4.G Credits' reputation update rule (computed by the caller; this
// method only persists the bounded result).
func (s *Store) UpdateReputation(swarmID, agentHandle string, score float64) error {
	if _, err := s.db.Exec(
		`INSERT INTO credit_accounts (swarm_id, agent_handle) VALUES (?,?) ON CONFLICT DO NOTHING`,
		swarmID, agentHandle,
	); err != nil {
		return errs.Storage(err, "ensure credit account")
	}
	if _, err := s.db.Exec(
		`UPDATE credit_accounts SET reputation_score = ? WHERE swarm_id = ? AND agent_handle = ?`,
		score, swarmID, agentHandle,
	); err != nil {
		return errs.Storage(err, "update reputation")
	}
	return nil
}

// GetTransactionHistory returns an agent's ledger entries, most recent
// first, per spec.md §4.G Credits.getTransactionHistory.
func (s *Store) GetTransactionHistory(swarmID, agentHandle string, limit int) ([]*model.CreditTransaction, error) {
	rows, err := s.db.Query(`
		SELECT id, swarm_id, agent_handle, type, amount, reason, created_at
		FROM credit_transactions WHERE swarm_id = ? AND agent_handle = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, swarmID, agentHandle, limit)
	if err != nil {
		return nil, errs.Storage(err, "get transaction history")
	}
	defer rows.Close()

	var out []*model.CreditTransaction
	for rows.Next() {
		var tx model.CreditTransaction
		var txType string
		if err := rows.Scan(&tx.ID, &tx.SwarmID, &tx.AgentHandle, &txType, &tx.Amount, &tx.Reason, &tx.CreatedAt); err != nil {
			return nil, errs.Storage(err, "scan transaction")
		}
		tx.Type = model.TransactionType(txType)
		out = append(out, &tx)
	}
	return out, nil
}

// GetLeaderboard returns the top agents in a swarm ordered by orderBy
// ("balance", "reputation", or "taskCount"; defaults to "balance" for an
// unrecognized value), per spec.md §4.G Credits.getLeaderboard.
func (s *Store) GetLeaderboard(swarmID, orderBy string, limit int) ([]*model.LeaderboardEntry, error) {
	column, ok := leaderboardColumns[orderBy]
	if !ok {
		column = "balance"
	}
	rows, err := s.db.Query(fmt.Sprintf(`
		SELECT agent_handle, balance, reputation_score, task_count
		FROM credit_accounts WHERE swarm_id = ?
		ORDER BY %s DESC, agent_handle ASC
		LIMIT ?`, column), swarmID, limit)
	if err != nil {
		return nil, errs.Storage(err, "get leaderboard")
	}
	defer rows.Close()

	var out []*model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		if err := rows.Scan(&e.AgentHandle, &e.Balance, &e.Reputation, &e.TaskCount); err != nil {
			return nil, errs.Storage(err, "scan leaderboard entry")
		}
		out = append(out, &e)
	}
	return out, nil
}
