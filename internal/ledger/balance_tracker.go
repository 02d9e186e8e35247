package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// BalanceTracker maintains in-memory account balances
type BalanceTracker struct {
	balances map[AccountKey]int64
}

func NewBalanceTracker() *BalanceTracker {
	return &BalanceTracker{
		balances: make(map[AccountKey]int64),
	}
}

// ApplyJournal applies a single journal entry to balances
func (bt *BalanceTracker) ApplyJournal(j Journal) {
	bt.balances[j.DebitAccount] += j.Amount
	bt.balances[j.CreditAccount] -= j.Amount
}

// ApplyBatch applies all journals in a batch
func (bt *BalanceTracker) ApplyBatch(batch *Batch) error {
	if err := batch.Validate(); err != nil {
		return fmt.Errorf("invalid batch: %w", err)
	}

	for _, j := range batch.Journals {
		bt.ApplyJournal(j)
	}

	return nil
}

// GetBalance returns the current balance for an account
func (bt *BalanceTracker) GetBalance(key AccountKey) int64 {
	return bt.balances[key]
}

// PoolBalance returns the active round's vault pool balance for an engine
func (bt *BalanceTracker) PoolBalance(engine EngineID) int64 {
	return bt.GetBalance(NewVaultAccountKey(SubTypeVaultPool, engine))
}

// PendingBalance returns distributed-but-unclaimed funds for an engine
func (bt *BalanceTracker) PendingBalance(engine EngineID) int64 {
	return bt.GetBalance(NewVaultAccountKey(SubTypeVaultPending, engine))
}

// ParticipantPayout returns a participant's credited-but-untransferred payout
func (bt *BalanceTracker) ParticipantPayout(participant uuid.UUID, engine EngineID) int64 {
	return bt.GetBalance(NewParticipantAccountKey(participant, engine))
}

// ValidateNonNegative checks that a specific account balance is >= 0
func (bt *BalanceTracker) ValidateNonNegative(key AccountKey) error {
	balance := bt.GetBalance(key)
	if balance < 0 {
		return fmt.Errorf("account %s has negative balance: %d", key.AccountPath(), balance)
	}
	return nil
}

// ComputeGlobalBalance sums all account balances per engine (should be 0
// for a zero-sum ledger)
func (bt *BalanceTracker) ComputeGlobalBalance() map[EngineID]int64 {
	totals := make(map[EngineID]int64)

	for key, balance := range bt.balances {
		totals[key.Engine] += balance
	}

	return totals
}

// Snapshot returns a copy of all balances (for state digests)
func (bt *BalanceTracker) Snapshot() map[AccountKey]int64 {
	snapshot := make(map[AccountKey]int64, len(bt.balances))
	for k, v := range bt.balances {
		snapshot[k] = v
	}
	return snapshot
}
