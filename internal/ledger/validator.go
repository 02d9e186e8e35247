package ledger

import (
	"fmt"
)

// InvariantValidator checks ledger invariants
type InvariantValidator struct {
	tracker *BalanceTracker
}

func NewInvariantValidator(tracker *BalanceTracker) *InvariantValidator {
	return &InvariantValidator{
		tracker: tracker,
	}
}

// ValidateBatchBalance verifies batch is balanced
func (v *InvariantValidator) ValidateBatchBalance(batch *Batch) error {
	return batch.Validate()
}

// ValidateGlobalBalance verifies the ledger is zero-sum per engine
func (v *InvariantValidator) ValidateGlobalBalance() error {
	totals := v.tracker.ComputeGlobalBalance()

	for engine, total := range totals {
		if total != 0 {
			return fmt.Errorf("global balance for %s engine is non-zero: %d", engine, total)
		}
	}

	return nil
}

// ValidateConservation verifies an engine's fund accounting against the
// counters its round records report: the pending account must equal
// distributed-minus-claimed-minus-recovered outstanding, and the pool
// account must equal the active round's accumulated funding. Neither may
// go negative.
func (v *InvariantValidator) ValidateConservation(engine EngineID, outstanding, activePool int64) error {
	pending := v.tracker.PendingBalance(engine)
	if pending < 0 {
		return fmt.Errorf("%s pending balance negative: %d", engine, pending)
	}
	if pending != outstanding {
		return fmt.Errorf("%s pending balance %d does not cover outstanding claims %d", engine, pending, outstanding)
	}

	pool := v.tracker.PoolBalance(engine)
	if pool < 0 {
		return fmt.Errorf("%s pool balance negative: %d", engine, pool)
	}
	if pool != activePool {
		return fmt.Errorf("%s pool balance %d diverged from active round pool %d", engine, pool, activePool)
	}

	return nil
}
