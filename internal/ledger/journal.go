package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalType represents the purpose of a journal entry
type JournalType int32

const (
	JournalTypePoolFunding   JournalType = iota // external:fee_router → vault:pool
	JournalTypePayoutCredit                     // vault:pool → vault:pending (on finalize)
	JournalTypeClaimRelease                     // vault:pending → participant:payout
	JournalTypeClaimTransfer                    // participant:payout → external:transfers
	JournalTypeSweepRecovery                    // vault:pending → vault:pool (next round)
)

func (jt JournalType) String() string {
	switch jt {
	case JournalTypePoolFunding:
		return "pool_funding"
	case JournalTypePayoutCredit:
		return "payout_credit"
	case JournalTypeClaimRelease:
		return "claim_release"
	case JournalTypeClaimTransfer:
		return "claim_transfer"
	case JournalTypeSweepRecovery:
		return "sweep_recovery"
	default:
		return "unknown"
	}
}

// Journal represents a single double-entry journal entry
type Journal struct {
	JournalID     uuid.UUID   // Unique identifier
	BatchID       uuid.UUID   // Groups entries produced by one event
	EventRef      string      // Idempotency key of source event
	Sequence      int64       // Global event sequence
	DebitAccount  AccountKey  // Account receiving debit (balance increases)
	CreditAccount AccountKey  // Account receiving credit (balance decreases)
	Engine        EngineID    // Fund flow this entry belongs to
	Amount        int64       // Fixed-point amount (ALWAYS positive)
	JournalType   JournalType // Entry type
	TickMicros    int64       // Logical tick timestamp (epoch microseconds)
}

// Batch represents a balanced set of journal entries
type Batch struct {
	BatchID    uuid.UUID
	EventRef   string
	Sequence   int64
	TickMicros int64
	Journals   []Journal
}

// Validate ensures the batch is well-formed.
// Each entry is a balanced transfer by construction: a single positive
// amount moves from the credit account to the debit account, so
// Σ debits == Σ credits holds per-entry. Multi-leg batches (finalize
// distributions) use multiple entries under one batch_id.
func (b *Batch) Validate() error {
	if len(b.Journals) == 0 {
		return fmt.Errorf("batch %s is empty", b.BatchID)
	}

	for _, j := range b.Journals {
		if j.Amount <= 0 {
			return fmt.Errorf("journal %s has non-positive amount: %d", j.JournalID, j.Amount)
		}

		if j.BatchID != b.BatchID {
			return fmt.Errorf("journal %s has mismatched batch_id", j.JournalID)
		}

		if j.DebitAccount == j.CreditAccount {
			return fmt.Errorf("journal %s has same debit and credit account", j.JournalID)
		}
	}

	return nil
}
