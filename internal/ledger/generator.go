package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// JournalGenerator creates balanced journal batches from engine transitions
type JournalGenerator struct {
	sequence int64
	tracker  *BalanceTracker // For pre-checks
}

func NewJournalGenerator(startSequence int64, tracker *BalanceTracker) *JournalGenerator {
	return &JournalGenerator{
		sequence: startSequence,
		tracker:  tracker,
	}
}

// SetSequence resets the generator sequence (used during recovery)
func (jg *JournalGenerator) SetSequence(seq int64) {
	jg.sequence = seq
}

func (jg *JournalGenerator) newBatch(eventRef string, tickMicros int64, capacity int) *Batch {
	return &Batch{
		BatchID:    uuid.New(),
		EventRef:   eventRef,
		Sequence:   jg.sequence,
		TickMicros: tickMicros,
		Journals:   make([]Journal, 0, capacity),
	}
}

func (jg *JournalGenerator) appendJournal(b *Batch, debit, credit AccountKey, engine EngineID, amount int64, jtype JournalType) {
	b.Journals = append(b.Journals, Journal{
		JournalID:     uuid.New(),
		BatchID:       b.BatchID,
		EventRef:      b.EventRef,
		Sequence:      jg.sequence,
		DebitAccount:  debit,
		CreditAccount: credit,
		Engine:        engine,
		Amount:        amount,
		JournalType:   jtype,
		TickMicros:    b.TickMicros,
	})
}

// GeneratePoolFunding records funding routed into an engine's pool.
// Moves funds: external:fee_router → vault:pool
func (jg *JournalGenerator) GeneratePoolFunding(
	engine EngineID,
	eventRef string,
	amount int64,
	tickMicros int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("funding amount must be positive: %d", amount)
	}

	batch := jg.newBatch(eventRef, tickMicros, 1)
	jg.appendJournal(batch,
		NewVaultAccountKey(SubTypeVaultPool, engine),
		NewExternalAccountKey(SubTypeExternalFeeRouter, engine),
		engine, amount, JournalTypePoolFunding)
	jg.sequence++

	return batch, nil
}

// GeneratePayoutCredit records a finalize distribution.
// Moves funds: vault:pool → vault:pending, one entry covering the full
// distributed amount. Pre-check: the pool must cover it; a finalize can
// never distribute more than the round accumulated.
func (jg *JournalGenerator) GeneratePayoutCredit(
	engine EngineID,
	eventRef string,
	distributed int64,
	tickMicros int64,
) (*Batch, error) {
	if distributed <= 0 {
		return nil, fmt.Errorf("distribution must be positive: %d", distributed)
	}
	if pool := jg.tracker.PoolBalance(engine); pool < distributed {
		return nil, fmt.Errorf("pool underfunded for distribution: have=%d, need=%d", pool, distributed)
	}

	batch := jg.newBatch(eventRef, tickMicros, 1)
	jg.appendJournal(batch,
		NewVaultAccountKey(SubTypeVaultPending, engine),
		NewVaultAccountKey(SubTypeVaultPool, engine),
		engine, distributed, JournalTypePayoutCredit)
	jg.sequence++

	return batch, nil
}

// GenerateClaimRelease records a pull-claim payout in two legs:
// vault:pending → participant:payout (bookkeeping settles first), then
// participant:payout → external:transfers (the outward transfer boundary).
func (jg *JournalGenerator) GenerateClaimRelease(
	engine EngineID,
	eventRef string,
	participant uuid.UUID,
	amount int64,
	tickMicros int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("claim amount must be positive: %d", amount)
	}
	if pending := jg.tracker.PendingBalance(engine); pending < amount {
		return nil, fmt.Errorf("pending underfunded for claim: have=%d, need=%d", pending, amount)
	}

	batch := jg.newBatch(eventRef, tickMicros, 2)
	jg.appendJournal(batch,
		NewParticipantAccountKey(participant, engine),
		NewVaultAccountKey(SubTypeVaultPending, engine),
		engine, amount, JournalTypeClaimRelease)
	jg.appendJournal(batch,
		NewExternalAccountKey(SubTypeExternalTransfers, engine),
		NewParticipantAccountKey(participant, engine),
		engine, amount, JournalTypeClaimTransfer)
	jg.sequence++

	return batch, nil
}

// GenerateSweepRecovery re-credits expired unclaimed amounts to the open
// round's pool. Moves funds: vault:pending → vault:pool
func (jg *JournalGenerator) GenerateSweepRecovery(
	engine EngineID,
	eventRef string,
	amount int64,
	tickMicros int64,
) (*Batch, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("sweep amount must be positive: %d", amount)
	}
	if pending := jg.tracker.PendingBalance(engine); pending < amount {
		return nil, fmt.Errorf("pending underfunded for sweep: have=%d, need=%d", pending, amount)
	}

	batch := jg.newBatch(eventRef, tickMicros, 1)
	jg.appendJournal(batch,
		NewVaultAccountKey(SubTypeVaultPool, engine),
		NewVaultAccountKey(SubTypeVaultPending, engine),
		engine, amount, JournalTypeSweepRecovery)
	jg.sequence++

	return batch, nil
}
