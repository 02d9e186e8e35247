package core_test

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"RewardVault/internal/buyer"
	"RewardVault/internal/core"
	"RewardVault/internal/event"
	"RewardVault/internal/ledger"
	"RewardVault/internal/lp"
	"RewardVault/internal/reward"
)

// --- Test helpers ---

const (
	testBuyerThreshold = int64(1_000_000)
	testLPThreshold    = int64(1_000_000)
)

// newTestCore creates a DeterministicCore with buffered channels and no DB checker.
func newTestCore() (*core.DeterministicCore, chan core.CoreOutput, chan core.CoreOutput) {
	persistChan := make(chan core.CoreOutput, 4096)
	projChan := make(chan core.CoreOutput, 4096)

	buyerCfg := buyer.Config{
		Threshold:         testBuyerThreshold,
		RevealDelayMicros: reward.RevealDelayMicros,
		ClaimExpiryMicros: reward.ClaimExpiryMicros,
	}
	lpCfg := lp.Config{
		Threshold:             testLPThreshold,
		FinalizeTimeoutMicros: reward.FinalizeTimeoutMicros,
		ClaimExpiryMicros:     reward.ClaimExpiryMicros,
	}

	c := core.NewDeterministicCore(0, buyerCfg, lpCfg, persistChan, projChan, nil, nil)
	return c, persistChan, projChan
}

func tickAt(seq, micros int64) reward.Tick {
	return reward.Tick{Seq: seq, WallMicros: micros}
}

func mustBuyerEntry(participant uuid.UUID, routed, seq, micros int64) *event.BuyerEntry {
	return &event.BuyerEntry{
		EntryID:      uuid.New(),
		Participant:  participant,
		Contribution: routed,
		Balance:      routed * 10,
		Routed:       routed,
		FeedSequence: seq,
		At:           tickAt(seq, micros),
	}
}

func mustBuyerFinalize(seq, micros int64) *event.BuyerFinalize {
	return &event.BuyerFinalize{
		RequestID:    uuid.New(),
		FeedSequence: seq,
		At:           tickAt(seq, micros),
	}
}

func mustBuyerClaim(participant uuid.UUID, roundID uint64, seq, micros int64) *event.BuyerClaim {
	return &event.BuyerClaim{
		RequestID:    uuid.New(),
		Participant:  participant,
		RoundID:      roundID,
		FeedSequence: seq,
		At:           tickAt(seq, micros),
	}
}

func mustLPContribution(participant uuid.UUID, amount, seq, micros int64) *event.LPContribution {
	return &event.LPContribution{
		ContributionID: uuid.New(),
		Participant:    participant,
		Amount:         amount,
		FeedSequence:   seq,
		At:             tickAt(seq, micros),
	}
}

func mustLPPotFunding(amount, seq, micros int64) *event.LPPotFunding {
	return &event.LPPotFunding{
		FundingID:    uuid.New(),
		Amount:       amount,
		FeedSequence: seq,
		At:           tickAt(seq, micros),
	}
}

func mustLPFinalize(caller uuid.UUID, seq, micros int64) *event.LPFinalize {
	return &event.LPFinalize{
		RequestID:    uuid.New(),
		Caller:       caller,
		FeedSequence: seq,
		At:           tickAt(seq, micros),
	}
}

func mustLPClaim(participant uuid.UUID, roundID uint64, seq, micros int64) *event.LPClaim {
	return &event.LPClaim{
		RequestID:    uuid.New(),
		Participant:  participant,
		RoundID:      roundID,
		FeedSequence: seq,
		At:           tickAt(seq, micros),
	}
}

func drainOutputs(ch chan core.CoreOutput) []core.CoreOutput {
	var outputs []core.CoreOutput
	for {
		select {
		case o := <-ch:
			outputs = append(outputs, o)
		default:
			return outputs
		}
	}
}

// ============================================================================
// Test: Buyer Flow
// ============================================================================

func TestBuyerEntry_FundsPool(t *testing.T) {
	c, persistCh, _ := newTestCore()

	err := c.ProcessEvent(mustBuyerEntry(uuid.New(), 50_000, 0, 1000))
	if err != nil {
		t.Fatalf("ProcessEvent failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}

	batch := outputs[0].Batch
	if len(batch.Journals) != 1 {
		t.Fatalf("expected 1 journal, got %d", len(batch.Journals))
	}
	j := batch.Journals[0]
	if j.JournalType != ledger.JournalTypePoolFunding {
		t.Errorf("expected JournalTypePoolFunding, got %d", j.JournalType)
	}
	if j.Amount != 50_000 {
		t.Errorf("expected amount 50_000, got %d", j.Amount)
	}

	status := c.StatusSnapshot()
	if status.Buyer.Pool != 50_000 || status.Buyer.Members != 1 {
		t.Errorf("status = %+v", status.Buyer)
	}
}

func TestDuplicateEvent_SkipsProcessing(t *testing.T) {
	c, persistCh, _ := newTestCore()

	evt := mustBuyerEntry(uuid.New(), 50_000, 0, 1000)
	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}

	// Redelivery of the same event (same idempotency key, same source seq).
	if err := c.ProcessEvent(evt); err != nil {
		t.Fatalf("redelivery errored: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("duplicate produced an output: got %d", len(outputs))
	}
	if got := c.StatusSnapshot().Buyer.Pool; got != 50_000 {
		t.Errorf("duplicate mutated pool: %d", got)
	}
}

func TestSequenceGap_Rejected(t *testing.T) {
	c, _, _ := newTestCore()

	if err := c.ProcessEvent(mustBuyerEntry(uuid.New(), 1000, 0, 1000)); err != nil {
		t.Fatalf("first event failed: %v", err)
	}

	// FeedSequence jumps 1 → 5
	err := c.ProcessEvent(mustBuyerEntry(uuid.New(), 1000, 5, 2000))
	if err == nil {
		t.Fatal("expected sequence gap error, got nil")
	}
}

func TestBuyerEntry_NonPositiveRouted_Rejected(t *testing.T) {
	c, persistCh, _ := newTestCore()

	for i, routed := range []int64{0, -50_000} {
		evt := mustBuyerEntry(uuid.New(), 50_000, int64(i), int64(i+1)*1000)
		evt.Routed = routed
		err := c.ProcessEvent(evt)
		if !errors.Is(err, reward.ErrInvalidAmount) {
			t.Fatalf("routed %d: err = %v", routed, err)
		}
	}

	if outputs := drainOutputs(persistCh); len(outputs) != 0 {
		t.Fatalf("rejected entries produced %d outputs", len(outputs))
	}
	status := c.StatusSnapshot()
	if status.Buyer.Pool != 0 || status.Buyer.Members != 0 {
		t.Errorf("rejected entries mutated state: %+v", status.Buyer)
	}

	// The core stays live for the next valid entry on the feed.
	if err := c.ProcessEvent(mustBuyerEntry(uuid.New(), 50_000, 2, 3000)); err != nil {
		t.Fatalf("valid entry after rejections failed: %v", err)
	}
	if got := c.StatusSnapshot().Buyer.Pool; got != 50_000 {
		t.Errorf("pool = %d", got)
	}
}

func TestBuyerRound_FullCycle(t *testing.T) {
	c, persistCh, _ := newTestCore()

	participants := make([]uuid.UUID, 25)
	for i := range participants {
		participants[i] = uuid.New()
		err := c.ProcessEvent(mustBuyerEntry(participants[i], testBuyerThreshold/25, int64(i), int64(i+1)*1000))
		if err != nil {
			t.Fatalf("entry %d failed: %v", i, err)
		}
	}

	status := c.StatusSnapshot()
	if !status.Buyer.Ready {
		t.Fatal("round did not snapshot at threshold")
	}
	snapshotMicros := int64(25) * 1000
	drainOutputs(persistCh)

	// Finalize before the reveal gate is rejected and mutates nothing.
	err := c.ProcessEvent(mustBuyerFinalize(0, snapshotMicros+1))
	if err == nil {
		t.Fatal("expected NotReady before reveal gate")
	}

	err = c.ProcessEvent(mustBuyerFinalize(1, snapshotMicros+reward.RevealDelayMicros))
	if err != nil {
		t.Fatalf("finalize failed: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 finalize output, got %d", len(outputs))
	}
	change := outputs[0].Change
	if change.Round == nil || change.Round.Winner == nil {
		t.Fatalf("finalize change missing winner: %+v", change.Round)
	}
	winner := *change.Round.Winner
	if len(change.Claims) != 1 || change.Claims[0].Claimable != testBuyerThreshold {
		t.Fatalf("claims = %+v", change.Claims)
	}
	if outputs[0].Batch.Journals[0].JournalType != ledger.JournalTypePayoutCredit {
		t.Errorf("expected payout credit journal")
	}

	// Claim pays the winner through pending → payout → transfers.
	err = c.ProcessEvent(mustBuyerClaim(winner, change.Round.RoundID, 2, snapshotMicros+reward.RevealDelayMicros+1))
	if err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	outputs = drainOutputs(persistCh)
	if len(outputs[0].Batch.Journals) != 2 {
		t.Fatalf("expected 2 claim journals, got %d", len(outputs[0].Batch.Journals))
	}

	// Second claim is a pure rejection: no output, no state change.
	err = c.ProcessEvent(mustBuyerClaim(winner, change.Round.RoundID, 3, snapshotMicros+reward.RevealDelayMicros+2))
	if err == nil {
		t.Fatal("expected AlreadyClaimed")
	}
	if got := drainOutputs(persistCh); len(got) != 0 {
		t.Fatalf("rejected claim emitted %d outputs", len(got))
	}

	if got := c.StatusSnapshot().Buyer.Outstanding; got != 0 {
		t.Errorf("outstanding = %d after full claim", got)
	}
}

// ============================================================================
// Test: LP Flow
// ============================================================================

func TestLPRound_FullCycle(t *testing.T) {
	c, persistCh, _ := newTestCore()

	a := uuid.New()
	b := uuid.New()
	if err := c.ProcessEvent(mustLPContribution(a, 600, 0, 1000)); err != nil {
		t.Fatalf("contribution a: %v", err)
	}
	if err := c.ProcessEvent(mustLPContribution(b, 400, 1, 2000)); err != nil {
		t.Fatalf("contribution b: %v", err)
	}
	if err := c.ProcessEvent(mustLPPotFunding(testLPThreshold, 0, 3000)); err != nil {
		t.Fatalf("pot funding: %v", err)
	}

	status := c.StatusSnapshot()
	if !status.LP.Ready || status.LP.Pool != testLPThreshold {
		t.Fatalf("LP status = %+v", status.LP)
	}
	drainOutputs(persistCh)

	if err := c.ProcessEvent(mustLPFinalize(a, 0, 4000)); err != nil {
		t.Fatalf("finalize failed: %v", err)
	}
	outputs := drainOutputs(persistCh)
	change := outputs[0].Change
	if len(change.Claims) != 2 || len(change.Ranked) != 2 {
		t.Fatalf("change = %+v", change)
	}
	var total int64
	for _, cl := range change.Claims {
		total += cl.Claimable
	}
	if total != testLPThreshold {
		t.Fatalf("distributed %d of pot %d", total, testLPThreshold)
	}
	if change.Ranked[0].Participant != a || change.Ranked[0].Rank != 1 {
		t.Fatalf("rank 1 = %+v", change.Ranked[0])
	}

	roundID := change.Round.RoundID
	if err := c.ProcessEvent(mustLPClaim(a, roundID, 1, 5000)); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := c.ProcessEvent(mustLPClaim(b, roundID, 2, 6000)); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if got := c.StatusSnapshot().LP.Outstanding; got != 0 {
		t.Errorf("outstanding = %d after all claims", got)
	}
}

func TestLPContribution_RejectedAdmissionStillLogged(t *testing.T) {
	c, persistCh, _ := newTestCore()

	for i := 0; i < lp.Capacity; i++ {
		err := c.ProcessEvent(mustLPContribution(uuid.New(), int64(1000+i), int64(i), int64(i+1)*1000))
		if err != nil {
			t.Fatalf("fill %d failed: %v", i, err)
		}
	}
	drainOutputs(persistCh)

	// Equal to the minimum: admission rejected, lifetime still credited,
	// and the event is logged so replay reproduces the credit.
	p := uuid.New()
	err := c.ProcessEvent(mustLPContribution(p, 1000, int64(lp.Capacity), 999_000))
	if err != nil {
		t.Fatalf("rejected admission should still apply: %v", err)
	}

	outputs := drainOutputs(persistCh)
	if len(outputs) != 1 {
		t.Fatalf("expected 1 output, got %d", len(outputs))
	}
	change := outputs[0].Change
	if change.Lifetime == nil || change.Lifetime.Total != 1000 {
		t.Fatalf("lifetime change = %+v", change.Lifetime)
	}
	if change.Round != nil {
		t.Fatalf("rejected admission reported a round change")
	}
	if got := c.StatusSnapshot().LP.Members; got != lp.Capacity {
		t.Errorf("buffer occupancy = %d", got)
	}
}

func TestLPAmounts_NonPositive_Rejected(t *testing.T) {
	c, persistCh, _ := newTestCore()

	p := uuid.New()
	if err := c.ProcessEvent(mustLPContribution(p, 1000, 0, 1000)); err != nil {
		t.Fatalf("seed contribution failed: %v", err)
	}
	drainOutputs(persistCh)

	err := c.ProcessEvent(mustLPContribution(p, -600, 1, 2000))
	if !errors.Is(err, reward.ErrInvalidAmount) {
		t.Fatalf("negative contribution: err = %v", err)
	}
	err = c.ProcessEvent(mustLPContribution(p, 0, 2, 3000))
	if !errors.Is(err, reward.ErrInvalidAmount) {
		t.Fatalf("zero contribution: err = %v", err)
	}
	err = c.ProcessEvent(mustLPPotFunding(0, 0, 4000))
	if !errors.Is(err, reward.ErrInvalidAmount) {
		t.Fatalf("zero funding: err = %v", err)
	}
	err = c.ProcessEvent(mustLPPotFunding(-1, 1, 5000))
	if !errors.Is(err, reward.ErrInvalidAmount) {
		t.Fatalf("negative funding: err = %v", err)
	}

	// No journals, no lifetime credit, nothing for replay to reproduce.
	if outputs := drainOutputs(persistCh); len(outputs) != 0 {
		t.Fatalf("rejected events produced %d outputs", len(outputs))
	}
	status := c.StatusSnapshot()
	if status.LP.Pool != 0 || status.LP.Members != 1 {
		t.Errorf("rejected events mutated state: %+v", status.LP)
	}
}

// ============================================================================
// Test: Replay Determinism
// ============================================================================

func TestReplay_ReproducesStateHash(t *testing.T) {
	c1, persistCh, _ := newTestCore()

	events := []event.Event{
		mustLPContribution(uuid.New(), 600, 0, 1000),
		mustLPContribution(uuid.New(), 400, 1, 2000),
		mustLPPotFunding(testLPThreshold, 0, 3000),
	}
	var entries []event.Event
	for i := 0; i < 25; i++ {
		entries = append(entries, mustBuyerEntry(uuid.New(), testBuyerThreshold/25, int64(i), int64(i+1)*1000))
	}
	events = append(events, entries...)
	events = append(events, mustBuyerFinalize(0, 25_000+reward.RevealDelayMicros))

	for _, evt := range events {
		if err := c1.ProcessEvent(evt); err != nil {
			t.Fatalf("process failed: %v", err)
		}
	}
	drainOutputs(persistCh)

	// Replay the identical stream through a fresh core.
	c2, _, _ := newTestCore()
	for _, evt := range events {
		if err := c2.ReplayEvent(evt); err != nil {
			t.Fatalf("replay failed: %v", err)
		}
	}

	if c1.GetStateHash() != c2.GetStateHash() {
		t.Fatal("replayed state hash diverged")
	}
	if c1.GetSequence() != c2.GetSequence() {
		t.Fatalf("sequence diverged: %d vs %d", c1.GetSequence(), c2.GetSequence())
	}
	s1, s2 := c1.StatusSnapshot(), c2.StatusSnapshot()
	if *s1 != *s2 {
		t.Fatalf("status diverged:\n%+v\n%+v", s1, s2)
	}
}
