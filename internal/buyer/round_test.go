package buyer

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"

	"RewardVault/internal/reward"
)

func testConfig() Config {
	return Config{
		Threshold:         1_000_000,
		RevealDelayMicros: reward.RevealDelayMicros,
		ClaimExpiryMicros: reward.ClaimExpiryMicros,
	}
}

func tick(seq, micros int64) reward.Tick {
	return reward.Tick{Seq: seq, WallMicros: micros}
}

func participantID(i int) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("buyer-%d", i)))
}

func TestRoundFillsToThresholdAndSelectsOneWinner(t *testing.T) {
	e := NewEngine(testConfig())
	e.SetStageRules(StageRules{Stage: 1, MinContribution: 100, MinBalance: 1000})

	participants := make([]uuid.UUID, 25)
	routed := int64(40_000) // 25 * 40_000 == threshold exactly
	for i := range participants {
		participants[i] = participantID(i)
		_, err := e.RegisterEntry(participants[i], 500, 5000, routed, tick(int64(i+1), int64(i+1)*1000))
		if err != nil {
			t.Fatalf("entry %d rejected: %v", i, err)
		}
	}

	if !e.IsRoundReady() {
		t.Fatalf("pool at threshold but round not ready")
	}
	if e.PoolSize() != 1_000_000 {
		t.Fatalf("pool = %d, want 1000000", e.PoolSize())
	}

	snap := e.current.SnapshotTick
	_, err := e.Finalize(tick(26, snap.WallMicros+1))
	if !errors.Is(err, reward.ErrNotReady) {
		t.Fatalf("finalize before reveal gate: got %v, want ErrNotReady", err)
	}

	res, err := e.Finalize(tick(27, snap.WallMicros+reward.RevealDelayMicros))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if res.Amount != 1_000_000 || res.EntryCount != 25 {
		t.Fatalf("result = %+v", res)
	}

	found := false
	for _, p := range participants {
		if p == res.Winner {
			found = true
		}
	}
	if !found {
		t.Fatalf("winner %s is not a registered participant", res.Winner)
	}
	if got := e.Claimable(res.Winner, res.RoundID); got != 1_000_000 {
		t.Fatalf("winner claimable = %d, want full pool", got)
	}

	// Finalize opened a fresh round; a second finalize has no snapshot.
	if e.CurrentRoundID() != res.RoundID+1 || e.PoolSize() != 0 {
		t.Fatalf("next round not opened: id=%d pool=%d", e.CurrentRoundID(), e.PoolSize())
	}
	_, err = e.Finalize(tick(28, snap.WallMicros+2*reward.RevealDelayMicros))
	if !errors.Is(err, reward.ErrAlreadyFinalized) {
		t.Fatalf("second finalize: got %v, want ErrAlreadyFinalized", err)
	}
}

func TestRegisterRejectionsHaveNoSideEffect(t *testing.T) {
	e := NewEngine(testConfig())
	e.SetStageRules(StageRules{Stage: 2, MinContribution: 500, MinBalance: 2000})

	p := participantID(0)
	if _, err := e.RegisterEntry(p, 499, 5000, 100, tick(1, 1)); !errors.Is(err, reward.ErrNotEligible) {
		t.Fatalf("under min contribution: got %v", err)
	}
	if _, err := e.RegisterEntry(p, 500, 1999, 100, tick(2, 2)); !errors.Is(err, reward.ErrNotEligible) {
		t.Fatalf("under min balance: got %v", err)
	}
	if e.PoolSize() != 0 || e.EntryCount() != 0 {
		t.Fatalf("rejected entries mutated state: pool=%d count=%d", e.PoolSize(), e.EntryCount())
	}

	if _, err := e.RegisterEntry(p, 500, 2000, 100, tick(3, 3)); err != nil {
		t.Fatalf("eligible entry rejected: %v", err)
	}
	if _, err := e.RegisterEntry(p, 500, 2000, 100, tick(4, 4)); !errors.Is(err, reward.ErrDuplicateEntry) {
		t.Fatalf("duplicate: got %v", err)
	}
	if e.PoolSize() != 100 || e.EntryCount() != 1 {
		t.Fatalf("duplicate mutated state: pool=%d count=%d", e.PoolSize(), e.EntryCount())
	}
}

func TestRegisterRejectsNonPositiveRouted(t *testing.T) {
	e := NewEngine(testConfig())

	p := participantID(0)
	for _, routed := range []int64{0, -40_000} {
		_, err := e.RegisterEntry(p, 500, 5000, routed, tick(1, 1))
		if !errors.Is(err, reward.ErrInvalidAmount) {
			t.Fatalf("routed %d: got %v, want ErrInvalidAmount", routed, err)
		}
	}
	if e.PoolSize() != 0 || e.EntryCount() != 0 {
		t.Fatalf("rejected routed mutated state: pool=%d count=%d", e.PoolSize(), e.EntryCount())
	}

	// The participant holds no entry, so a valid registration still works.
	if _, err := e.RegisterEntry(p, 500, 5000, 100, tick(2, 2)); err != nil {
		t.Fatalf("valid entry after rejections: %v", err)
	}
}

func TestNoEntriesAcceptedAfterSnapshot(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold = 100
	e := NewEngine(cfg)

	if _, err := e.RegisterEntry(participantID(0), 0, 0, 100, tick(1, 1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !e.IsRoundReady() {
		t.Fatalf("threshold crossed but no snapshot")
	}
	_, err := e.RegisterEntry(participantID(1), 0, 0, 100, tick(2, 2))
	if !errors.Is(err, reward.ErrNotReady) {
		t.Fatalf("post-snapshot entry: got %v, want ErrNotReady", err)
	}
	if e.EntryCount() != 1 || e.PoolSize() != 100 {
		t.Fatalf("post-snapshot entry mutated state")
	}
}

func TestClaimPaysOnceThenRejects(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold = 100
	e := NewEngine(cfg)

	p := participantID(0)
	if _, err := e.RegisterEntry(p, 0, 0, 100, tick(1, 1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := e.Finalize(tick(2, 1+reward.RevealDelayMicros))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}

	amount, err := e.Claim(p, res.RoundID)
	if err != nil || amount != 100 {
		t.Fatalf("claim = %d, %v", amount, err)
	}
	if e.Outstanding() != 0 {
		t.Fatalf("outstanding = %d after full claim", e.Outstanding())
	}

	if _, err := e.Claim(p, res.RoundID); !errors.Is(err, reward.ErrAlreadyClaimed) {
		t.Fatalf("second claim: got %v, want ErrAlreadyClaimed", err)
	}
	r, _ := e.Round(res.RoundID)
	if r.TotalClaimed != 100 || r.TotalDistributed != 100 {
		t.Fatalf("second claim mutated balances: claimed=%d distributed=%d", r.TotalClaimed, r.TotalDistributed)
	}

	if _, err := e.Claim(participantID(1), res.RoundID); !errors.Is(err, reward.ErrNothingToClaim) {
		t.Fatalf("non-winner claim: got %v", err)
	}
}

func TestSweepRecoversExpiredClaimIntoOpenRound(t *testing.T) {
	cfg := testConfig()
	cfg.Threshold = 100
	e := NewEngine(cfg)

	if _, err := e.RegisterEntry(participantID(0), 0, 0, 100, tick(1, 1)); err != nil {
		t.Fatalf("register: %v", err)
	}
	res, err := e.Finalize(tick(2, 1+reward.RevealDelayMicros))
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	finalizedAt := int64(1 + reward.RevealDelayMicros)

	_, err = e.Sweep(res.RoundID, tick(3, finalizedAt+reward.ClaimExpiryMicros-1))
	if !errors.Is(err, reward.ErrNotExpired) {
		t.Fatalf("early sweep: got %v, want ErrNotExpired", err)
	}

	sw, err := e.Sweep(res.RoundID, tick(4, finalizedAt+reward.ClaimExpiryMicros))
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if sw.Recovered != 100 || sw.CreditedRound != res.RoundID+1 {
		t.Fatalf("sweep result = %+v", sw)
	}
	if e.PoolSize() != 100 {
		t.Fatalf("recovered amount not credited to open pool: %d", e.PoolSize())
	}
	if e.Outstanding() != 0 {
		t.Fatalf("outstanding = %d after sweep", e.Outstanding())
	}

	// The winner forfeited; claiming after the sweep pays nothing.
	if _, err := e.Claim(res.Winner, res.RoundID); !errors.Is(err, reward.ErrNothingToClaim) {
		t.Fatalf("post-sweep claim: got %v", err)
	}
	_, err = e.Sweep(res.RoundID, tick(5, finalizedAt+reward.ClaimExpiryMicros+1))
	if !errors.Is(err, reward.ErrNothingToClaim) {
		t.Fatalf("second sweep: got %v", err)
	}

	r, _ := e.Round(res.RoundID)
	if r.TotalDistributed != 100 || r.Recovered != 100 || r.TotalClaimed != 0 {
		t.Fatalf("round bookkeeping = %+v", r)
	}
}

func TestRegistryWrapsAndDropsOldestEntries(t *testing.T) {
	r := NewRegistry()
	r.BeginRound(1)

	total := SlotCapacity + 5
	ids := make([]uuid.UUID, total)
	for i := 0; i < total; i++ {
		ids[i] = participantID(i)
		r.Append(ids[i])
	}

	if r.Count() != SlotCapacity {
		t.Fatalf("count = %d, want %d", r.Count(), SlotCapacity)
	}
	for i := 0; i < 5; i++ {
		if r.Has(ids[i]) {
			t.Fatalf("overwritten entry %d still a member", i)
		}
	}
	if !r.Has(ids[5]) || !r.Has(ids[total-1]) {
		t.Fatalf("live entries missing from membership")
	}
	if got := r.EntryAt(0).Participant; got != ids[5] {
		t.Fatalf("oldest live entry = %s, want %s", got, ids[5])
	}
	if got := r.EntryAt(SlotCapacity - 1).Participant; got != ids[total-1] {
		t.Fatalf("newest entry mismatch")
	}
}

func TestSegmentLayout(t *testing.T) {
	cases := []struct {
		slot    int
		segment int
	}{
		{0, 0},
		{SegmentSize - 1, 0},
		{SegmentSize, 1},
		{SlotCapacity - 1, SegmentCount - 1},
	}
	for _, tc := range cases {
		if got := SegmentOf(tc.slot); got != tc.segment {
			t.Errorf("SegmentOf(%d) = %d, want %d", tc.slot, got, tc.segment)
		}
	}
}

func TestRegistryMembershipResetsAcrossRounds(t *testing.T) {
	r := NewRegistry()
	r.BeginRound(1)
	p := participantID(0)
	slot1 := r.Append(p)

	r.BeginRound(2)
	if r.Has(p) {
		t.Fatalf("membership leaked across rounds")
	}
	slot2 := r.Append(p)
	if slot2 != (slot1+1)%SlotCapacity {
		t.Fatalf("cursor did not advance: %d then %d", slot1, slot2)
	}
	if got := r.EntryAt(0); got.RoundID != 2 || got.Participant != p {
		t.Fatalf("entry = %+v", got)
	}
}
