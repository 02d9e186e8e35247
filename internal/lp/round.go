package lp

import (
	"fmt"

	"github.com/google/uuid"

	rvmath "RewardVault/internal/math"
	"RewardVault/internal/reward"
)

// State is the LP round lifecycle. A round funds until the pot reaches the
// threshold, freezes its ranked list at snapshot, pays out at finalize, and
// may be swept once the claim window lapses.
type State uint8

const (
	StateFunding State = iota
	StateSnapshotTaken
	StateClaimWindow
	StateSwept
)

func (s State) String() string {
	switch s {
	case StateFunding:
		return "funding"
	case StateSnapshotTaken:
		return "snapshot_taken"
	case StateClaimWindow:
		return "claim_window"
	case StateSwept:
		return "swept"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// ClaimRecord tracks one ranked participant's credited payout for one round.
type ClaimRecord struct {
	Participant uuid.UUID
	Rank        int
	Claimable   int64
	Claimed     bool
}

// Round is one LP reward round. Completed rounds are retained for claim and
// sweep bookkeeping and are never deleted.
type Round struct {
	ID        uint64
	State     State
	Pot       int64
	Threshold int64

	StartTick     reward.Tick
	SnapshotTick  reward.Tick
	FinalizedTick reward.Tick

	FinalizeDeadlineMicros int64
	ClaimDeadlineMicros    int64

	// Ranked is frozen at snapshot, or at the deadline finalize when no
	// snapshot ever happened.
	Ranked []Ranked

	TotalDistributed int64
	TotalClaimed     int64
	Recovered        int64
	Swept            bool

	Claims map[uuid.UUID]*ClaimRecord
}

// ContributionResult reports the effect of one recorded contribution. On a
// rejected admission the lifetime credit has still been applied.
type ContributionResult struct {
	Participant   uuid.UUID
	Amount        int64
	LifetimeTotal int64
	RoundAmount   int64
	Admitted      bool
	RankedNow     bool
	Evicted       *uuid.UUID
}

// FinalizeResult reports the outcome of a successful finalize. When no
// participant held a rank, Distributed is zero and the pot rolled into the
// next round.
type FinalizeResult struct {
	RoundID     uint64
	Pot         int64
	Distributed int64
	Rollover    int64
	Shares      []rvmath.Share
}

// SweepResult reports the amount recovered from an expired claim window
// and the open round whose pot received it.
type SweepResult struct {
	RoundID       uint64
	Recovered     int64
	CreditedRound uint64
}

// Config carries the per-deployment LP engine parameters.
type Config struct {
	Threshold             int64
	FinalizeTimeoutMicros int64
	ClaimExpiryMicros     int64
}

func DefaultConfig() Config {
	return Config{
		Threshold:             1_000_000_000,
		FinalizeTimeoutMicros: reward.FinalizeTimeoutMicros,
		ClaimExpiryMicros:     reward.ClaimExpiryMicros,
	}
}

// Engine is the LP reward round state machine. Like the buyer engine it is
// owned by the deterministic core and runs single threaded.
type Engine struct {
	cfg      Config
	lifetime *LifetimeLedger
	buffer   *Buffer
	ranking  *Ranking
	current  *Round
	rounds   map[uint64]*Round

	outstanding int64
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		lifetime: NewLifetimeLedger(),
		rounds:   make(map[uint64]*Round),
	}
	e.openRound(0, reward.Tick{}, 0)
	return e
}

func (e *Engine) openRound(id uint64, tk reward.Tick, rollover int64) {
	r := &Round{
		ID:                     id,
		State:                  StateFunding,
		Pot:                    rollover,
		Threshold:              e.cfg.Threshold,
		StartTick:              tk,
		FinalizeDeadlineMicros: tk.WallMicros + e.cfg.FinalizeTimeoutMicros,
		Claims:                 make(map[uuid.UUID]*ClaimRecord),
	}
	e.current = r
	e.rounds[id] = r
	e.buffer = NewBuffer()
	e.ranking = NewRanking()
}

// RecordContribution credits the lifetime ledger, then applies the buffer
// admission policy for the open round. ErrInvalidAmount rejects before any
// mutation; ErrBufferFull and ErrNotReady both leave the lifetime credit in
// place and everything else about the round untouched.
func (e *Engine) RecordContribution(participant uuid.UUID, amount int64, tk reward.Tick) (*ContributionResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("contribution %d: %w", amount, reward.ErrInvalidAmount)
	}

	res := &ContributionResult{
		Participant:   participant,
		Amount:        amount,
		LifetimeTotal: e.lifetime.Credit(participant, amount),
	}

	r := e.current
	if r.State != StateFunding {
		return res, fmt.Errorf("round %d participant set frozen at snapshot: %w", r.ID, reward.ErrNotReady)
	}

	var slot Slot
	switch {
	case e.buffer.Has(participant):
		slot = e.buffer.Increase(participant, amount)
	case e.buffer.Len() < Capacity:
		slot = e.buffer.Add(participant, amount)
	default:
		min, _ := e.buffer.Min()
		if amount <= min.Amount {
			return res, fmt.Errorf("round %d buffer minimum %d: %w", r.ID, min.Amount, reward.ErrBufferFull)
		}
		e.buffer.Remove(min.Participant)
		e.ranking.Remove(min.Participant)
		evicted := min.Participant
		res.Evicted = &evicted
		slot = e.buffer.Add(participant, amount)
	}

	res.Admitted = true
	res.RoundAmount = slot.Amount
	res.RankedNow = e.ranking.Update(Ranked{
		Participant: slot.Participant,
		Amount:      slot.Amount,
		InsertSeq:   slot.InsertSeq,
	})
	e.refillRanking()

	return res, nil
}

// refillRanking restores the invariant that the ranked list holds the true
// top-K of the buffer after an eviction opened a hole. At most one member
// is missing per mutation, so one buffer scan suffices.
func (e *Engine) refillRanking() {
	for e.ranking.Len() < TopK && e.ranking.Len() < e.buffer.Len() {
		var best Ranked
		found := false
		for _, s := range e.buffer.Slots() {
			if e.ranking.Has(s.Participant) {
				continue
			}
			cand := Ranked{Participant: s.Participant, Amount: s.Amount, InsertSeq: s.InsertSeq}
			if !found || ranksBefore(cand, best) {
				best = cand
				found = true
			}
		}
		if !found {
			return
		}
		e.ranking.Update(best)
	}
}

// FundPot credits pot funding to the open round. Funding keeps accruing
// after snapshot until finalize.
func (e *Engine) FundPot(amount int64, tk reward.Tick) {
	r := e.current
	r.Pot += amount
	e.maybeSnapshot(r, tk)
}

// maybeSnapshot freezes the ranked ordering once the pot reaches the
// threshold and starts the finalize timeout from this point.
func (e *Engine) maybeSnapshot(r *Round, tk reward.Tick) {
	if r.State != StateFunding || r.Pot < r.Threshold {
		return
	}
	r.State = StateSnapshotTaken
	r.SnapshotTick = tk
	r.FinalizeDeadlineMicros = tk.WallMicros + e.cfg.FinalizeTimeoutMicros
	r.Ranked = e.ranking.Entries()
}

// Finalize distributes the pot across the frozen ranked list and opens the
// next round. Before the finalize deadline only a buffer member may call
// it, and only once the pot has snapshotted; past the deadline anyone may,
// snapshot or not, so withheld funding cannot strand a round.
func (e *Engine) Finalize(caller uuid.UUID, tk reward.Tick) (*FinalizeResult, error) {
	r := e.current
	pastDeadline := tk.Reached(r.FinalizeDeadlineMicros)

	switch r.State {
	case StateSnapshotTaken:
		if !pastDeadline && !e.buffer.Has(caller) {
			return nil, fmt.Errorf("round %d caller %s not a participant: %w",
				r.ID, caller, reward.ErrNotReady)
		}
	case StateFunding:
		if !pastDeadline {
			return nil, fmt.Errorf("round %d pot %d below threshold %d until deadline %d: %w",
				r.ID, r.Pot, r.Threshold, r.FinalizeDeadlineMicros, reward.ErrNotReady)
		}
		r.Ranked = e.ranking.Entries()
	default:
		return nil, fmt.Errorf("round %d already finalized: %w", r.ID, reward.ErrAlreadyFinalized)
	}

	res := &FinalizeResult{RoundID: r.ID, Pot: r.Pot}
	if len(r.Ranked) == 0 {
		res.Rollover = r.Pot
	} else {
		ranked := make([]rvmath.RankedContribution, len(r.Ranked))
		for i, rc := range r.Ranked {
			ranked[i] = rvmath.RankedContribution{
				Participant:  rc.Participant,
				Contribution: rc.Amount,
			}
		}
		res.Shares = rvmath.ComputeTieredDistribution(r.Pot, ranked)
		for i, sh := range res.Shares {
			p := uuid.UUID(sh.Participant)
			r.Claims[p] = &ClaimRecord{
				Participant: p,
				Rank:        i + 1,
				Claimable:   sh.Amount,
			}
			res.Distributed += sh.Amount
		}
	}

	r.TotalDistributed = res.Distributed
	r.FinalizedTick = tk
	r.ClaimDeadlineMicros = tk.WallMicros + e.cfg.ClaimExpiryMicros
	r.State = StateClaimWindow
	e.outstanding += res.Distributed

	e.openRound(r.ID+1, tk, res.Rollover)
	return res, nil
}

// Claim pays out the participant's ranked share for a finalized round.
// Bookkeeping mutates before the ledger release.
func (e *Engine) Claim(participant uuid.UUID, roundID uint64) (int64, error) {
	r, ok := e.rounds[roundID]
	if !ok {
		return 0, fmt.Errorf("round %d unknown: %w", roundID, reward.ErrNothingToClaim)
	}
	rec, ok := r.Claims[participant]
	if !ok {
		return 0, fmt.Errorf("participant %s round %d: %w", participant, roundID, reward.ErrNothingToClaim)
	}
	if rec.Claimed {
		return 0, fmt.Errorf("participant %s round %d: %w", participant, roundID, reward.ErrAlreadyClaimed)
	}
	if rec.Claimable <= 0 {
		return 0, fmt.Errorf("participant %s round %d: %w", participant, roundID, reward.ErrNothingToClaim)
	}

	amount := rec.Claimable
	rec.Claimable = 0
	rec.Claimed = true
	r.TotalClaimed += amount
	e.outstanding -= amount

	return amount, nil
}

// Sweep recovers unclaimed shares after the claim window expires and
// re-credits them to the open round's pot. Permissionless.
func (e *Engine) Sweep(roundID uint64, tk reward.Tick) (*SweepResult, error) {
	r, ok := e.rounds[roundID]
	if !ok || r.State != StateClaimWindow {
		return nil, fmt.Errorf("round %d has no open claim window: %w", roundID, reward.ErrNotExpired)
	}
	if !tk.Reached(r.ClaimDeadlineMicros) {
		return nil, fmt.Errorf("round %d claims open until %d: %w",
			roundID, r.ClaimDeadlineMicros, reward.ErrNotExpired)
	}

	var recovered int64
	for _, rec := range r.Claims {
		if !rec.Claimed && rec.Claimable > 0 {
			recovered += rec.Claimable
			rec.Claimable = 0
		}
	}
	if recovered == 0 {
		return nil, fmt.Errorf("round %d: %w", roundID, reward.ErrNothingToClaim)
	}

	r.Recovered += recovered
	r.Swept = true
	r.State = StateSwept
	e.outstanding -= recovered

	cur := e.current
	cur.Pot += recovered
	e.maybeSnapshot(cur, tk)

	return &SweepResult{
		RoundID:       roundID,
		Recovered:     recovered,
		CreditedRound: cur.ID,
	}, nil
}

// Read accessors, single threaded like the buyer engine's.

func (e *Engine) CurrentRoundID() uint64 { return e.current.ID }

func (e *Engine) Pot() int64 { return e.current.Pot }

func (e *Engine) Threshold() int64 { return e.current.Threshold }

func (e *Engine) CurrentState() State { return e.current.State }

func (e *Engine) BufferLen() int { return e.buffer.Len() }

func (e *Engine) InBuffer(participant uuid.UUID) bool { return e.buffer.Has(participant) }

func (e *Engine) LifetimeAmount(participant uuid.UUID) int64 { return e.lifetime.Amount(participant) }

// RankedTop returns the live ranking for the open round, or the frozen one
// once snapshotted.
func (e *Engine) RankedTop() []Ranked {
	if e.current.State == StateSnapshotTaken {
		out := make([]Ranked, len(e.current.Ranked))
		copy(out, e.current.Ranked)
		return out
	}
	return e.ranking.Entries()
}

// Outstanding returns credit distributed but not yet claimed or recovered,
// summed over all rounds. Must equal the vault pending ledger balance.
func (e *Engine) Outstanding() int64 { return e.outstanding }

func (e *Engine) Round(id uint64) (*Round, bool) {
	r, ok := e.rounds[id]
	return r, ok
}

func (e *Engine) Claimable(participant uuid.UUID, roundID uint64) int64 {
	r, ok := e.rounds[roundID]
	if !ok {
		return 0
	}
	rec, ok := r.Claims[participant]
	if !ok || rec.Claimed {
		return 0
	}
	return rec.Claimable
}
