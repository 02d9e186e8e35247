package buyer

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"

	"RewardVault/internal/reward"
)

// State is the buyer round lifecycle. A round funds until its pool reaches
// the threshold, freezes at snapshot, and finalizes after the reveal delay.
type State uint8

const (
	StateFunding State = iota
	StateSnapshotTaken
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateFunding:
		return "funding"
	case StateSnapshotTaken:
		return "snapshot_taken"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// StageRules is the eligibility predicate supplied by the token stage feed:
// a registration must carry at least MinContribution and the participant
// wallet must hold at least MinBalance.
type StageRules struct {
	Stage           uint32
	MinContribution int64
	MinBalance      int64
}

// ClaimRecord tracks one participant's credited payout for one round.
// Claiming zeroes Claimable and sets Claimed before any funds move.
type ClaimRecord struct {
	Participant uuid.UUID
	Claimable   int64
	Claimed     bool
}

// Round is one buyer reward round. Completed rounds are retained for claim
// and sweep bookkeeping and are never deleted.
type Round struct {
	ID        uint64
	State     State
	PoolSize  int64
	Threshold int64

	StartTick         reward.Tick
	SnapshotTick      reward.Tick
	FinalizedTick     reward.Tick
	RevealReadyMicros int64
	ClaimExpiryMicros int64

	FrozenCount int
	Winner      *uuid.UUID

	TotalDistributed int64
	TotalClaimed     int64
	Recovered        int64
	Swept            bool

	Claims map[uuid.UUID]*ClaimRecord
}

// FinalizeResult reports the outcome of a successful finalize.
type FinalizeResult struct {
	RoundID    uint64
	Winner     uuid.UUID
	WinnerSlot int
	Amount     int64
	EntryCount int
}

// SweepResult reports the amount recovered from an expired claim window
// and the open round whose pool received it.
type SweepResult struct {
	RoundID       uint64
	Recovered     int64
	CreditedRound uint64
}

// Config carries the per-deployment buyer engine parameters.
type Config struct {
	Threshold         int64
	RevealDelayMicros int64
	ClaimExpiryMicros int64
}

func DefaultConfig() Config {
	return Config{
		Threshold:         1_000_000_000,
		RevealDelayMicros: reward.RevealDelayMicros,
		ClaimExpiryMicros: reward.ClaimExpiryMicros,
	}
}

// Engine is the buyer reward round state machine. It is owned by the
// deterministic core and is never accessed from more than one goroutine;
// read surfaces consume published snapshots instead.
type Engine struct {
	cfg      Config
	rules    StageRules
	registry *Registry
	current  *Round
	rounds   map[uint64]*Round

	// Credited but not yet claimed or recovered, across all rounds.
	outstanding int64
}

func NewEngine(cfg Config) *Engine {
	e := &Engine{
		cfg:      cfg,
		registry: NewRegistry(),
		rounds:   make(map[uint64]*Round),
	}
	e.openRound(0, reward.Tick{})
	return e
}

func (e *Engine) openRound(id uint64, tk reward.Tick) {
	r := &Round{
		ID:        id,
		State:     StateFunding,
		Threshold: e.cfg.Threshold,
		StartTick: tk,
		Claims:    make(map[uuid.UUID]*ClaimRecord),
	}
	e.current = r
	e.rounds[id] = r
	e.registry.BeginRound(id)
}

// SetStageRules replaces the active eligibility rules. Applies to
// registrations processed after this call.
func (e *Engine) SetStageRules(rules StageRules) {
	e.rules = rules
}

func (e *Engine) Rules() StageRules {
	return e.rules
}

// RegisterEntry admits one entry for the current round and credits the
// routed funding to the round pool. Rejections carry no side effect.
func (e *Engine) RegisterEntry(participant uuid.UUID, contribution, balance, routed int64, tk reward.Tick) (int, error) {
	r := e.current
	if routed <= 0 {
		return 0, fmt.Errorf("routed %d: %w", routed, reward.ErrInvalidAmount)
	}
	if r.State != StateFunding {
		return 0, fmt.Errorf("round %d closed to entries: %w", r.ID, reward.ErrNotReady)
	}
	if contribution < e.rules.MinContribution || balance < e.rules.MinBalance {
		return 0, fmt.Errorf("stage %d requires contribution >= %d and balance >= %d: %w",
			e.rules.Stage, e.rules.MinContribution, e.rules.MinBalance, reward.ErrNotEligible)
	}
	if e.registry.Has(participant) {
		return 0, fmt.Errorf("participant %s round %d: %w", participant, r.ID, reward.ErrDuplicateEntry)
	}

	slot := e.registry.Append(participant)
	r.PoolSize += routed
	e.maybeSnapshot(r, tk)

	return slot, nil
}

// maybeSnapshot freezes the round once the pool reaches the threshold.
// A pool funded purely by sweep recovery does not snapshot until it holds
// at least one entry.
func (e *Engine) maybeSnapshot(r *Round, tk reward.Tick) {
	if r.State != StateFunding || r.PoolSize < r.Threshold || e.registry.Count() == 0 {
		return
	}
	r.State = StateSnapshotTaken
	r.SnapshotTick = tk
	r.RevealReadyMicros = tk.WallMicros + e.cfg.RevealDelayMicros
	r.FrozenCount = e.registry.Count()
}

// Finalize selects the round winner and opens the next round. Requires a
// pending snapshot and a tick past the reveal gate; the gap between the two
// keeps the selection unpredictable at freeze time.
func (e *Engine) Finalize(tk reward.Tick) (*FinalizeResult, error) {
	r := e.current
	if r.State != StateSnapshotTaken {
		return nil, fmt.Errorf("round %d has no snapshot pending: %w", r.ID, reward.ErrAlreadyFinalized)
	}
	if !tk.Reached(r.RevealReadyMicros) {
		return nil, fmt.Errorf("round %d reveal gate at %d, tick at %d: %w",
			r.ID, r.RevealReadyMicros, tk.WallMicros, reward.ErrNotReady)
	}

	idx := selectionIndex(r, tk)
	entry := e.registry.EntryAt(idx)
	winner := entry.Participant

	r.Claims[winner] = &ClaimRecord{Participant: winner, Claimable: r.PoolSize}
	r.Winner = &winner
	r.TotalDistributed = r.PoolSize
	r.FinalizedTick = tk
	r.ClaimExpiryMicros = tk.WallMicros + e.cfg.ClaimExpiryMicros
	r.State = StateFinalized
	e.outstanding += r.PoolSize

	res := &FinalizeResult{
		RoundID:    r.ID,
		Winner:     winner,
		WinnerSlot: entry.Slot,
		Amount:     r.PoolSize,
		EntryCount: r.FrozenCount,
	}
	e.openRound(r.ID+1, tk)
	return res, nil
}

// selectionIndex derives the winning entry index from tick entropy over the
// frozen count. Best effort, not cryptographically secure: the reveal delay
// is the defense against snapshot-time prediction.
func selectionIndex(r *Round, tk reward.Tick) int {
	var buf [40]byte
	binary.BigEndian.PutUint64(buf[0:8], r.ID)
	binary.BigEndian.PutUint64(buf[8:16], uint64(r.SnapshotTick.Seq))
	binary.BigEndian.PutUint64(buf[16:24], uint64(r.SnapshotTick.WallMicros))
	binary.BigEndian.PutUint64(buf[24:32], uint64(tk.Seq))
	binary.BigEndian.PutUint64(buf[32:40], uint64(tk.WallMicros))
	sum := sha256.Sum256(buf[:])
	return int(binary.BigEndian.Uint64(sum[:8]) % uint64(r.FrozenCount))
}

// Claim pays out the participant's credit for a finalized round. Bookkeeping
// mutates before the ledger release so a re-entrant transfer cannot pay
// twice.
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

// Sweep recovers unclaimed credit after the claim window expires and
// re-credits it to the open round's pool. Permissionless. Recovered amounts
// reduce outstanding pending without reducing TotalDistributed.
func (e *Engine) Sweep(roundID uint64, tk reward.Tick) (*SweepResult, error) {
	r, ok := e.rounds[roundID]
	if !ok || r.State != StateFinalized {
		return nil, fmt.Errorf("round %d not finalized: %w", roundID, reward.ErrNotExpired)
	}
	if !tk.Reached(r.ClaimExpiryMicros) {
		return nil, fmt.Errorf("round %d claim window open until %d: %w",
			roundID, r.ClaimExpiryMicros, reward.ErrNotExpired)
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
	e.outstanding -= recovered

	cur := e.current
	cur.PoolSize += recovered
	e.maybeSnapshot(cur, tk)

	return &SweepResult{
		RoundID:       roundID,
		Recovered:     recovered,
		CreditedRound: cur.ID,
	}, nil
}

// Read accessors. Called only from the core's processing goroutine; the
// query surface reads published snapshots instead.

func (e *Engine) CurrentRoundID() uint64 { return e.current.ID }

func (e *Engine) PoolSize() int64 { return e.current.PoolSize }

func (e *Engine) Threshold() int64 { return e.current.Threshold }

func (e *Engine) CurrentState() State { return e.current.State }

// IsRoundReady reports whether the current round has snapshotted and is
// waiting out the reveal delay.
func (e *Engine) IsRoundReady() bool { return e.current.State == StateSnapshotTaken }

func (e *Engine) EntryCount() int { return e.registry.Count() }

func (e *Engine) HasEntry(participant uuid.UUID) bool { return e.registry.Has(participant) }

// Outstanding returns credit distributed but not yet claimed or recovered,
// summed over all rounds. Must equal the vault pending ledger balance.
func (e *Engine) Outstanding() int64 { return e.outstanding }

func (e *Engine) Round(id uint64) (*Round, bool) {
	r, ok := e.rounds[id]
	return r, ok
}

// Claimable returns the unclaimed credit for a participant in a round.
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
