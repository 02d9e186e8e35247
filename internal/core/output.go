package core

import (
	"github.com/google/uuid"

	"RewardVault/internal/event"
	"RewardVault/internal/ledger"
)

// CoreOutput is one applied event's downstream record: the envelope for the
// event log, the balanced journal batch (nil for state-only events), and
// the state change consumed by projection workers.
type CoreOutput struct {
	Envelope *event.Envelope
	Batch    *ledger.Batch
	Change   *StateChange
}

// StateChange describes the mutation an applied event produced, in the
// shape the projection tables want. Only the affected sections are set.
type StateChange struct {
	Engine   string
	Round    *RoundChange
	Claims   []ClaimChange
	Ranked   []RankedChange
	Lifetime *LifetimeChange
	Rules    *RulesChange
}

// RoundChange is the affected round's record after the event.
type RoundChange struct {
	RoundID          uint64
	State            string
	Pool             int64
	Threshold        int64
	EntryCount       int
	Winner           *uuid.UUID
	TotalDistributed int64
	TotalClaimed     int64
	Recovered        int64
}

// ClaimChange upserts one participant's claim record for a round.
type ClaimChange struct {
	Participant uuid.UUID
	RoundID     uint64
	Rank        int // 0 for buyer winner
	Claimable   int64
	Claimed     bool
}

// RankedChange is one row of a finalized LP round's payout table.
type RankedChange struct {
	Rank         int
	Participant  uuid.UUID
	Contribution int64
	Payout       int64
}

// LifetimeChange records an LP lifetime ledger credit.
type LifetimeChange struct {
	Participant uuid.UUID
	Total       int64
}

// RulesChange records a stage rule replacement.
type RulesChange struct {
	Stage           uint32
	MinContribution int64
	MinBalance      int64
}

// Status is the lock-free read snapshot published after every applied
// event. Pure state queries read the latest pointer and never touch the
// processing path.
type Status struct {
	Sequence int64
	Buyer    EngineStatus
	LP       EngineStatus
}

// EngineStatus is one engine's current-round view.
type EngineStatus struct {
	RoundID     uint64
	State       string
	Pool        int64
	Threshold   int64
	Members     int // live buyer entries, or LP buffer occupancy
	Ready       bool
	Outstanding int64
}
