package event

import (
	"github.com/google/uuid"

	"RewardVault/internal/reward"
)

// LPContribution records a liquidity contribution for ranking. It always
// credits the lifetime ledger; buffer admission follows the capacity and
// eviction policy.
// Idempotency key: contribution_id.
type LPContribution struct {
	ContributionID uuid.UUID
	Participant    uuid.UUID
	Amount         int64
	FeedSequence   int64 // Monotonic per LP registration feed
	At             reward.Tick
}

func (e *LPContribution) IdempotencyKey() string { return e.ContributionID.String() }
func (e *LPContribution) EventType() EventType   { return EventTypeLPContribution }
func (e *LPContribution) Engine() *string        { return enginePtr(EngineLP) }
func (e *LPContribution) Partition() string      { return "lp:contributions" }
func (e *LPContribution) SourceSequence() int64  { return e.FeedSequence }
func (e *LPContribution) Tick() reward.Tick      { return e.At }

// LPPotFunding routes a slice of collected fees into the active LP round's
// pot. Contributions rank participants; pot funding is what gets paid out.
type LPPotFunding struct {
	FundingID    uuid.UUID
	Amount       int64
	FeedSequence int64
	At           reward.Tick
}

func (e *LPPotFunding) IdempotencyKey() string { return e.FundingID.String() }
func (e *LPPotFunding) EventType() EventType   { return EventTypeLPPotFunding }
func (e *LPPotFunding) Engine() *string        { return enginePtr(EngineLP) }
func (e *LPPotFunding) Partition() string      { return "lp:funding" }
func (e *LPPotFunding) SourceSequence() int64  { return e.FeedSequence }
func (e *LPPotFunding) Tick() reward.Tick      { return e.At }

// LPFinalize requests distribution of the active LP round. Buffer members
// may finalize once the pot reaches threshold; anyone may finalize once the
// deadline has passed.
type LPFinalize struct {
	RequestID    uuid.UUID
	Caller       uuid.UUID // Used for the membership check on the early path
	FeedSequence int64
	At           reward.Tick
}

func (e *LPFinalize) IdempotencyKey() string { return e.RequestID.String() }
func (e *LPFinalize) EventType() EventType   { return EventTypeLPFinalize }
func (e *LPFinalize) Engine() *string        { return enginePtr(EngineLP) }
func (e *LPFinalize) Partition() string      { return "control" }
func (e *LPFinalize) SourceSequence() int64  { return e.FeedSequence }
func (e *LPFinalize) Tick() reward.Tick      { return e.At }

// LPClaim is a pull-payment request against a distributed LP round.
type LPClaim struct {
	RequestID    uuid.UUID
	Participant  uuid.UUID
	RoundID      uint64
	FeedSequence int64
	At           reward.Tick
}

func (e *LPClaim) IdempotencyKey() string { return e.RequestID.String() }
func (e *LPClaim) EventType() EventType   { return EventTypeLPClaim }
func (e *LPClaim) Engine() *string        { return enginePtr(EngineLP) }
func (e *LPClaim) Partition() string      { return "control" }
func (e *LPClaim) SourceSequence() int64  { return e.FeedSequence }
func (e *LPClaim) Tick() reward.Tick      { return e.At }

// LPSweep recovers unclaimed LP payouts after the claim deadline.
type LPSweep struct {
	RequestID    uuid.UUID
	RoundID      uint64
	FeedSequence int64
	At           reward.Tick
}

func (e *LPSweep) IdempotencyKey() string { return e.RequestID.String() }
func (e *LPSweep) EventType() EventType   { return EventTypeLPSweep }
func (e *LPSweep) Engine() *string        { return enginePtr(EngineLP) }
func (e *LPSweep) Partition() string      { return "control" }
func (e *LPSweep) SourceSequence() int64  { return e.FeedSequence }
func (e *LPSweep) Tick() reward.Tick      { return e.At }
