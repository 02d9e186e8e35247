package event

import (
	"fmt"

	"github.com/google/uuid"

	"RewardVault/internal/reward"
)

// BuyerEntry registers a buy into the active buyer round. The fee-routing
// collaborator emits one entry per qualifying buy together with the slice of
// the transfer tax routed into the buyer vault.
// Idempotency key: entry_id.
type BuyerEntry struct {
	EntryID      uuid.UUID // Unique per routed buy
	Participant  uuid.UUID
	Contribution int64 // Buy size, used by the eligibility predicate
	Balance      int64 // Participant wallet balance at buy time
	Routed       int64 // Amount routed into the buyer vault pool
	FeedSequence int64 // Monotonic per buyer feed
	At           reward.Tick
}

func (e *BuyerEntry) IdempotencyKey() string { return e.EntryID.String() }
func (e *BuyerEntry) EventType() EventType   { return EventTypeBuyerEntry }
func (e *BuyerEntry) Engine() *string        { return enginePtr(EngineBuyer) }
func (e *BuyerEntry) Partition() string      { return "buyer:entries" }
func (e *BuyerEntry) SourceSequence() int64  { return e.FeedSequence }
func (e *BuyerEntry) Tick() reward.Tick      { return e.At }

// BuyerFinalize requests winner selection for the snapshotted buyer round.
// Permissionless: any party may submit it once the reveal delay has elapsed.
type BuyerFinalize struct {
	RequestID    uuid.UUID
	FeedSequence int64
	At           reward.Tick
}

func (e *BuyerFinalize) IdempotencyKey() string { return e.RequestID.String() }
func (e *BuyerFinalize) EventType() EventType   { return EventTypeBuyerFinalize }
func (e *BuyerFinalize) Engine() *string        { return enginePtr(EngineBuyer) }
func (e *BuyerFinalize) Partition() string      { return "control" }
func (e *BuyerFinalize) SourceSequence() int64  { return e.FeedSequence }
func (e *BuyerFinalize) Tick() reward.Tick      { return e.At }

// BuyerClaim is a pull-payment request against a finalized buyer round.
type BuyerClaim struct {
	RequestID    uuid.UUID
	Participant  uuid.UUID
	RoundID      uint64
	FeedSequence int64
	At           reward.Tick
}

func (e *BuyerClaim) IdempotencyKey() string { return e.RequestID.String() }
func (e *BuyerClaim) EventType() EventType   { return EventTypeBuyerClaim }
func (e *BuyerClaim) Engine() *string        { return enginePtr(EngineBuyer) }
func (e *BuyerClaim) Partition() string      { return "control" }
func (e *BuyerClaim) SourceSequence() int64  { return e.FeedSequence }
func (e *BuyerClaim) Tick() reward.Tick      { return e.At }

// BuyerSweep recovers unclaimed amounts from an expired buyer round back
// into the open round's pool. Permissionless past the claim expiry.
type BuyerSweep struct {
	RequestID    uuid.UUID
	RoundID      uint64
	FeedSequence int64
	At           reward.Tick
}

func (e *BuyerSweep) IdempotencyKey() string { return e.RequestID.String() }
func (e *BuyerSweep) EventType() EventType   { return EventTypeBuyerSweep }
func (e *BuyerSweep) Engine() *string        { return enginePtr(EngineBuyer) }
func (e *BuyerSweep) Partition() string      { return "control" }
func (e *BuyerSweep) SourceSequence() int64  { return e.FeedSequence }
func (e *BuyerSweep) Tick() reward.Tick      { return e.At }

// StageRuleUpdate replaces the active eligibility rules for buyer entries.
// The token collaborator emits one on each stage transition.
// Idempotency key: "stage:{stage}".
type StageRuleUpdate struct {
	Stage           uint32
	MinContribution int64
	MinBalance      int64
	FeedSequence    int64
	At              reward.Tick
}

func (e *StageRuleUpdate) IdempotencyKey() string { return fmt.Sprintf("stage:%d", e.Stage) }
func (e *StageRuleUpdate) EventType() EventType   { return EventTypeStageRuleUpdate }
func (e *StageRuleUpdate) Engine() *string        { return nil }
func (e *StageRuleUpdate) Partition() string      { return "control" }
func (e *StageRuleUpdate) SourceSequence() int64  { return e.FeedSequence }
func (e *StageRuleUpdate) Tick() reward.Tick      { return e.At }
