package event

import (
	"RewardVault/internal/reward"
)

// EventType discriminator for event payloads
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeBuyerEntry
	EventTypeBuyerFinalize
	EventTypeBuyerClaim
	EventTypeBuyerSweep
	EventTypeLPContribution
	EventTypeLPPotFunding
	EventTypeLPFinalize
	EventTypeLPClaim
	EventTypeLPSweep
	EventTypeStageRuleUpdate
)

// Engine labels used for partitioning and persistence.
const (
	EngineBuyer = "buyer"
	EngineLP    = "lp"
)

// Envelope wraps every event in the log
type Envelope struct {
	// Global monotonic sequence assigned by core
	Sequence int64

	// Stable idempotency key from upstream
	IdempotencyKey string

	// Event type discriminator
	EventType EventType

	// Engine context (nil for control events)
	Engine *string

	// Logical clock tick carried by the event (never wall-clock Now)
	Tick reward.Tick

	// Ordering partition the source sequence belongs to
	Partition string

	// Upstream sequence for ordering validation
	SourceSequence int64

	// JSON-encoded event-specific data
	Payload []byte

	// SHA-256 of state AFTER applying this event
	StateHash [32]byte

	// Previous event's state hash (chain integrity)
	PrevHash [32]byte
}

// Event is the interface all event payloads must implement
type Event interface {
	// IdempotencyKey returns the stable dedup key
	IdempotencyKey() string

	// EventType returns the discriminator
	EventType() EventType

	// Engine returns the engine context (nil for control events)
	Engine() *string

	// Partition returns the ordering partition for sequence validation
	Partition() string

	// SourceSequence returns upstream ordering key
	SourceSequence() int64

	// Tick returns the logical clock reading carried by the event
	Tick() reward.Tick
}

func (et EventType) String() string {
	switch et {
	case EventTypeBuyerEntry:
		return "BuyerEntry"
	case EventTypeBuyerFinalize:
		return "BuyerFinalize"
	case EventTypeBuyerClaim:
		return "BuyerClaim"
	case EventTypeBuyerSweep:
		return "BuyerSweep"
	case EventTypeLPContribution:
		return "LPContribution"
	case EventTypeLPPotFunding:
		return "LPPotFunding"
	case EventTypeLPFinalize:
		return "LPFinalize"
	case EventTypeLPClaim:
		return "LPClaim"
	case EventTypeLPSweep:
		return "LPSweep"
	case EventTypeStageRuleUpdate:
		return "StageRuleUpdate"
	default:
		return "Unknown"
	}
}

func enginePtr(name string) *string {
	s := name
	return &s
}
