package ingestion

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"RewardVault/internal/event"
	"RewardVault/internal/reward"
)

// ParseRawEvent converts a RawEvent (JSON bytes + event type string) into a
// typed event.Event. The ingestion shell validates, parses, and converts raw
// events before sending to the deterministic core.
func ParseRawEvent(raw RawEvent, eventType string) (event.Event, error) {
	switch eventType {
	case "BuyerEntry":
		return parseBuyerEntry(raw.Data)
	case "BuyerFinalize":
		return parseBuyerFinalize(raw.Data)
	case "BuyerClaim":
		return parseBuyerClaim(raw.Data)
	case "BuyerSweep":
		return parseBuyerSweep(raw.Data)
	case "StageRuleUpdate":
		return parseStageRuleUpdate(raw.Data)
	case "LPContribution":
		return parseLPContribution(raw.Data)
	case "LPPotFunding":
		return parseLPPotFunding(raw.Data)
	case "LPFinalize":
		return parseLPFinalize(raw.Data)
	case "LPClaim":
		return parseLPClaim(raw.Data)
	case "LPSweep":
		return parseLPSweep(raw.Data)
	default:
		return nil, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// ParseStoredEvent decodes an event-log payload back into a typed event.
// Stored payloads are the marshaled typed structs, not the upstream wire
// format, so this decodes into the struct directly.
func ParseStoredEvent(eventType string, payload []byte) (event.Event, error) {
	var evt event.Event
	switch eventType {
	case "BuyerEntry":
		evt = &event.BuyerEntry{}
	case "BuyerFinalize":
		evt = &event.BuyerFinalize{}
	case "BuyerClaim":
		evt = &event.BuyerClaim{}
	case "BuyerSweep":
		evt = &event.BuyerSweep{}
	case "StageRuleUpdate":
		evt = &event.StageRuleUpdate{}
	case "LPContribution":
		evt = &event.LPContribution{}
	case "LPPotFunding":
		evt = &event.LPPotFunding{}
	case "LPFinalize":
		evt = &event.LPFinalize{}
	case "LPClaim":
		evt = &event.LPClaim{}
	case "LPSweep":
		evt = &event.LPSweep{}
	default:
		return nil, fmt.Errorf("unknown stored event type: %s", eventType)
	}
	if err := json.Unmarshal(payload, evt); err != nil {
		return nil, fmt.Errorf("decode stored %s: %w", eventType, err)
	}
	return evt, nil
}

// --- JSON wire formats ---
// These structs represent the JSON payloads received from NATS.
// Field names use snake_case to match upstream producers. tick_seq and
// timestamp_us together form the logical tick stamped by the feed.

type buyerEntryJSON struct {
	EntryID      string `json:"entry_id"`
	Participant  string `json:"participant"`
	Contribution int64  `json:"contribution"`
	Balance      int64  `json:"balance"`
	Routed       int64  `json:"routed"`
	FeedSequence int64  `json:"feed_sequence"`
	TickSeq      int64  `json:"tick_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseBuyerEntry(data []byte) (*event.BuyerEntry, error) {
	var j buyerEntryJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BuyerEntry: %w", err)
	}

	entryID, err := uuid.Parse(j.EntryID)
	if err != nil {
		return nil, fmt.Errorf("parse entry_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant: %w", err)
	}
	if j.Routed <= 0 {
		return nil, fmt.Errorf("routed amount must be positive, got %d", j.Routed)
	}
	if j.Contribution <= 0 {
		return nil, fmt.Errorf("contribution must be positive, got %d", j.Contribution)
	}
	if j.Balance < 0 {
		return nil, fmt.Errorf("balance must not be negative, got %d", j.Balance)
	}

	return &event.BuyerEntry{
		EntryID:      entryID,
		Participant:  participant,
		Contribution: j.Contribution,
		Balance:      j.Balance,
		Routed:       j.Routed,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

type finalizeJSON struct {
	RequestID    string `json:"request_id"`
	Caller       string `json:"caller,omitempty"`
	FeedSequence int64  `json:"feed_sequence"`
	TickSeq      int64  `json:"tick_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseBuyerFinalize(data []byte) (*event.BuyerFinalize, error) {
	var j finalizeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BuyerFinalize: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.BuyerFinalize{
		RequestID:    requestID,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

type claimJSON struct {
	RequestID    string `json:"request_id"`
	Participant  string `json:"participant"`
	RoundID      uint64 `json:"round_id"`
	FeedSequence int64  `json:"feed_sequence"`
	TickSeq      int64  `json:"tick_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseBuyerClaim(data []byte) (*event.BuyerClaim, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BuyerClaim: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant: %w", err)
	}
	return &event.BuyerClaim{
		RequestID:    requestID,
		Participant:  participant,
		RoundID:      j.RoundID,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

type sweepJSON struct {
	RequestID    string `json:"request_id"`
	RoundID      uint64 `json:"round_id"`
	FeedSequence int64  `json:"feed_sequence"`
	TickSeq      int64  `json:"tick_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseBuyerSweep(data []byte) (*event.BuyerSweep, error) {
	var j sweepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse BuyerSweep: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.BuyerSweep{
		RequestID:    requestID,
		RoundID:      j.RoundID,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

type stageRuleUpdateJSON struct {
	Stage           uint32 `json:"stage"`
	MinContribution int64  `json:"min_contribution"`
	MinBalance      int64  `json:"min_balance"`
	FeedSequence    int64  `json:"feed_sequence"`
	TickSeq         int64  `json:"tick_seq"`
	TimestampUs     int64  `json:"timestamp_us"`
}

func parseStageRuleUpdate(data []byte) (*event.StageRuleUpdate, error) {
	var j stageRuleUpdateJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse StageRuleUpdate: %w", err)
	}
	return &event.StageRuleUpdate{
		Stage:           j.Stage,
		MinContribution: j.MinContribution,
		MinBalance:      j.MinBalance,
		FeedSequence:    j.FeedSequence,
		At:              reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

type lpContributionJSON struct {
	ContributionID string `json:"contribution_id"`
	Participant    string `json:"participant"`
	Amount         int64  `json:"amount"`
	FeedSequence   int64  `json:"feed_sequence"`
	TickSeq        int64  `json:"tick_seq"`
	TimestampUs    int64  `json:"timestamp_us"`
}

func parseLPContribution(data []byte) (*event.LPContribution, error) {
	var j lpContributionJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LPContribution: %w", err)
	}
	contributionID, err := uuid.Parse(j.ContributionID)
	if err != nil {
		return nil, fmt.Errorf("parse contribution_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("contribution amount must be positive, got %d", j.Amount)
	}
	return &event.LPContribution{
		ContributionID: contributionID,
		Participant:    participant,
		Amount:         j.Amount,
		FeedSequence:   j.FeedSequence,
		At:             reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

type lpPotFundingJSON struct {
	FundingID    string `json:"funding_id"`
	Amount       int64  `json:"amount"`
	FeedSequence int64  `json:"feed_sequence"`
	TickSeq      int64  `json:"tick_seq"`
	TimestampUs  int64  `json:"timestamp_us"`
}

func parseLPPotFunding(data []byte) (*event.LPPotFunding, error) {
	var j lpPotFundingJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LPPotFunding: %w", err)
	}
	fundingID, err := uuid.Parse(j.FundingID)
	if err != nil {
		return nil, fmt.Errorf("parse funding_id: %w", err)
	}
	if j.Amount <= 0 {
		return nil, fmt.Errorf("funding amount must be positive, got %d", j.Amount)
	}
	return &event.LPPotFunding{
		FundingID:    fundingID,
		Amount:       j.Amount,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

func parseLPFinalize(data []byte) (*event.LPFinalize, error) {
	var j finalizeJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LPFinalize: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	caller, err := uuid.Parse(j.Caller)
	if err != nil {
		return nil, fmt.Errorf("parse caller: %w", err)
	}
	return &event.LPFinalize{
		RequestID:    requestID,
		Caller:       caller,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

func parseLPClaim(data []byte) (*event.LPClaim, error) {
	var j claimJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LPClaim: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	participant, err := uuid.Parse(j.Participant)
	if err != nil {
		return nil, fmt.Errorf("parse participant: %w", err)
	}
	return &event.LPClaim{
		RequestID:    requestID,
		Participant:  participant,
		RoundID:      j.RoundID,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}

func parseLPSweep(data []byte) (*event.LPSweep, error) {
	var j sweepJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("parse LPSweep: %w", err)
	}
	requestID, err := uuid.Parse(j.RequestID)
	if err != nil {
		return nil, fmt.Errorf("parse request_id: %w", err)
	}
	return &event.LPSweep{
		RequestID:    requestID,
		RoundID:      j.RoundID,
		FeedSequence: j.FeedSequence,
		At:           reward.Tick{Seq: j.TickSeq, WallMicros: j.TimestampUs},
	}, nil
}
