package ledger

import (
	"fmt"

	"github.com/google/uuid"
)

// AccountScope represents the top-level account namespace
type AccountScope uint8

const (
	AccountScopeParticipant AccountScope = iota
	AccountScopeVault
	AccountScopeExternal
)

// AccountSubType represents the account purpose
type AccountSubType uint8

const (
	// Participant sub-types
	SubTypePayout AccountSubType = iota

	// Vault sub-types
	SubTypeVaultPool    // Active round's accumulated funding
	SubTypeVaultPending // Distributed but unclaimed amounts

	// External sub-types
	SubTypeExternalFeeRouter // Funding source boundary
	SubTypeExternalTransfers // Claimed funds leaving the vault
)

// EngineID distinguishes the two reward engines' fund flows.
type EngineID uint8

const (
	EngineBuyer EngineID = 1
	EngineLP    EngineID = 2
)

func (e EngineID) String() string {
	switch e {
	case EngineBuyer:
		return "buyer"
	case EngineLP:
		return "lp"
	default:
		return "unknown"
	}
}

// AccountKey is the in-memory key for balance tracking
type AccountKey struct {
	Scope    AccountScope
	EntityID [16]byte // Participant UUID; zero for vault/external accounts
	SubType  AccountSubType
	Engine   EngineID
}

// NewParticipantAccountKey creates a key for a participant payout account
func NewParticipantAccountKey(participant uuid.UUID, engine EngineID) AccountKey {
	return AccountKey{
		Scope:    AccountScopeParticipant,
		EntityID: participant,
		SubType:  SubTypePayout,
		Engine:   engine,
	}
}

// NewVaultAccountKey creates a key for a vault-internal account
func NewVaultAccountKey(subType AccountSubType, engine EngineID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeVault,
		SubType: subType,
		Engine:  engine,
	}
}

// NewExternalAccountKey creates a key for an external boundary account
func NewExternalAccountKey(subType AccountSubType, engine EngineID) AccountKey {
	return AccountKey{
		Scope:   AccountScopeExternal,
		SubType: subType,
		Engine:  engine,
	}
}

// AccountPath returns the string representation for storage/logging
func (k AccountKey) AccountPath() string {
	switch k.Scope {
	case AccountScopeParticipant:
		pid := uuid.UUID(k.EntityID)
		return fmt.Sprintf("participant:%s:%s:%s", pid.String(), k.subTypeName(), k.Engine)
	case AccountScopeVault:
		return fmt.Sprintf("vault:%s:%s", k.subTypeName(), k.Engine)
	case AccountScopeExternal:
		return fmt.Sprintf("external:%s:%s", k.subTypeName(), k.Engine)
	}
	return "unknown"
}

func (k AccountKey) subTypeName() string {
	switch k.SubType {
	case SubTypePayout:
		return "payout"
	case SubTypeVaultPool:
		return "pool"
	case SubTypeVaultPending:
		return "pending"
	case SubTypeExternalFeeRouter:
		return "fee_router"
	case SubTypeExternalTransfers:
		return "transfers"
	default:
		return "unknown"
	}
}
