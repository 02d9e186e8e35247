package query

import "github.com/google/uuid"

// RoundResponse represents one reward round for API queries.
type RoundResponse struct {
	Engine           string  `json:"engine"`
	RoundID          uint64  `json:"round_id"`
	State            string  `json:"state"`
	Pool             int64   `json:"pool"`
	Threshold        int64   `json:"threshold"`
	EntryCount       int     `json:"entry_count"`
	Winner           *string `json:"winner,omitempty"`
	TotalDistributed int64   `json:"total_distributed"`
	TotalClaimed     int64   `json:"total_claimed"`
	Recovered        int64   `json:"recovered"`
	AsOfSequence     int64   `json:"as_of_sequence"`
}

// ClaimResponse represents a participant's claim record for API queries.
type ClaimResponse struct {
	Participant  uuid.UUID `json:"participant"`
	Engine       string    `json:"engine"`
	RoundID      uint64    `json:"round_id"`
	Rank         int       `json:"rank,omitempty"` // 0 for buyer wins
	Claimable    int64     `json:"claimable"`
	Claimed      bool      `json:"claimed"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// RankedResponse represents one frozen leaderboard row for API queries.
type RankedResponse struct {
	RoundID      uint64    `json:"round_id"`
	Rank         int       `json:"rank"`
	Participant  uuid.UUID `json:"participant"`
	Contribution int64     `json:"contribution"`
	Payout       int64     `json:"payout"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// LifetimeResponse represents a participant's lifetime contribution total.
type LifetimeResponse struct {
	Participant  uuid.UUID `json:"participant"`
	Total        int64     `json:"total"`
	AsOfSequence int64     `json:"as_of_sequence"`
}

// JournalHistoryEntry represents a journal entry for API queries.
type JournalHistoryEntry struct {
	JournalID     string `json:"journal_id"`
	BatchID       string `json:"batch_id"`
	EventRef      string `json:"event_ref"`
	Sequence      int64  `json:"sequence"`
	DebitAccount  string `json:"debit_account"`
	CreditAccount string `json:"credit_account"`
	Engine        int16  `json:"engine"`
	Amount        int64  `json:"amount"`
	JournalType   int32  `json:"journal_type"`
	Timestamp     int64  `json:"timestamp"`
}

// IntegrityReport is the result of an integrity verification check.
type IntegrityReport struct {
	IsHealthy         bool               `json:"is_healthy"`
	HashChainBreaks   []int64            `json:"hash_chain_breaks,omitempty"`
	UnbalancedEngines []UnbalancedEngine `json:"unbalanced_engines,omitempty"`
}

// UnbalancedEngine represents an engine with non-zero global balance sum.
type UnbalancedEngine struct {
	Engine    int16 `json:"engine"`
	Imbalance int64 `json:"imbalance"`
}
