package projection

// PayoutHistoryEntry represents one settled claim for a participant.
type PayoutHistoryEntry struct {
	Participant string
	Engine      string
	RoundID     uint64
	Rank        int // 0 for buyer wins
	Sequence    int64
	Timestamp   int64
}

// PayoutHistoryProjection maintains queryable claim history
type PayoutHistoryProjection struct {
	entries []PayoutHistoryEntry
}

func NewPayoutHistoryProjection() *PayoutHistoryProjection {
	return &PayoutHistoryProjection{
		entries: make([]PayoutHistoryEntry, 0),
	}
}

// AddEntry records a settled claim
func (p *PayoutHistoryProjection) AddEntry(entry PayoutHistoryEntry) {
	p.entries = append(p.entries, entry)
}

// QueryByParticipant returns claim history for a participant, newest first
func (p *PayoutHistoryProjection) QueryByParticipant(participant string, limit int) []PayoutHistoryEntry {
	result := make([]PayoutHistoryEntry, 0)

	for i := len(p.entries) - 1; i >= 0 && len(result) < limit; i-- {
		if p.entries[i].Participant == participant {
			result = append(result, p.entries[i])
		}
	}

	return result
}
