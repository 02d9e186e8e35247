package lp

import (
	"sort"

	"github.com/google/uuid"
)

// TopK bounds the ranked payout list.
const TopK = 60

// Ranked is one entry of the ordered top list.
type Ranked struct {
	Participant uuid.UUID
	Amount      int64
	InsertSeq   uint64
}

// ranksBefore is the total deterministic payout order: amount descending,
// then earliest admission first.
func ranksBefore(a, b Ranked) bool {
	if a.Amount != b.Amount {
		return a.Amount > b.Amount
	}
	return a.InsertSeq < b.InsertSeq
}

// Ranking maintains the top-K ordering incrementally: each update is a
// removal plus a bounded sorted insertion, never a full sort of the buffer.
type Ranking struct {
	entries []Ranked
}

func NewRanking() *Ranking {
	return &Ranking{entries: make([]Ranked, 0, TopK)}
}

func (rk *Ranking) Len() int {
	return len(rk.entries)
}

func (rk *Ranking) Has(participant uuid.UUID) bool {
	return rk.indexOf(participant) >= 0
}

// Entries returns a copy in rank order, best first.
func (rk *Ranking) Entries() []Ranked {
	out := make([]Ranked, len(rk.entries))
	copy(out, rk.entries)
	return out
}

// Min returns the worst ranked entry.
func (rk *Ranking) Min() (Ranked, bool) {
	if len(rk.entries) == 0 {
		return Ranked{}, false
	}
	return rk.entries[len(rk.entries)-1], true
}

func (rk *Ranking) indexOf(participant uuid.UUID) int {
	for i, e := range rk.entries {
		if e.Participant == participant {
			return i
		}
	}
	return -1
}

// Update re-ranks a participant at its new amount and reports whether it
// holds a rank afterward. An entry pushed past position K drops off.
func (rk *Ranking) Update(entry Ranked) bool {
	if i := rk.indexOf(entry.Participant); i >= 0 {
		rk.entries = append(rk.entries[:i], rk.entries[i+1:]...)
	}

	pos := sort.Search(len(rk.entries), func(i int) bool {
		return ranksBefore(entry, rk.entries[i])
	})
	if pos >= TopK {
		return false
	}

	rk.entries = append(rk.entries, Ranked{})
	copy(rk.entries[pos+1:], rk.entries[pos:])
	rk.entries[pos] = entry
	if len(rk.entries) > TopK {
		rk.entries = rk.entries[:TopK]
	}
	return true
}

func (rk *Ranking) Remove(participant uuid.UUID) bool {
	i := rk.indexOf(participant)
	if i < 0 {
		return false
	}
	rk.entries = append(rk.entries[:i], rk.entries[i+1:]...)
	return true
}
