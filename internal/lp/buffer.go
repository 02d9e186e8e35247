package lp

import "github.com/google/uuid"

// Capacity bounds the per-round contribution buffer.
const Capacity = 400

// Slot is one buffer member's current-round position. InsertSeq is the
// round-scoped admission counter used as the ranking tie-break: earlier
// admission ranks higher at equal amounts, so the latest-admitted minimum
// is the eviction victim.
type Slot struct {
	Participant uuid.UUID
	Amount      int64
	InsertSeq   uint64
}

// Buffer holds the active round's contributing participants, at most
// Capacity of them. Storage is a dense slice with a side index; slot order
// carries no meaning.
type Buffer struct {
	slots   []Slot
	index   map[uuid.UUID]int
	nextSeq uint64
}

func NewBuffer() *Buffer {
	return &Buffer{
		slots: make([]Slot, 0, Capacity),
		index: make(map[uuid.UUID]int, Capacity),
	}
}

func (b *Buffer) Len() int {
	return len(b.slots)
}

func (b *Buffer) Has(participant uuid.UUID) bool {
	_, ok := b.index[participant]
	return ok
}

func (b *Buffer) Get(participant uuid.UUID) (Slot, bool) {
	i, ok := b.index[participant]
	if !ok {
		return Slot{}, false
	}
	return b.slots[i], true
}

// Add admits a new member. The caller enforces the capacity policy.
func (b *Buffer) Add(participant uuid.UUID, amount int64) Slot {
	b.nextSeq++
	s := Slot{Participant: participant, Amount: amount, InsertSeq: b.nextSeq}
	b.index[participant] = len(b.slots)
	b.slots = append(b.slots, s)
	return s
}

// Increase raises an existing member's current-round amount in place,
// keeping its insertion sequence.
func (b *Buffer) Increase(participant uuid.UUID, delta int64) Slot {
	i := b.index[participant]
	b.slots[i].Amount += delta
	return b.slots[i]
}

// Min returns the eviction candidate: the minimum amount, ties resolved to
// the latest admission. One linear scan at the 400-element bound.
func (b *Buffer) Min() (Slot, bool) {
	if len(b.slots) == 0 {
		return Slot{}, false
	}
	min := b.slots[0]
	for _, s := range b.slots[1:] {
		if s.Amount < min.Amount || (s.Amount == min.Amount && s.InsertSeq > min.InsertSeq) {
			min = s
		}
	}
	return min, true
}

// Remove evicts a member by swap-delete.
func (b *Buffer) Remove(participant uuid.UUID) (Slot, bool) {
	i, ok := b.index[participant]
	if !ok {
		return Slot{}, false
	}
	removed := b.slots[i]
	last := len(b.slots) - 1
	if i != last {
		b.slots[i] = b.slots[last]
		b.index[b.slots[i].Participant] = i
	}
	b.slots = b.slots[:last]
	delete(b.index, participant)
	return removed, true
}

// Slots returns a copy of the membership in storage order.
func (b *Buffer) Slots() []Slot {
	out := make([]Slot, len(b.slots))
	copy(out, b.slots)
	return out
}
