package buyer

import (
	"github.com/google/uuid"
)

const (
	// SlotCapacity bounds the circular entry store. The store is organized
	// as 8 segments of 512 for write locality; selection logic treats it
	// as one flat indexable sequence.
	SlotCapacity = SegmentCount * SegmentSize
	SegmentCount = 8
	SegmentSize  = 512
)

// Entry is one live registration in the circular store.
type Entry struct {
	Participant uuid.UUID
	Slot        int
	RoundID     uint64
}

// Registry is the fixed-capacity circular entry store. The write cursor
// advances monotonically and wraps modulo capacity; when a round exceeds
// capacity the oldest live entry of that round is overwritten in place.
// Occupancy never exceeds SlotCapacity.
type Registry struct {
	slots   [SlotCapacity]Entry
	start   int // Slot holding the current round's oldest live entry
	count   int // Live entries for the current round
	members map[uuid.UUID]int
	roundID uint64
}

func NewRegistry() *Registry {
	return &Registry{
		members: make(map[uuid.UUID]int),
	}
}

// BeginRound clears per-round membership and advances the write cursor to
// the slot after the previous round's last entry. Slots are not zeroed;
// stale entries are unreachable because indexing is bounded by count.
func (r *Registry) BeginRound(roundID uint64) {
	r.start = (r.start + r.count) % SlotCapacity
	r.count = 0
	r.roundID = roundID
	r.members = make(map[uuid.UUID]int)
}

// Has reports whether the participant holds a live entry this round.
func (r *Registry) Has(participant uuid.UUID) bool {
	_, ok := r.members[participant]
	return ok
}

// Append writes an entry for the participant at the next circular slot and
// returns the slot index. At capacity, the round's oldest entry is
// overwritten and drops out of membership.
func (r *Registry) Append(participant uuid.UUID) int {
	if r.count == SlotCapacity {
		oldest := r.slots[r.start]
		delete(r.members, oldest.Participant)
		r.start = (r.start + 1) % SlotCapacity
		r.count--
	}

	slot := (r.start + r.count) % SlotCapacity
	r.slots[slot] = Entry{
		Participant: participant,
		Slot:        slot,
		RoundID:     r.roundID,
	}
	r.members[participant] = slot
	r.count++

	return slot
}

// Count returns the number of live entries for the current round.
func (r *Registry) Count() int {
	return r.count
}

// EntryAt maps a flat selection index (0..Count-1, oldest first) to its
// live entry.
func (r *Registry) EntryAt(index int) Entry {
	return r.slots[(r.start+index)%SlotCapacity]
}

// SegmentOf returns the segment a slot belongs to.
func SegmentOf(slot int) int {
	return slot / SegmentSize
}
