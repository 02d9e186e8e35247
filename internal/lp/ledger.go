package lp

import "github.com/google/uuid"

// LifetimeLedger is the monotonic all-time contribution total per
// participant. It is credited on every recorded contribution regardless of
// buffer admission and never decreases.
type LifetimeLedger struct {
	amounts map[uuid.UUID]int64
}

func NewLifetimeLedger() *LifetimeLedger {
	return &LifetimeLedger{amounts: make(map[uuid.UUID]int64)}
}

// Credit adds amount and returns the new lifetime total.
func (l *LifetimeLedger) Credit(participant uuid.UUID, amount int64) int64 {
	l.amounts[participant] += amount
	return l.amounts[participant]
}

func (l *LifetimeLedger) Amount(participant uuid.UUID) int64 {
	return l.amounts[participant]
}

func (l *LifetimeLedger) Size() int {
	return len(l.amounts)
}
