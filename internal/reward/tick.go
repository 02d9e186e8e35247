package reward

import "fmt"

// Tick is one unit of the external logical clock: a totally ordered sequence
// counter paired with the wall-clock timestamp of the triggering event.
// The core never calls time.Now(); every time-gated transition compares
// against the tick carried on the event being processed.
type Tick struct {
	Seq        int64 // Total order over all events
	WallMicros int64 // Event timestamp in epoch microseconds
}

// Time-gate durations, expressed in wall-clock microseconds on the tick.
const (
	MicrosPerDay = int64(24) * 60 * 60 * 1_000_000

	// RevealDelayMicros separates the buyer snapshot (entry freeze) from
	// finalize eligibility so the winning index cannot be predicted at
	// snapshot time.
	RevealDelayMicros = 10 * 60 * 1_000_000 // 10 minutes

	// FinalizeTimeoutMicros is the window after which anyone may finalize
	// an LP round regardless of threshold, so withheld funding cannot
	// strand a round.
	FinalizeTimeoutMicros = 7 * MicrosPerDay

	// ClaimExpiryMicros is the window after finalize during which winners
	// may claim; past it, unclaimed amounts are sweepable.
	ClaimExpiryMicros = 30 * MicrosPerDay
)

// Reached reports whether t has reached the wall-clock gate at micros.
func (t Tick) Reached(micros int64) bool {
	return t.WallMicros >= micros
}

func (t Tick) String() string {
	return fmt.Sprintf("tick(%d@%d)", t.Seq, t.WallMicros)
}
