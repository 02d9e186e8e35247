package reward

import "errors"

// Rejection kinds shared by both reward engines. Every operation detects
// its rejection before any state mutation; a failed call leaves engine and
// ledger state unchanged.
var (
	// ErrNotEligible rejects a buyer entry that fails the active stage's
	// minimum buy size or minimum wallet balance.
	ErrNotEligible = errors.New("participant not eligible for entry")

	// ErrDuplicateEntry rejects a second live entry for the same
	// participant in one round.
	ErrDuplicateEntry = errors.New("participant already holds an entry this round")

	// ErrNotReady rejects a transition whose threshold, snapshot, or
	// timeout condition is not yet met.
	ErrNotReady = errors.New("round condition not met")

	// ErrAlreadyFinalized rejects a second finalize on the same snapshot.
	ErrAlreadyFinalized = errors.New("round already finalized")

	// ErrNothingToClaim rejects a claim with no credited amount.
	ErrNothingToClaim = errors.New("no claimable amount for participant")

	// ErrAlreadyClaimed rejects a repeated claim.
	ErrAlreadyClaimed = errors.New("claim already paid")

	// ErrBufferFull rejects buffer admission when the buffer is at
	// capacity and the contribution does not strictly exceed the current
	// minimum. The lifetime ledger is still credited.
	ErrBufferFull = errors.New("buffer full and contribution does not exceed minimum")

	// ErrNotExpired rejects a sweep attempted before the claim deadline.
	ErrNotExpired = errors.New("claim window still open")

	// ErrInvalidAmount rejects a funding or contribution amount that is
	// not strictly positive. The parsers screen these at the ingest
	// boundary; the engines re-check so no path can shrink a pool or a
	// lifetime total.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// ErrorKind returns the stable label used for metrics and API responses.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrDuplicateEntry):
		return "duplicate_entry"
	case errors.Is(err, ErrNotReady):
		return "not_ready"
	case errors.Is(err, ErrAlreadyFinalized):
		return "already_finalized"
	case errors.Is(err, ErrNothingToClaim):
		return "nothing_to_claim"
	case errors.Is(err, ErrAlreadyClaimed):
		return "already_claimed"
	case errors.Is(err, ErrBufferFull):
		return "buffer_full"
	case errors.Is(err, ErrNotExpired):
		return "not_expired"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "internal"
	}
}
