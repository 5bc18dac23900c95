package followup

import "errors"

// Sentinel errors for the followup service layer.
var (
	// ErrDuplicateSequence is returned by AttemptRepository.Create when a
	// non-cancelled attempt already occupies the (email, sequence) slot.
	// The scheduler treats it as a benign skip, not a failure.
	ErrDuplicateSequence = errors.New("followup attempt already exists for this sequence")

	ErrUnknownSlot  = errors.New("unknown slot identifier")
	ErrEmailMissing = errors.New("tracked email not found")
)
