package faction

import "errors"

var (
	// ErrInvalidState: operation preconditions violated, e.g. making peace
	// while not at war.
	ErrInvalidState = errors.New("invalid relationship state")

	// ErrValidation: malformed input, e.g. a non-positive schism threshold
	// or an unknown stance.
	ErrValidation = errors.New("validation failed")

	// ErrStore wraps Entity Store failures so callers can distinguish them
	// from engine preconditions.
	ErrStore = errors.New("entity store failure")
)
