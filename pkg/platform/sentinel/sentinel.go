package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
//   - ErrNotFound: document does not exist in the store
//   - ErrConflict: a conditional write's precondition no longer holds
//   - ErrUnavailable: the store could not be reached or timed out
//
// Anything else a store returns is treated as an upstream failure.
var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrUnavailable = errors.New("unavailable")
)

// IsFact reports whether err is a definitive answer from the store rather
// than a failure to get one. Facts are never worth retrying.
func IsFact(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict)
}
