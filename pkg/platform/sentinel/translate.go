package sentinel

import (
	"errors"

	dErrors "prodir/pkg/domain-errors"
)

// ToDomain maps a store error onto the domain error taxonomy. Facts keep
// their meaning, coded errors pass through and anything else is an upstream
// failure of the store.
func ToDomain(err error, resource string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, resource+" not found")
	case errors.Is(err, ErrConflict):
		return dErrors.New(dErrors.CodeConflict, resource+" was modified concurrently")
	case isCoded(err):
		return err
	default:
		return dErrors.Wrap(err, dErrors.CodeUpstream, resource+" store unavailable")
	}
}

func isCoded(err error) bool {
	var coded *dErrors.Error
	return errors.As(err, &coded)
}
