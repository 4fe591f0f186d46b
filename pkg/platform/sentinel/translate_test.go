package sentinel

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "prodir/pkg/domain-errors"
)

func TestToDomain(t *testing.T) {
	assert.NoError(t, ToDomain(nil, "profile"))
	assert.True(t, dErrors.HasCode(ToDomain(fmt.Errorf("wrapped: %w", ErrNotFound), "profile"), dErrors.CodeNotFound))
	assert.True(t, dErrors.HasCode(ToDomain(ErrConflict, "profile"), dErrors.CodeConflict))

	coded := dErrors.New(dErrors.CodeForbidden, "nope")
	assert.Equal(t, coded, ToDomain(coded, "profile"))

	driver := errors.New("connection reset by peer")
	out := ToDomain(driver, "profile")
	assert.True(t, dErrors.HasCode(out, dErrors.CodeUpstream))
	assert.ErrorIs(t, out, driver)
}
