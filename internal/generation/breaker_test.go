package generation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/circuit"
)

func TestGuarded(t *testing.T) {
	ctx := context.Background()
	unavailable := dErrors.Wrap(&ProviderError{StatusCode: 503, Transient: true}, dErrors.CodeUpstream, "generation provider unavailable")

	t.Run("opens after consecutive transient failures and fails fast", func(t *testing.T) {
		next := &scriptedGenerator{errs: []error{unavailable, unavailable}}
		g := NewGuarded(next, circuit.New("gemini", circuit.WithFailureThreshold(2)), nil)

		_, _ = g.Generate(ctx, "p")
		_, _ = g.Generate(ctx, "p")
		_, err := g.Generate(ctx, "p")

		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
		assert.Equal(t, 2, next.calls, "open circuit must not reach the provider")
	})

	t.Run("permanent errors do not trip the breaker", func(t *testing.T) {
		bad := &ProviderError{StatusCode: 400, Message: "bad prompt"}
		next := &scriptedGenerator{errs: []error{bad, bad, bad}}
		breaker := circuit.New("gemini", circuit.WithFailureThreshold(2))
		g := NewGuarded(next, breaker, nil)

		for range 3 {
			_, err := g.Generate(ctx, "p")
			require.Error(t, err)
		}
		assert.False(t, breaker.IsOpen())
		assert.Equal(t, 3, next.calls)
	})

	t.Run("success passes candidates through", func(t *testing.T) {
		g := NewGuarded(&scriptedGenerator{}, circuit.New("gemini"), nil)
		out, err := g.Generate(ctx, "p")
		require.NoError(t, err)
		assert.Len(t, out, 1)
	})
}
