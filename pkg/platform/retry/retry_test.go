package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodir/pkg/platform/sentinel"
)

func TestRead(t *testing.T) {
	t.Run("transient failure is retried once", func(t *testing.T) {
		calls := 0
		v, err := Read(context.Background(), func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, errors.New("connection reset")
			}
			return 7, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 2, calls)
	})

	t.Run("never more than two attempts", func(t *testing.T) {
		calls := 0
		_, err := Read(context.Background(), func(context.Context) (int, error) {
			calls++
			return 0, errors.New("still down")
		})
		require.Error(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("facts are not retried", func(t *testing.T) {
		calls := 0
		_, err := Read(context.Background(), func(context.Context) (string, error) {
			calls++
			return "", fmt.Errorf("find profile: %w", sentinel.ErrNotFound)
		})
		require.ErrorIs(t, err, sentinel.ErrNotFound)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context is not retried", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		calls := 0
		_, err := Read(ctx, func(context.Context) (int, error) {
			calls++
			return 0, context.Canceled
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}
