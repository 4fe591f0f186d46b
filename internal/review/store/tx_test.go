package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
)

func TestShardedTx(t *testing.T) {
	t.Run("serializes work on one profile", func(t *testing.T) {
		tx := NewShardedTx(time.Second)
		id := domain.NewProfileID()
		counter := 0
		var wg sync.WaitGroup
		for range 100 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = tx.RunInTx(context.Background(), id, func(context.Context) error {
					v := counter
					time.Sleep(time.Microsecond)
					counter = v + 1
					return nil
				})
			}()
		}
		wg.Wait()
		assert.Equal(t, 100, counter)
	})

	t.Run("cancelled context aborts before running", func(t *testing.T) {
		tx := NewShardedTx(0)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		ran := false
		err := tx.RunInTx(ctx, domain.NewProfileID(), func(context.Context) error {
			ran = true
			return nil
		})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUpstream))
		assert.False(t, ran)
	})
}
