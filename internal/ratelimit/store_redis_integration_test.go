//go:build integration

package ratelimit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"prodir/pkg/testutil/containers"
)

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	rc := containers.GetManager().GetRedis(t)
	suite.Run(t, &StoreSuite{newStore: func() Store {
		if err := rc.FlushAll(context.Background()); err != nil {
			t.Fatalf("flush redis: %v", err)
		}
		return NewRedisStore(rc.Client)
	}})
}
