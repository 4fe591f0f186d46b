//go:build integration

package audit_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	"prodir/internal/audit"
	"prodir/pkg/domain"
	"prodir/pkg/testutil/containers"
)

func TestKafkaSinkDeliversEvents(t *testing.T) {
	rp := containers.GetManager().GetRedpanda(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	topic := "prodir.audit.test"
	sink, err := audit.NewKafkaSink(audit.KafkaConfig{Brokers: rp.Brokers, Topic: topic})
	require.NoError(t, err)
	defer sink.Close()
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1))
	require.NoError(t, sink.EnsureTopic(ctx, 1, 1), "ensuring an existing topic is a no-op")

	workerCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- audit.NewWorker(sink.Buffer(), sink, nil).Run(workerCtx) }()

	id := domain.NewProfileID()
	publisher := audit.NewPublisher(nil, sink)
	publisher.Emit(ctx, audit.Event{Action: audit.ActionProfileApproved, ProfileID: id, Role: domain.RoleAdmin, From: "pending", To: "adminApproved"})
	publisher.Emit(ctx, audit.Event{Action: audit.ActionProfilePublished, ProfileID: id, Role: domain.RoleSuperAdmin, From: "sentToSuperAdmin", To: "published"})

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(rp.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var got []audit.Event
	for len(got) < 2 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		require.Empty(t, fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) {
			assert.Equal(t, id.String(), string(r.Key))
			var e audit.Event
			require.NoError(t, json.Unmarshal(r.Value, &e))
			got = append(got, e)
		})
	}
	require.Len(t, got, 2)
	assert.Equal(t, audit.ActionProfileApproved, got[0].Action)
	assert.Equal(t, audit.ActionProfilePublished, got[1].Action)

	stop()
	require.NoError(t, <-done)
}
