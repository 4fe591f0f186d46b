package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaConfig configures the Kafka sink.
type KafkaConfig struct {
	Brokers           []string
	Topic             string
	ClientID          string
	Partitions        int32
	ReplicationFactor int16
	BufferSize        int
	// OnDrop runs whenever a full buffer discards its oldest event.
	OnDrop func()
}

// KafkaSink queues events in a RingBuffer and a Worker ships them to a
// topic keyed by profile id, so per-profile order is kept within a partition.
type KafkaSink struct {
	client *kgo.Client
	topic  string
	buffer *RingBuffer
	onDrop func()
}

func NewKafkaSink(cfg KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka topic is required")
	}
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "prodir"
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ClientID(clientID),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client, topic: cfg.Topic, buffer: NewRingBuffer(cfg.BufferSize), onDrop: cfg.OnDrop}, nil
}

// EnsureTopic creates the audit topic when it does not exist yet.
func (s *KafkaSink) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	if partitions <= 0 {
		partitions = 1
	}
	if replication <= 0 {
		replication = 1
	}
	adm := kadm.NewClient(s.client)
	topics, err := adm.ListTopics(ctx, s.topic)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if topics.Has(s.topic) {
		return nil
	}
	resp, err := adm.CreateTopic(ctx, partitions, replication, nil, s.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", s.topic, err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", s.topic, resp.Err)
	}
	return nil
}

// Append queues the event without blocking on the broker.
func (s *KafkaSink) Append(_ context.Context, event Event) error {
	if s.buffer.Enqueue(event) && s.onDrop != nil {
		s.onDrop()
	}
	return nil
}

// WriteBatch produces the events synchronously.
func (s *KafkaSink) WriteBatch(ctx context.Context, events []Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		value, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: s.topic,
			Key:   []byte(e.ProfileID.String()),
			Value: value,
		})
	}
	return s.client.ProduceSync(ctx, records...).FirstErr()
}

// Buffer exposes the pending queue for the drain Worker.
func (s *KafkaSink) Buffer() *RingBuffer {
	return s.buffer
}

func (s *KafkaSink) Close() {
	s.client.Close()
}
