package lineage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Topic carries all lineage events. One partition is plenty: the channel is
// low-volume and per-registry ordering is preserved by keying on registry.
const Topic = "cell.lineage"

// KafkaSink publishes lineage events to a kafka topic.
type KafkaSink struct {
	client *kgo.Client
}

// NewKafkaSink connects to the given comma-separated brokers and makes sure
// the lineage topic exists.
func NewKafkaSink(ctx context.Context, brokers string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.DefaultProduceTopic(Topic),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	admin := kadm.NewClient(client)
	resp, err := admin.CreateTopic(ctx, 1, 1, nil, Topic)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("ensure lineage topic: %w", err)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		client.Close()
		return nil, fmt.Errorf("ensure lineage topic: %w", resp.Err)
	}

	return &KafkaSink{client: client}, nil
}

func (s *KafkaSink) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal lineage event: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(event.Registry),
		Value: payload,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce lineage event: %w", err)
	}
	return nil
}

// Close flushes and releases the kafka client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
