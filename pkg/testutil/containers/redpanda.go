//go:build integration

package containers

import (
	"context"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcredpanda "github.com/testcontainers/testcontainers-go/modules/redpanda"
	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"
)

// RedpandaContainer wraps a testcontainers Redpanda broker, used as a
// Kafka-API-compatible stand-in for the outbox relay's production broker.
type RedpandaContainer struct {
	Container testcontainers.Container
	Brokers   []string
	Client    *kgo.Client
	Admin     *kadm.Client
}

// NewRedpandaContainer starts a Redpanda broker and an admin client for
// creating topics ahead of a relay test.
func NewRedpandaContainer(t *testing.T) *RedpandaContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcredpanda.Run(ctx, "redpandadata/redpanda:v24.2.7")
	if err != nil {
		t.Fatalf("failed to start redpanda container: %v", err)
	}

	brokers, err := container.KafkaSeedBroker(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get redpanda seed broker: %v", err)
	}

	client, err := kgo.NewClient(kgo.SeedBrokers(brokers))
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to create kafka client: %v", err)
	}

	return &RedpandaContainer{
		Container: container,
		Brokers:   []string{brokers},
		Client:    client,
		Admin:     kadm.NewClient(client),
	}
}

// CreateTopic creates topic with a single partition, for a relay test that
// needs somewhere to publish before asserting on consumed records.
func (r *RedpandaContainer) CreateTopic(ctx context.Context, topic string) error {
	_, err := r.Admin.CreateTopic(ctx, 1, 1, nil, topic)
	return err
}
