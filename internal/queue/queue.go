// Package queue provides the Pub/Sub-backed run queue. The in-memory
// variant for local development lives in the memory subpackage; both satisfy
// the discovery.Queue interface.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.uber.org/zap"

	"github.com/leadscout/leadscout/internal/discovery"
)

// PubSubConfig names the Pub/Sub resources the queue uses.
type PubSubConfig struct {
	ProjectID    string
	Topic        string
	Subscription string
	// Buffer is the local hand-off capacity between the receive loop and
	// Dequeue callers. Default 64.
	Buffer int
}

// PubSub is a discovery.Queue backed by a Pub/Sub topic and subscription.
// Enqueue publishes synchronously so callers learn about broker failures;
// Dequeue pulls from a background receive loop started on first use.
type PubSub struct {
	client *pubsub.Client
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	once    sync.Once
	items   chan discovery.QueueItem
	recvCtx context.Context
	cancel  context.CancelFunc
}

// NewPubSub connects to Pub/Sub and verifies the topic exists. It
// authenticates using Application Default Credentials.
func NewPubSub(ctx context.Context, cfg PubSubConfig, logger *zap.Logger) (*PubSub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Topic(cfg.Topic)
	exists, err := topic.Exists(ctx)
	if err != nil {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("check pubsub topic %q: %w", cfg.Topic, err)
	}
	if !exists {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close pubsub client after topic check failure", zap.Error(closeErr))
		}
		return nil, fmt.Errorf("pubsub topic %q does not exist in project %q", cfg.Topic, cfg.ProjectID)
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 64
	}
	recvCtx, cancel := context.WithCancel(context.Background())
	return &PubSub{
		client:  client,
		topic:   topic,
		sub:     client.Subscription(cfg.Subscription),
		logger:  logger,
		items:   make(chan discovery.QueueItem, buffer),
		recvCtx: recvCtx,
		cancel:  cancel,
	}, nil
}

// Enqueue publishes the item and waits for the broker to acknowledge it.
func (q *PubSub) Enqueue(ctx context.Context, item discovery.QueueItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal queue item: %w", err)
	}
	result := q.topic.Publish(ctx, &pubsub.Message{Data: data})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish queue item: %w", err)
	}
	return nil
}

// Dequeue returns the next item from the subscription. The first call starts
// the receive loop; messages that fail to decode are acked and dropped so a
// poison message cannot wedge the subscription.
func (q *PubSub) Dequeue(ctx context.Context) (discovery.QueueItem, error) {
	q.once.Do(func() {
		go func() {
			err := q.sub.Receive(q.recvCtx, func(_ context.Context, msg *pubsub.Message) {
				var item discovery.QueueItem
				if err := json.Unmarshal(msg.Data, &item); err != nil {
					q.logger.Warn("drop undecodable queue message", zap.Error(err))
					msg.Ack()
					return
				}
				select {
				case q.items <- item:
					msg.Ack()
				case <-q.recvCtx.Done():
					msg.Nack()
				}
			})
			if err != nil && q.recvCtx.Err() == nil {
				q.logger.Error("pubsub receive loop exited", zap.Error(err))
			}
			close(q.items)
		}()
	})

	select {
	case <-ctx.Done():
		return discovery.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.items:
		if !ok {
			return discovery.QueueItem{}, fmt.Errorf("queue closed")
		}
		return item, nil
	}
}

// Close stops the receive loop and closes the client.
func (q *PubSub) Close() error {
	q.cancel()
	q.topic.Stop()
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("close pubsub client: %w", err)
	}
	return nil
}
