package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"murmur/chat-server/models"
	"murmur/chat-server/utils"
)

// TransitionSink receives presence transitions delivered to this process.
type TransitionSink func(models.PresenceTransition)

// PresenceBroadcaster fans presence transitions out to every process through
// the shared pub/sub channel. Delivery is at-most-once: there is no ordering
// guarantee across publishers and no delivery to processes that are
// disconnected at publish time.
type PresenceBroadcaster struct {
	pub    *redis.Client
	sub    *redis.Client
	logger *utils.Logger
}

func NewPresenceBroadcaster(pub, sub *redis.Client, logger *utils.Logger) *PresenceBroadcaster {
	return &PresenceBroadcaster{
		pub:    pub,
		sub:    sub,
		logger: logger,
	}
}

// Publish serializes the transition onto the presence channel. Zero current
// subscribers is worth a warning but is not an error; presence is a
// best-effort signal.
func (pb *PresenceBroadcaster) Publish(ctx context.Context, transition models.PresenceTransition) error {
	payload, err := json.Marshal(transition)
	if err != nil {
		return fmt.Errorf("failed to marshal presence transition: %w", err)
	}

	receivers, err := pb.pub.Publish(ctx, presenceChannel, payload).Result()
	if err != nil {
		return fmt.Errorf("failed to publish presence transition: %w", err)
	}

	if receivers == 0 {
		pb.logger.Warn("No subscribers received presence transition",
			"user", transition.Username, "status", transition.Status)
	} else {
		pb.logger.Debug("Published presence transition",
			"user", transition.Username, "status", transition.Status, "receivers", receivers)
	}
	return nil
}

// Subscribe establishes this process's subscription to the presence channel
// and invokes sink once per received message until ctx is cancelled.
// Malformed payloads are dropped and logged; they never stop the
// subscription.
func (pb *PresenceBroadcaster) Subscribe(ctx context.Context, sink TransitionSink) error {
	pubsub := pb.sub.Subscribe(ctx, presenceChannel)

	// Confirm the subscription before returning so a publish immediately
	// after Subscribe is not lost.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("failed to subscribe to presence channel: %w", err)
	}

	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var transition models.PresenceTransition
				if err := json.Unmarshal([]byte(msg.Payload), &transition); err != nil {
					pb.logger.Warn("Dropping malformed presence payload",
						"payload", msg.Payload, "error", err)
					continue
				}
				sink(transition)
			}
		}
	}()

	pb.logger.Info("Subscribed to presence channel", "channel", presenceChannel)
	return nil
}
