package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// New creates a new event bus based on configuration.
// For Community tier: returns ChannelBus.
// For Pro tier: returns NATSBus.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// QueueSubscriber is implemented by buses that can spread a topic over a
// group of consumers, delivering each message to one member only.
type QueueSubscriber interface {
	QueueSubscribe(ctx context.Context, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error)
}

// SubscribeQueue joins queue when the bus supports load-balanced delivery and
// falls back to a plain subscription otherwise.
func SubscribeQueue(ctx context.Context, b domain.EventBus, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error) {
	if qs, ok := b.(QueueSubscriber); ok {
		return qs.QueueSubscribe(ctx, topic, queue, handler)
	}
	return b.Subscribe(ctx, topic, handler)
}

// PublishJSON encodes payload and publishes it to topic.
func PublishJSON(ctx context.Context, b domain.EventBus, topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", topic, err)
	}
	return b.Publish(ctx, topic, data)
}

// Notify publishes an event and only logs a failure. Events are advisory:
// the state change they describe has already been applied.
func Notify(ctx context.Context, b domain.EventBus, topic string, payload any) {
	if b == nil {
		return
	}
	if err := PublishJSON(ctx, b, topic, payload); err != nil {
		slog.Warn("failed to publish event", "topic", topic, "error", err)
	}
}

// Decode unmarshals a message payload.
func Decode[T any](msg *domain.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("failed to decode %s message %s: %w", msg.Topic, msg.ID, err)
	}
	return v, nil
}
