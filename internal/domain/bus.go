package domain

import (
	"context"
	"time"
)

// EventBus defines the interface for event-driven communication.
// Supports Go channels (community) or NATS (pro).
type EventBus interface {
	// Publish sends a message to a topic.
	Publish(ctx context.Context, topic string, payload []byte) error

	// Subscribe registers a handler for a topic.
	// Returns a subscription that can be used to unsubscribe.
	Subscribe(ctx context.Context, topic string, handler MessageHandler) (Subscription, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// MessageHandler processes incoming messages.
type MessageHandler func(ctx context.Context, msg *Message) error

// Message represents an event message.
type Message struct {
	ID        string            `json:"id"`
	Topic     string            `json:"topic"`
	Payload   []byte            `json:"payload"`
	Metadata  map[string]string `json:"metadata"`
	Timestamp int64             `json:"timestamp"`
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe stops receiving messages.
	Unsubscribe() error

	// Topic returns the subscribed topic.
	Topic() string
}

// EventBusConfig holds configuration for event bus initialization.
type EventBusConfig struct {
	// Type is the bus type: "channel" or "nats"
	Type string `yaml:"type" env:"KESTREL_BUS"`

	// Channel settings
	ChannelBufferSize int `yaml:"channel_buffer_size" env:"KESTREL_BUS_BUFFER"`

	// NATS settings
	NATSUrl           string `yaml:"nats_url" env:"KESTREL_NATS_URL"`
	NATSToken         string `yaml:"-" env:"KESTREL_NATS_TOKEN"`
	NATSMaxReconnects int    `yaml:"nats_max_reconnects" env:"KESTREL_NATS_MAX_RECONNECTS"`
	NATSReconnectWait int    `yaml:"nats_reconnect_wait" env:"KESTREL_NATS_RECONNECT_WAIT"` // seconds
}

// Topic names published by the audit service and consumed by the ingestion worker.
const (
	TopicBatchSubmitted  = "kestrel.batch.submitted"
	TopicBatchCompleted  = "kestrel.batch.completed"
	TopicBatchFailed     = "kestrel.batch.failed"
	TopicCasesReplaced   = "kestrel.cases.replaced"
	TopicCaseAdjudicated = "kestrel.case.adjudicated"
	TopicHistoryReset    = "kestrel.history.reset"
)

// BatchState is the lifecycle state of an asynchronously submitted batch.
type BatchState string

const (
	BatchQueued    BatchState = "queued"
	BatchRunning   BatchState = "running"
	BatchCompleted BatchState = "completed"
	BatchFailed    BatchState = "failed"
)

// BatchSubmission is the payload of TopicBatchSubmitted.
type BatchSubmission struct {
	BatchID  string `json:"batchId"`
	Filename string `json:"filename"`
	Content  []byte `json:"content"`
	TraceID  string `json:"traceId,omitempty"`
}

// BatchStatus is the recorded outcome of an asynchronously submitted batch.
type BatchStatus struct {
	BatchID    string     `json:"batchId"`
	State      BatchState `json:"state"`
	Filename   string     `json:"filename"`
	CaseCount  int        `json:"caseCount,omitempty"`
	Generation uint64     `json:"generation,omitempty"`
	Error      string     `json:"error,omitempty"`
	Warning    string     `json:"warning,omitempty"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// CasesReplacedEvent is the payload of TopicCasesReplaced.
type CasesReplacedEvent struct {
	Generation uint64             `json:"generation"`
	CaseCount  int                `json:"caseCount"`
	Stats      StatisticsSnapshot `json:"stats"`
	Persisted  bool               `json:"persisted"`
}

// CaseAdjudicatedEvent is the payload of TopicCaseAdjudicated.
type CaseAdjudicatedEvent struct {
	Entry     InterventionEntry `json:"entry"`
	Previous  Status            `json:"previous"`
	Persisted bool              `json:"persisted"`
}
