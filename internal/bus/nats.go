package bus

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Header names carrying the message envelope. The payload itself travels
// as the raw NATS body, so other consumers can read the JSON directly.
const (
	headerMessageID = "Kestrel-Message-Id"
	headerTimestamp = "Kestrel-Timestamp"
	headerMetaPref  = "Kestrel-Meta-"
)

// NATSBus implements EventBus on a NATS connection. Pro tier.
type NATSBus struct {
	conn *nats.Conn

	mu   sync.Mutex
	subs map[string]*natsSubscription
}

type natsSubscription struct {
	bus   *NATSBus
	id    string
	topic string
	sub   *nats.Subscription
}

// NewNATSBus connects to the configured server, retrying the initial dial
// up to NATSMaxReconnects times.
func NewNATSBus(cfg domain.EventBusConfig) (*NATSBus, error) {
	if cfg.NATSUrl == "" {
		cfg.NATSUrl = nats.DefaultURL
	}
	if cfg.NATSMaxReconnects <= 0 {
		cfg.NATSMaxReconnects = 10
	}
	if cfg.NATSReconnectWait <= 0 {
		cfg.NATSReconnectWait = 5
	}
	wait := time.Duration(cfg.NATSReconnectWait) * time.Second

	var (
		conn *nats.Conn
		err  error
	)
	for attempt := 1; attempt <= cfg.NATSMaxReconnects; attempt++ {
		if conn, err = nats.Connect(cfg.NATSUrl, natsOptions(cfg, wait)...); err == nil {
			break
		}
		slog.Warn("nats dial failed",
			"url", cfg.NATSUrl,
			"attempt", attempt,
			"max_attempts", cfg.NATSMaxReconnects,
			"error", err,
		)
		if attempt < cfg.NATSMaxReconnects {
			time.Sleep(wait)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATSUrl, err)
	}

	slog.Info("nats connected", "url", conn.ConnectedUrl(), "server_id", conn.ConnectedServerId())
	return &NATSBus{conn: conn, subs: make(map[string]*natsSubscription)}, nil
}

func natsOptions(cfg domain.EventBusConfig, wait time.Duration) []nats.Option {
	opts := []nats.Option{
		nats.Name("kestrel"),
		nats.MaxReconnects(cfg.NATSMaxReconnects),
		nats.ReconnectWait(wait),
		nats.ReconnectBufSize(8 * 1024 * 1024),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			slog.Warn("nats disconnected", "error", err, "will_reconnect", !nc.IsClosed())
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			attrs := []any{"error", err}
			if sub != nil {
				attrs = append(attrs, "subject", sub.Subject, "queue", sub.Queue)
			}
			slog.Error("nats async error", attrs...)
		}),
	}
	if cfg.NATSToken != "" {
		opts = append(opts, nats.Token(cfg.NATSToken))
	}
	return opts
}

// Publish sends payload on the subject named by topic.
func (b *NATSBus) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := b.conn.PublishMsg(toNATSMsg(topic, payload, nil)); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe delivers every message on topic to handler.
func (b *NATSBus) Subscribe(ctx context.Context, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	sub, err := b.conn.Subscribe(topic, b.dispatch(ctx, handler))
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return b.track(topic, sub), nil
}

// QueueSubscribe joins a NATS queue group; each message reaches one member
// across every connected node.
func (b *NATSBus) QueueSubscribe(ctx context.Context, topic, queue string, handler domain.MessageHandler) (domain.Subscription, error) {
	sub, err := b.conn.QueueSubscribe(topic, queue, b.dispatch(ctx, handler))
	if err != nil {
		return nil, fmt.Errorf("failed to join queue %s on %s: %w", queue, topic, err)
	}
	return b.track(topic, sub), nil
}

func (b *NATSBus) dispatch(ctx context.Context, handler domain.MessageHandler) nats.MsgHandler {
	return func(m *nats.Msg) {
		msg, err := fromNATSMsg(m)
		if err != nil {
			slog.Error("dropping malformed nats message", "subject", m.Subject, "error", err)
			return
		}
		if err := handler(ctx, msg); err != nil {
			slog.Error("handler error", "topic", msg.Topic, "message_id", msg.ID, "error", err)
		}
	}
}

func (b *NATSBus) track(topic string, sub *nats.Subscription) *natsSubscription {
	s := &natsSubscription{bus: b, id: uuid.NewString(), topic: topic, sub: sub}
	b.mu.Lock()
	b.subs[s.id] = s
	b.mu.Unlock()
	return s
}

// Ping round-trips to the server.
func (b *NATSBus) Ping(ctx context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats not connected (status %s)", b.conn.Status())
	}
	return b.conn.FlushWithContext(ctx)
}

// Close drains the connection so in-flight handlers finish, then closes it.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	b.subs = make(map[string]*natsSubscription)
	b.mu.Unlock()

	if err := b.conn.Drain(); err != nil {
		b.conn.Close()
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}

// Stats returns the connection counters.
func (b *NATSBus) Stats() nats.Statistics {
	return b.conn.Stats()
}

func (s *natsSubscription) Unsubscribe() error {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
	return s.sub.Unsubscribe()
}

func (s *natsSubscription) Topic() string { return s.topic }

// toNATSMsg builds the wire message for a payload.
func toNATSMsg(topic string, payload []byte, metadata map[string]string) *nats.Msg {
	m := nats.NewMsg(topic)
	m.Data = payload
	m.Header.Set(headerMessageID, uuid.NewString())
	m.Header.Set(headerTimestamp, strconv.FormatInt(time.Now().UnixNano(), 10))
	for k, v := range metadata {
		m.Header.Set(headerMetaPref+k, v)
	}
	return m
}

// fromNATSMsg recovers the envelope. Messages published without our headers
// are accepted and given a fresh id.
func fromNATSMsg(m *nats.Msg) (*domain.Message, error) {
	msg := &domain.Message{
		ID:       m.Header.Get(headerMessageID),
		Topic:    m.Subject,
		Payload:  m.Data,
		Metadata: make(map[string]string),
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if ts := m.Header.Get(headerTimestamp); ts != "" {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad %s header %q: %w", headerTimestamp, ts, err)
		}
		msg.Timestamp = n
	}
	for k, vs := range m.Header {
		if name, ok := strings.CutPrefix(k, headerMetaPref); ok && len(vs) > 0 {
			msg.Metadata[name] = vs[0]
		}
	}
	return msg, nil
}
