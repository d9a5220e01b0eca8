// Package worker ingests asynchronously submitted batches from the EventBus.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// DefaultQueue is the queue group ingestion workers join, so each batch is
// ingested by exactly one worker across all Kestrel nodes.
const DefaultQueue = "kestrel-ingest"

// BatchProcessor runs a submitted batch to completion. audit.Service
// implements it.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, sub domain.BatchSubmission) domain.BatchStatus
}

// Worker consumes TopicBatchSubmitted.
type Worker struct {
	bus       domain.EventBus
	processor BatchProcessor

	mu            sync.Mutex
	subscriptions []domain.Subscription
	inflight      sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// WorkerCount is the number of queue members started on this node.
	WorkerCount int

	// Queue overrides DefaultQueue.
	Queue string
}

// NewWorker creates a new async worker.
func NewWorker(b domain.EventBus, processor BatchProcessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       b,
		processor: processor,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes WorkerCount members to the ingestion queue.
func (w *Worker) Start(cfg Config) error {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.Queue == "" {
		cfg.Queue = DefaultQueue
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for i := 0; i < cfg.WorkerCount; i++ {
		sub, err := bus.SubscribeQueue(w.ctx, w.bus, domain.TopicBatchSubmitted, cfg.Queue, w.handleMessage)
		if err != nil {
			return fmt.Errorf("failed to start worker %d: %w", i, err)
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("workers started",
		"worker_count", cfg.WorkerCount,
		"queue", cfg.Queue,
		"topic", domain.TopicBatchSubmitted,
	)
	return nil
}

// handleMessage ingests one submitted batch.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	w.inflight.Add(1)
	defer w.inflight.Done()

	start := time.Now()

	sub, err := bus.Decode[domain.BatchSubmission](msg)
	if err != nil {
		return err
	}
	if sub.BatchID == "" {
		return fmt.Errorf("batch message %s has no batch id", msg.ID)
	}

	traceID := sub.TraceID
	if traceID == "" {
		traceID = msg.ID
	}

	slog.Debug("processing batch",
		"batch_id", sub.BatchID,
		"filename", sub.Filename,
		"trace_id", traceID,
	)

	// Detach from the subscription context: a batch that has started is
	// finished even while the worker stops.
	status := w.processor.ProcessBatch(context.WithoutCancel(ctx), sub)

	slog.Info("batch ingested",
		"batch_id", sub.BatchID,
		"state", status.State,
		"trace_id", traceID,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop unsubscribes all workers and waits for in-flight batches.
func (w *Worker) Stop() error {
	w.mu.Lock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.inflight.Wait()
	w.cancel()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
