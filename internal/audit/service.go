// Package audit orchestrates ingestion and adjudication: it drives the
// Analysis Service client, the ingestion adapter, the case store and the
// intervention log, and announces each state change on the event bus.
package audit

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/casestore"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/interventions"
)

// BatchStatusTTL is how long batch status records are kept.
const BatchStatusTTL = 24 * time.Hour

// IngestResult describes a completed ingestion.
type IngestResult struct {
	Version   casestore.Version         `json:"version"`
	CaseCount int                       `json:"caseCount"`
	Stats     domain.StatisticsSnapshot `json:"stats"`
	Persisted bool                      `json:"persisted"`
}

// AdjudicationResult describes an applied adjudication.
type AdjudicationResult struct {
	Entry     domain.InterventionEntry `json:"entry"`
	Previous  domain.Status            `json:"previous"`
	Case      domain.Case              `json:"case"`
	Persisted bool                     `json:"persisted"`
}

// Service is the write side of Kestrel.
type Service struct {
	store    *casestore.Store
	log      *interventions.Log
	analyzer ingest.Analyzer
	adapter  *ingest.Adapter
	cache    domain.Cache
	bus      domain.EventBus
	now      func() time.Time
}

// NewService wires the audit service. cache and bus may be nil; without a
// cache asynchronous batches are unavailable, without a bus no events are
// published.
func NewService(store *casestore.Store, log *interventions.Log, analyzer ingest.Analyzer, adapter *ingest.Adapter, c domain.Cache, b domain.EventBus) *Service {
	return &Service{
		store:    store,
		log:      log,
		analyzer: analyzer,
		adapter:  adapter,
		cache:    c,
		bus:      b,
		now:      time.Now,
	}
}

// Store returns the case store the service writes to.
func (s *Service) Store() *casestore.Store { return s.store }

// Log returns the intervention log.
func (s *Service) Log() *interventions.Log { return s.log }

// IngestFile sends a batch file to the Analysis Service and replaces the case
// collection with the scored result. Nothing changes unless both the call and
// the adaptation succeed.
func (s *Service) IngestFile(ctx context.Context, filename string, content io.Reader) (IngestResult, error) {
	if s.analyzer == nil {
		return IngestResult{}, &domain.TransportError{Op: "analyze", Err: errors.New("no analysis service configured")}
	}
	resp, err := s.analyzer.Analyze(ctx, filename, content)
	if err != nil {
		return IngestResult{}, err
	}
	return s.IngestResponse(ctx, resp)
}

// IngestResponse replaces the case collection with an already obtained
// Analysis Service response. A persistence failure still returns a result:
// the replacement is live, Persisted is false and the error is returned.
func (s *Service) IngestResponse(ctx context.Context, resp *domain.AnalysisResponse) (IngestResult, error) {
	cases, stats, err := s.adapter.Ingest(resp)
	if err != nil {
		slog.Warn("analysis response rejected", "error", err)
		return IngestResult{}, err
	}

	version, err := s.store.ReplaceAll(ctx, cases, stats)
	if err != nil && !domain.IsPersistenceError(err) {
		return IngestResult{}, err
	}

	res := IngestResult{
		Version:   version,
		CaseCount: len(cases),
		Stats:     stats,
		Persisted: err == nil,
	}
	bus.Notify(ctx, s.bus, domain.TopicCasesReplaced, domain.CasesReplacedEvent{
		Generation: version.Generation,
		CaseCount:  res.CaseCount,
		Stats:      stats,
		Persisted:  res.Persisted,
	})
	return res, err
}

// Adjudicate applies an operator verdict to a case. status accepts the
// canonical and display spellings.
func (s *Service) Adjudicate(ctx context.Context, caseID, status string) (AdjudicationResult, error) {
	target, err := domain.ParseStatus(status)
	if err != nil {
		return AdjudicationResult{}, err
	}

	before, err := s.store.FindByID(caseID)
	if err != nil {
		return AdjudicationResult{}, err
	}

	entry, err := s.store.Transition(ctx, caseID, target)
	if err != nil && !domain.IsPersistenceError(err) {
		return AdjudicationResult{}, err
	}

	after, ferr := s.store.FindByID(caseID)
	if ferr != nil {
		// A concurrent replacement dropped the case; report the case as adjudicated.
		after = before
		after.Status = target
	}

	res := AdjudicationResult{
		Entry:     entry,
		Previous:  before.Status,
		Case:      after,
		Persisted: err == nil,
	}
	bus.Notify(ctx, s.bus, domain.TopicCaseAdjudicated, domain.CaseAdjudicatedEvent{
		Entry:     entry,
		Previous:  before.Status,
		Persisted: res.Persisted,
	})
	return res, err
}

// ResetHistory clears the intervention log.
func (s *Service) ResetHistory(ctx context.Context) error {
	if err := s.log.Reset(ctx); err != nil {
		return err
	}
	bus.Notify(ctx, s.bus, domain.TopicHistoryReset, struct {
		At time.Time `json:"at"`
	}{At: s.now().UTC()})
	return nil
}

// SubmitBatch queues a batch file for asynchronous ingestion.
func (s *Service) SubmitBatch(ctx context.Context, filename string, content []byte, traceID string) (domain.BatchStatus, error) {
	if s.bus == nil || s.cache == nil {
		return domain.BatchStatus{}, errors.New("asynchronous ingestion is not configured")
	}

	status := domain.BatchStatus{
		BatchID:   uuid.New().String(),
		State:     domain.BatchQueued,
		Filename:  filename,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.saveBatch(ctx, status); err != nil {
		return domain.BatchStatus{}, err
	}

	sub := domain.BatchSubmission{
		BatchID:  status.BatchID,
		Filename: filename,
		Content:  content,
		TraceID:  traceID,
	}
	if err := bus.PublishJSON(ctx, s.bus, domain.TopicBatchSubmitted, sub); err != nil {
		return domain.BatchStatus{}, fmt.Errorf("failed to queue batch: %w", err)
	}

	slog.Info("batch queued",
		"batch_id", status.BatchID,
		"filename", filename,
		"bytes", len(content),
		"trace_id", traceID,
	)
	return status, nil
}

// ProcessBatch runs a queued batch through IngestFile and records the outcome.
func (s *Service) ProcessBatch(ctx context.Context, sub domain.BatchSubmission) domain.BatchStatus {
	status := domain.BatchStatus{
		BatchID:   sub.BatchID,
		State:     domain.BatchRunning,
		Filename:  sub.Filename,
		UpdatedAt: s.now().UTC(),
	}
	if err := s.saveBatch(ctx, status); err != nil {
		slog.Warn("failed to record batch status", "batch_id", sub.BatchID, "error", err)
	}

	res, err := s.IngestFile(ctx, sub.Filename, bytes.NewReader(sub.Content))
	status.UpdatedAt = s.now().UTC()
	topic := domain.TopicBatchCompleted

	switch {
	case err == nil || domain.IsPersistenceError(err):
		status.State = domain.BatchCompleted
		status.CaseCount = res.CaseCount
		status.Generation = res.Version.Generation
		if err != nil {
			status.Warning = err.Error()
		}
	default:
		status.State = domain.BatchFailed
		status.Error = err.Error()
		topic = domain.TopicBatchFailed
	}

	if err := s.saveBatch(ctx, status); err != nil {
		slog.Warn("failed to record batch status", "batch_id", sub.BatchID, "error", err)
	}
	bus.Notify(ctx, s.bus, topic, status)

	slog.Info("batch processed",
		"batch_id", sub.BatchID,
		"state", status.State,
		"cases", status.CaseCount,
		"generation", status.Generation,
		"trace_id", sub.TraceID,
	)
	return status
}

// BatchStatus returns the last recorded status of a batch.
func (s *Service) BatchStatus(ctx context.Context, batchID string) (domain.BatchStatus, error) {
	if s.cache == nil {
		return domain.BatchStatus{}, fmt.Errorf("%w: %s", domain.ErrBatchNotFound, batchID)
	}
	status, ok, err := cache.GetJSON[domain.BatchStatus](ctx, s.cache, batchKey(batchID))
	if err != nil {
		return domain.BatchStatus{}, err
	}
	if !ok {
		return domain.BatchStatus{}, fmt.Errorf("%w: %s", domain.ErrBatchNotFound, batchID)
	}
	return status, nil
}

func (s *Service) saveBatch(ctx context.Context, status domain.BatchStatus) error {
	if s.cache == nil {
		return nil
	}
	return cache.SetJSON(ctx, s.cache, batchKey(status.BatchID), status, BatchStatusTTL)
}

func batchKey(id string) string {
	return cache.Key("batch", id)
}
