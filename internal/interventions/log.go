// Package interventions keeps the append-only record of adjudication actions.
package interventions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Log is the Intervention Log. Entries are kept in append order and the full
// log is written to the repository after every change.
type Log struct {
	mu      sync.RWMutex
	repo    domain.Repository
	entries []domain.InterventionEntry
	last    time.Time

	now   func() time.Time
	newID func() string
}

// NewLog creates an empty log persisted through repo.
func NewLog(repo domain.Repository) *Log {
	return &Log{
		repo:  repo,
		now:   time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

// Append records an intervention. The entry is kept even when the write to
// the repository fails; the failure is returned as *domain.PersistenceError.
func (l *Log) Append(ctx context.Context, caseID string, status domain.Status) (domain.InterventionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := l.now().UTC().Round(0)
	if ts.Before(l.last) {
		ts = l.last
	}
	l.last = ts

	entry := domain.InterventionEntry{
		ID:        l.newID(),
		CaseID:    caseID,
		Status:    status,
		Timestamp: ts,
		IsCorrect: status == domain.StatusConfirmedFraud,
	}

	next := make([]domain.InterventionEntry, len(l.entries), len(l.entries)+1)
	copy(next, l.entries)
	l.entries = append(next, entry)

	return entry, l.persistLocked(ctx)
}

// Entries returns all entries in chronological order.
func (l *Log) Entries() []domain.InterventionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries
}

// Recent returns up to n entries, newest first. n <= 0 returns all.
func (l *Log) Recent(n int) []domain.InterventionEntry {
	l.mu.RLock()
	entries := l.entries
	l.mu.RUnlock()

	if n <= 0 || n > len(entries) {
		n = len(entries)
	}
	out := make([]domain.InterventionEntry, 0, n)
	for i := len(entries) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, entries[i])
	}
	return out
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Summary counts entries by status.
func (l *Log) Summary() domain.InterventionSummary {
	l.mu.RLock()
	defer l.mu.RUnlock()

	s := domain.InterventionSummary{Total: len(l.entries)}
	for _, e := range l.entries {
		switch e.Status {
		case domain.StatusConfirmedFraud:
			s.ConfirmedFraud++
		case domain.StatusLegitimate:
			s.Legitimate++
		}
	}
	return s
}

// Load replaces the in-memory log with the persisted one.
// A missing blob leaves the log empty.
func (l *Log) Load(ctx context.Context) error {
	raw, err := l.repo.Load(ctx, domain.KeyInterventions)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load intervention log: %w", err)
	}

	var entries []domain.InterventionEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("failed to decode intervention log: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = entries
	l.last = time.Time{}
	for _, e := range entries {
		if e.Timestamp.After(l.last) {
			l.last = e.Timestamp
		}
	}
	slog.Debug("intervention log loaded", "entries", len(entries))
	return nil
}

// Reset clears the log and its persisted copy. When the persisted copy
// cannot be removed the in-memory log is left as it was, so memory never
// disagrees with what a restart would reload.
func (l *Log) Reset(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.repo.Delete(ctx, domain.KeyInterventions); err != nil {
		return &domain.PersistenceError{Key: domain.KeyInterventions, Err: err}
	}
	l.entries = nil
	return nil
}

func (l *Log) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(l.entries)
	if err != nil {
		return &domain.PersistenceError{Key: domain.KeyInterventions, Err: err}
	}
	if err := l.repo.Save(ctx, domain.KeyInterventions, raw); err != nil {
		slog.Warn("failed to persist intervention log", "error", err, "entries", len(l.entries))
		return &domain.PersistenceError{Key: domain.KeyInterventions, Err: err}
	}
	return nil
}
