package interventions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// fakeRepo is an in-memory blob store that can be told to fail writes.
type fakeRepo struct {
	mu          sync.Mutex
	blobs       map[string][]byte
	failSaves   bool
	failDeletes bool
}

func newFakeRepo() *fakeRepo { return &fakeRepo{blobs: make(map[string][]byte)} }

func (r *fakeRepo) Load(ctx context.Context, key string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.blobs[key]
	if !ok {
		return nil, domain.ErrBlobNotFound
	}
	return v, nil
}

func (r *fakeRepo) Save(ctx context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaves {
		return errors.New("disk full")
	}
	r.blobs[key] = value
	return nil
}

func (r *fakeRepo) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failDeletes {
		return errors.New("read-only filesystem")
	}
	delete(r.blobs, key)
	return nil
}

func (r *fakeRepo) Ping(ctx context.Context) error { return nil }
func (r *fakeRepo) Close() error                   { return nil }

func newTestLog(repo domain.Repository, now func() time.Time) *Log {
	l := NewLog(repo)
	l.now = now
	n := 0
	l.newID = func() string {
		n++
		return fmt.Sprintf("iv-%d", n)
	}
	return l
}

func TestLogAppend(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	l := newTestLog(newFakeRepo(), func() time.Time { return base })

	e1, err := l.Append(ctx, "NIC-2025-1000", domain.StatusConfirmedFraud)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	e2, err := l.Append(ctx, "NIC-2025-1001", domain.StatusLegitimate)
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if !e1.IsCorrect {
		t.Error("confirmed fraud entry should be marked correct")
	}
	if e2.IsCorrect {
		t.Error("legitimate entry should not be marked correct")
	}
	if e1.ID == e2.ID {
		t.Error("entry ids must be unique")
	}

	entries := l.Entries()
	if len(entries) != 2 || entries[0].CaseID != "NIC-2025-1000" {
		t.Errorf("expected chronological entries, got %+v", entries)
	}

	recent := l.Recent(0)
	if recent[0].CaseID != "NIC-2025-1001" {
		t.Errorf("expected newest first, got %+v", recent)
	}
	if got := l.Recent(1); len(got) != 1 || got[0].ID != e2.ID {
		t.Errorf("expected only newest entry, got %+v", got)
	}
}

func TestLogTimestampsNeverGoBackwards(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	clock := []time.Time{base, base.Add(-time.Hour), base.Add(time.Minute)}
	i := 0
	l := newTestLog(newFakeRepo(), func() time.Time {
		ts := clock[i]
		i++
		return ts
	})

	for range clock {
		if _, err := l.Append(ctx, "NIC-2025-1000", domain.StatusLegitimate); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries := l.Entries()
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Errorf("entry %d went backwards: %s < %s", i, entries[i].Timestamp, entries[i-1].Timestamp)
		}
	}
	if !entries[1].Timestamp.Equal(base) {
		t.Errorf("expected clamped timestamp %s, got %s", base, entries[1].Timestamp)
	}
}

func TestLogPersistenceFailureKeepsEntry(t *testing.T) {
	repo := newFakeRepo()
	repo.failSaves = true
	l := newTestLog(repo, time.Now)

	entry, err := l.Append(context.Background(), "NIC-2025-1000", domain.StatusConfirmedFraud)
	if !domain.IsPersistenceError(err) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if entry.CaseID != "NIC-2025-1000" {
		t.Errorf("expected entry to be returned, got %+v", entry)
	}
	if l.Len() != 1 {
		t.Errorf("expected entry to stay in memory, got %d entries", l.Len())
	}
}

func TestLogLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	l := newTestLog(repo, time.Now)

	for _, s := range []domain.Status{domain.StatusConfirmedFraud, domain.StatusLegitimate, domain.StatusConfirmedFraud} {
		if _, err := l.Append(ctx, "NIC-2025-1003", s); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	restored := NewLog(repo)
	if err := restored.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(l.Entries(), restored.Entries()); diff != "" {
		t.Errorf("log mismatch after reload (-want +got):\n%s", diff)
	}
}

func TestLogLoadMissingBlob(t *testing.T) {
	l := NewLog(newFakeRepo())
	if err := l.Load(context.Background()); err != nil {
		t.Fatalf("missing blob should not be an error: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty log, got %d entries", l.Len())
	}
}

func TestLogSummaryAndReset(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	l := newTestLog(repo, time.Now)

	l.Append(ctx, "a", domain.StatusConfirmedFraud)
	l.Append(ctx, "b", domain.StatusConfirmedFraud)
	l.Append(ctx, "c", domain.StatusLegitimate)

	want := domain.InterventionSummary{Total: 3, ConfirmedFraud: 2, Legitimate: 1}
	if got := l.Summary(); got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}

	if err := l.Reset(ctx); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if l.Len() != 0 {
		t.Errorf("expected empty log after reset, got %d", l.Len())
	}
	if _, err := repo.Load(ctx, domain.KeyInterventions); !errors.Is(err, domain.ErrBlobNotFound) {
		t.Errorf("expected persisted log to be removed, got %v", err)
	}
}

func TestLogResetDeleteFailureKeepsLog(t *testing.T) {
	ctx := context.Background()
	repo := newFakeRepo()
	l := newTestLog(repo, time.Now)

	l.Append(ctx, "a", domain.StatusConfirmedFraud)
	l.Append(ctx, "b", domain.StatusLegitimate)

	repo.failDeletes = true
	err := l.Reset(ctx)
	var perr *domain.PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PersistenceError, got %v", err)
	}
	if l.Len() != 2 {
		t.Errorf("expected log to keep 2 entries, got %d", l.Len())
	}

	// A restart must reload what memory still holds.
	reloaded := newTestLog(repo, time.Now)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if diff := cmp.Diff(l.Entries(), reloaded.Entries()); diff != "" {
		t.Errorf("memory and persisted log diverged (-memory +persisted):\n%s", diff)
	}
}
