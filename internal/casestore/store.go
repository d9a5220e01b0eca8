// Package casestore holds the authoritative in-memory case collection.
package casestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/filter"
	"github.com/opensource-finance/kestrel/internal/interventions"
)

// Version identifies a state of the store. Epoch is fixed for the lifetime
// of a Store; Generation changes on every full replacement; Revision changes
// on every status transition within it. Generations restart with every
// process, so only the full triple is unique.
type Version struct {
	Epoch      string `json:"epoch"`
	Generation uint64 `json:"generation"`
	Revision   uint64 `json:"revision"`
}

// Key returns a compact cache key fragment for the version. Keys from
// different stores never collide, even in a cache that outlives them.
func (v Version) Key() string {
	return fmt.Sprintf("%s.g%d.r%d", v.Epoch, v.Generation, v.Revision)
}

// Snapshot is an immutable view of the store. Callers must not modify Cases.
type Snapshot struct {
	Version Version
	Cases   []domain.Case
	Stats   domain.StatisticsSnapshot
}

type state struct {
	version Version
	cases   []domain.Case
	index   map[string]int
	stats   domain.StatisticsSnapshot
}

// Store is the Case Store. Mutations build a new state and swap it in, so
// readers always see either the old or the new collection in full.
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[state]

	epoch   string
	repo    domain.Repository
	log     *interventions.Log
	filters *filter.Engine
}

// New creates an empty store persisted through repo. Transitions are
// recorded in log.
func New(repo domain.Repository, log *interventions.Log, filters *filter.Engine) *Store {
	s := &Store{epoch: uuid.NewString(), repo: repo, log: log, filters: filters}
	s.current.Store(&state{
		version: Version{Epoch: s.epoch},
		index:   map[string]int{},
		stats:   domain.EmptyStatistics(),
	})
	return s
}

// Load restores cases and statistics from the repository. It reports whether
// a persisted case collection was found. Missing blobs leave the store empty.
func (s *Store) Load(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var cases []domain.Case
	found, err := s.loadBlob(ctx, domain.KeyCases, &cases)
	if err != nil {
		return false, err
	}
	stats := domain.EmptyStatistics()
	if _, err := s.loadBlob(ctx, domain.KeyStats, &stats); err != nil {
		return false, err
	}

	prev := s.current.Load()
	next := newState(cases, stats, Version{Epoch: s.epoch, Generation: prev.version.Generation + 1})
	s.current.Store(next)

	slog.Info("case store loaded",
		"cases", len(next.cases),
		"generation", next.version.Generation,
		"found", found,
	)
	return found, nil
}

// ReplaceAll swaps the whole collection and its statistics. The new state is
// visible even when persisting fails; the failure is returned as
// *domain.PersistenceError.
func (s *Store) ReplaceAll(ctx context.Context, cases []domain.Case, stats domain.StatisticsSnapshot) (Version, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()
	next := newState(cases, stats, Version{Epoch: s.epoch, Generation: prev.version.Generation + 1})
	s.current.Store(next)

	slog.Info("case collection replaced",
		"cases", len(next.cases),
		"generation", next.version.Generation,
	)

	return next.version, s.saveCollection(ctx, next)
}

// Transition applies an adjudication to a case and records it in the
// intervention log. Re-applying a verdict the case already carries leaves the
// case unchanged but still appends an entry.
func (s *Store) Transition(ctx context.Context, id string, status domain.Status) (domain.InterventionEntry, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	prev := s.current.Load()
	i, ok := prev.index[id]
	if !ok {
		return domain.InterventionEntry{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	from := prev.cases[i].Status
	if !from.CanTransition(status) {
		return domain.InterventionEntry{}, &domain.TransitionError{CaseID: id, From: from, To: status}
	}

	cases := make([]domain.Case, len(prev.cases))
	copy(cases, prev.cases)
	cases[i].Status = status

	next := &state{
		version: Version{Epoch: s.epoch, Generation: prev.version.Generation, Revision: prev.version.Revision + 1},
		cases:   cases,
		index:   prev.index,
		stats:   prev.stats,
	}
	s.current.Store(next)

	err := s.save(ctx, domain.KeyCases, next.cases)
	entry, lerr := s.log.Append(ctx, id, status)
	if err == nil {
		err = lerr
	}

	slog.Info("case adjudicated",
		"case_id", id,
		"from", from,
		"to", status,
		"revision", next.version.Revision,
	)
	return entry, err
}

// GetAll returns the current collection. Callers must not modify it.
func (s *Store) GetAll() []domain.Case {
	return s.current.Load().cases
}

// Stats returns the statistics snapshot of the last ingestion.
func (s *Store) Stats() domain.StatisticsSnapshot {
	return s.current.Load().stats
}

// Version returns the current version.
func (s *Store) Version() Version {
	return s.current.Load().version
}

// Snapshot returns the current collection, statistics and version together.
func (s *Store) Snapshot() Snapshot {
	st := s.current.Load()
	return Snapshot{Version: st.version, Cases: st.cases, Stats: st.stats}
}

// Len returns the number of cases.
func (s *Store) Len() int {
	return len(s.current.Load().cases)
}

// FindByID returns the case with the given id, or domain.ErrNotFound.
func (s *Store) FindByID(id string) (domain.Case, error) {
	st := s.current.Load()
	i, ok := st.index[id]
	if !ok {
		return domain.Case{}, fmt.Errorf("%w: %s", domain.ErrNotFound, id)
	}
	return st.cases[i], nil
}

// Search returns cases whose entity name or id contains query (case
// insensitive), highest risk first. An empty query matches every case.
func (s *Store) Search(query string) []domain.Case {
	return SearchCases(s.GetAll(), query)
}

// Filter returns the cases selected by a CEL expression, in store order.
func (s *Store) Filter(expr string) ([]domain.Case, error) {
	return s.FilterCases(expr, s.GetAll())
}

// FilterCases applies a CEL expression to cases taken from an earlier
// Snapshot.
func (s *Store) FilterCases(expr string, cases []domain.Case) ([]domain.Case, error) {
	if s.filters == nil {
		return nil, fmt.Errorf("%w: filtering is not enabled", domain.ErrInvalidFilter)
	}
	return s.filters.Apply(expr, cases)
}

// SearchCases filters cases by query and orders them by risk score, highest
// first. Equal scores keep their original order.
func SearchCases(cases []domain.Case, query string) []domain.Case {
	q := strings.ToLower(strings.TrimSpace(query))
	out := make([]domain.Case, 0, len(cases))
	for _, c := range cases {
		if q == "" ||
			strings.Contains(strings.ToLower(c.EntityName), q) ||
			strings.Contains(strings.ToLower(c.ID), q) {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RiskScore > out[j].RiskScore
	})
	return out
}

func newState(cases []domain.Case, stats domain.StatisticsSnapshot, v Version) *state {
	owned := make([]domain.Case, len(cases))
	copy(owned, cases)

	index := make(map[string]int, len(owned))
	for i := range owned {
		if owned[i].Status == "" {
			owned[i].Status = domain.StatusPending
		}
		if _, dup := index[owned[i].ID]; dup {
			slog.Warn("duplicate case id, keeping first", "case_id", owned[i].ID)
			continue
		}
		index[owned[i].ID] = i
	}

	return &state{version: v, cases: owned, index: index, stats: stats}
}

// saveCollection writes cases and statistics together when the repository
// supports it, otherwise one after the other.
func (s *Store) saveCollection(ctx context.Context, st *state) error {
	batch, ok := s.repo.(domain.BatchSaver)
	if !ok {
		err := s.save(ctx, domain.KeyCases, st.cases)
		if serr := s.save(ctx, domain.KeyStats, st.stats); err == nil {
			err = serr
		}
		return err
	}

	blobs := make(map[string][]byte, 2)
	for key, v := range map[string]any{domain.KeyCases: st.cases, domain.KeyStats: st.stats} {
		raw, err := json.Marshal(v)
		if err != nil {
			return &domain.PersistenceError{Key: key, Err: err}
		}
		blobs[key] = raw
	}
	if err := batch.SaveAll(ctx, blobs); err != nil {
		slog.Warn("failed to persist collection", "error", err)
		return &domain.PersistenceError{Key: domain.KeyCases + "+" + domain.KeyStats, Err: err}
	}
	return nil
}

func (s *Store) save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return &domain.PersistenceError{Key: key, Err: err}
	}
	if err := s.repo.Save(ctx, key, raw); err != nil {
		slog.Warn("failed to persist", "key", key, "error", err)
		return &domain.PersistenceError{Key: key, Err: err}
	}
	return nil
}

func (s *Store) loadBlob(ctx context.Context, key string, v any) (bool, error) {
	raw, err := s.repo.Load(ctx, key)
	if errors.Is(err, domain.ErrBlobNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return true, nil
}
