package api

import (
	"context"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/casestore"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/network"
	"github.com/opensource-finance/kestrel/internal/stats"
)

// recentInterventions is how many log entries the dashboard carries.
const recentInterventions = 10

// DashboardResponse bundles every derived view computed from one snapshot.
type DashboardResponse struct {
	Version       casestore.Version          `json:"version"`
	Superseded    bool                       `json:"superseded"`
	CaseCount     int                        `json:"caseCount"`
	Headline      stats.Headline             `json:"headline"`
	Phases        []stats.PhasePoint         `json:"phases"`
	Programs      []stats.ProgramShare       `json:"programs"`
	Status        []stats.StatusCount        `json:"status"`
	Clusters      []network.Summary          `json:"clusters"`
	Interventions []domain.InterventionEntry `json:"interventions"`
	Decisions     domain.InterventionSummary `json:"decisions"`
}

// view computes a derived view of a snapshot, memoised in the cache under the
// snapshot version. Cache failures only cost a recomputation.
func view[T any](ctx context.Context, h *Handler, name string, snap casestore.Snapshot, compute func() T) T {
	if h.cache == nil {
		return compute()
	}
	key := cache.Key("view", snap.Version.Key(), name)

	if v, ok, err := cache.GetJSON[T](ctx, h.cache, key); err != nil {
		slog.Debug("view cache read failed", "view", name, "error", err)
	} else if ok {
		return v
	}

	v := compute()
	if err := cache.SetJSON(ctx, h.cache, key, v, h.viewTTL); err != nil {
		slog.Debug("view cache write failed", "view", name, "error", err)
	}
	return v
}

func (h *Handler) headline(ctx context.Context, snap casestore.Snapshot) stats.Headline {
	return view(ctx, h, "headline", snap, func() stats.Headline {
		return stats.Headlines(snap.Cases, snap.Stats)
	})
}

func (h *Handler) phases(ctx context.Context, snap casestore.Snapshot) []stats.PhasePoint {
	return view(ctx, h, "phases", snap, func() []stats.PhasePoint {
		return stats.RiskPhases(snap.Cases)
	})
}

func (h *Handler) programs(ctx context.Context, snap casestore.Snapshot) []stats.ProgramShare {
	return view(ctx, h, "programs", snap, func() []stats.ProgramShare {
		return stats.ProgramDistribution(snap.Cases)
	})
}

func (h *Handler) statusCounts(ctx context.Context, snap casestore.Snapshot) []stats.StatusCount {
	return view(ctx, h, "status", snap, func() []stats.StatusCount {
		return stats.StatusBreakdown(snap.Cases)
	})
}

func (h *Handler) clusters(ctx context.Context, snap casestore.Snapshot) []network.Summary {
	return view(ctx, h, "clusters", snap, func() []network.Summary {
		return network.Summarize(network.Clusters(snap.Cases))
	})
}

// Headline handles GET /stats/headline.
func (h *Handler) Headline(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.headline(r.Context(), h.store.Snapshot()))
}

// Phases handles GET /stats/phases.
func (h *Handler) Phases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.phases(r.Context(), h.store.Snapshot()))
}

// Programs handles GET /stats/programs.
func (h *Handler) Programs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.programs(r.Context(), h.store.Snapshot()))
}

// StatusBreakdown handles GET /stats/status.
func (h *Handler) StatusBreakdown(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.statusCounts(r.Context(), h.store.Snapshot()))
}

// Clusters handles GET /network/clusters.
func (h *Handler) Clusters(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.clusters(r.Context(), h.store.Snapshot()))
}

// Dashboard handles GET /dashboard. All views are derived concurrently from a
// single snapshot; Superseded reports whether a replacement landed meanwhile.
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	resp := DashboardResponse{
		Version:       snap.Version,
		CaseCount:     len(snap.Cases),
		Interventions: h.log.Recent(recentInterventions),
		Decisions:     h.log.Summary(),
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error { resp.Headline = h.headline(ctx, snap); return nil })
	g.Go(func() error { resp.Phases = h.phases(ctx, snap); return nil })
	g.Go(func() error { resp.Programs = h.programs(ctx, snap); return nil })
	g.Go(func() error { resp.Status = h.statusCounts(ctx, snap); return nil })
	g.Go(func() error { resp.Clusters = h.clusters(ctx, snap); return nil })
	if err := g.Wait(); err != nil {
		writeError(w, err)
		return
	}

	resp.Superseded = h.store.Version().Generation != snap.Version.Generation
	writeJSON(w, http.StatusOK, resp)
}
