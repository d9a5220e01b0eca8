package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/casestore"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/interventions"
	"github.com/opensource-finance/kestrel/internal/network"
)

// defaultMaxUpload applies when the server config leaves MaxUploadBytes unset.
const defaultMaxUpload = 32 << 20

// maxActionBytes bounds small JSON action bodies such as adjudications.
const maxActionBytes = 64 << 10

// Handler holds dependencies for API handlers.
type Handler struct {
	svc       *audit.Service
	store     *casestore.Store
	log       *interventions.Log
	repo      domain.Repository
	cache     domain.Cache
	bus       domain.EventBus
	viewTTL   time.Duration
	maxUpload int64
	version   string
}

// NewHandler creates a new API handler.
func NewHandler(svc *audit.Service, repo domain.Repository, cache domain.Cache, bus domain.EventBus, viewTTL time.Duration, maxUpload int64, version string) *Handler {
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	return &Handler{
		svc:       svc,
		store:     svc.Store(),
		log:       svc.Log(),
		repo:      repo,
		cache:     cache,
		bus:       bus,
		viewTTL:   viewTTL,
		maxUpload: maxUpload,
		version:   version,
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

// IngestResponse is returned by the ingestion endpoints.
type IngestResponse struct {
	audit.IngestResult
	Warning string `json:"warning,omitempty"`
}

// AdjudicateRequest is the request body for POST /cases/{id}/adjudicate.
type AdjudicateRequest struct {
	Status string `json:"status"`
}

// AdjudicateResponse is returned by POST /cases/{id}/adjudicate.
type AdjudicateResponse struct {
	audit.AdjudicationResult
	Warning string `json:"warning,omitempty"`
}

// CaseListResponse is returned by GET /cases.
type CaseListResponse struct {
	Version casestore.Version `json:"version"`
	Count   int               `json:"count"`
	Cases   []domain.Case     `json:"cases"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"ready": true,
		"cases": h.store.Len(),
	})
}

// Version returns the current store version.
func (h *Handler) Version(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.Version())
}

// Ingest handles POST /ingest: a multipart batch upload forwarded to the
// Analysis Service. The case collection is replaced on success.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	file, header, err := h.uploadedFile(w, r)
	if err != nil {
		writeBadBody(w, err, err.Error())
		return
	}
	defer file.Close()

	res, err := h.svc.IngestFile(r.Context(), header.Filename, file)
	h.writeIngest(w, res, err)
}

// IngestResults handles POST /ingest/results: an Analysis Service response
// posted directly, for replaying a saved batch.
func (h *Handler) IngestResults(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)

	var resp domain.AnalysisResponse
	if err := json.NewDecoder(r.Body).Decode(&resp); err != nil {
		writeBadBody(w, err, "invalid JSON request body")
		return
	}

	res, err := h.svc.IngestResponse(r.Context(), &resp)
	h.writeIngest(w, res, err)
}

func (h *Handler) writeIngest(w http.ResponseWriter, res audit.IngestResult, err error) {
	if err != nil && !domain.IsPersistenceError(err) {
		writeError(w, err)
		return
	}
	out := IngestResponse{IngestResult: res}
	if err != nil {
		out.Warning = err.Error()
	}
	writeJSON(w, http.StatusCreated, out)
}

// IngestAsync handles POST /ingest/async: the batch is queued for a worker.
func (h *Handler) IngestAsync(w http.ResponseWriter, r *http.Request) {
	file, header, err := h.uploadedFile(w, r)
	if err != nil {
		writeBadBody(w, err, err.Error())
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		writeBadBody(w, err, "failed to read uploaded file")
		return
	}

	status, err := h.svc.SubmitBatch(r.Context(), header.Filename, content, GetTraceID(r.Context()))
	if err != nil {
		slog.Error("failed to queue batch", "filename", header.Filename, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}

	w.Header().Set("Location", "/ingest/batches/"+status.BatchID)
	writeJSON(w, http.StatusAccepted, status)
}

// GetBatch handles GET /ingest/batches/{id}.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.BatchStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// uploadedFile extracts the "file" part of a multipart upload.
func (h *Handler) uploadedFile(w http.ResponseWriter, r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	if r.ContentLength > h.maxUpload {
		return nil, nil, &http.MaxBytesError{Limit: h.maxUpload}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, nil, fmt.Errorf("invalid multipart upload: %w", err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, nil, errors.New("multipart field \"file\" is required")
	}
	return file, header, nil
}

// ListCases handles GET /cases. q searches entity names and ids, filter is a
// CEL expression over case fields. Results are ordered by risk, highest first.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	snap := h.store.Snapshot()
	cases := snap.Cases

	if expr := r.URL.Query().Get("filter"); expr != "" {
		filtered, err := h.store.FilterCases(expr, cases)
		if err != nil {
			writeError(w, err)
			return
		}
		cases = filtered
	}
	cases = casestore.SearchCases(cases, r.URL.Query().Get("q"))

	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && limit > 0 && limit < len(cases) {
		cases = cases[:limit]
	}

	writeJSON(w, http.StatusOK, CaseListResponse{
		Version: snap.Version,
		Count:   len(cases),
		Cases:   cases,
	})
}

// GetCase handles GET /cases/{id}.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.store.FindByID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// CaseClusters handles GET /cases/{id}/clusters.
func (h *Handler) CaseClusters(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.store.FindByID(id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, network.Summarize(network.ClustersFor(h.store.GetAll(), id)))
}

// Adjudicate handles POST /cases/{id}/adjudicate.
func (h *Handler) Adjudicate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxActionBytes)

	var req AdjudicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadBody(w, err, "invalid JSON request body")
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "status is required"})
		return
	}

	res, err := h.svc.Adjudicate(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil && !domain.IsPersistenceError(err) {
		writeError(w, err)
		return
	}

	out := AdjudicateResponse{AdjudicationResult: res}
	if err != nil {
		out.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, out)
}

// ListInterventions handles GET /interventions, newest first.
func (h *Handler) ListInterventions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, h.log.Recent(limit))
}

// InterventionSummary handles GET /interventions/summary.
func (h *Handler) InterventionSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.log.Summary())
}

// ResetInterventions handles DELETE /interventions.
func (h *Handler) ResetInterventions(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ResetHistory(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var transport *domain.TransportError
	var malformed *domain.MalformedResponseError
	var tooLarge *http.MaxBytesError

	switch {
	case errors.As(err, &transport):
		return http.StatusBadGateway
	case errors.As(err, &malformed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrBatchNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrIllegalTransition):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidStatus), errors.Is(err, domain.ErrInvalidFilter):
		return http.StatusBadRequest
	case errors.As(err, &tooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeBadBody answers a request whose body could not be read: 413 when it
// exceeded the size limit, otherwise 400 with msg.
func writeBadBody(w http.ResponseWriter, err error, msg string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{
			Error: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit),
		})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}
