package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/audit"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/casestore"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/filter"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/interventions"
	"github.com/opensource-finance/kestrel/internal/network"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/stats"
	"github.com/opensource-finance/kestrel/internal/worker"
)

const analysisBody = `{
	"results": [
		{"entity": "Sita Devi", "department": "Scholarship", "risk_score": 12, "amount": 4000},
		{"entity": "Ramesh Traders", "department": "Pension", "risk_score": 91, "amount": 250000,
		 "reasons": ["Duplicate beneficiary"], "rule_score": 80, "ml_score": 65, "network_score": 40,
		 "network_links": ["Linked via PHONE (98765) to 1 other entity(s)"]},
		{"entity": "Ramesh Traders & Co.", "department": "Pension", "risk_score": 78, "amount": 90000,
		 "network_links": ["Linked via PHONE (98765) to 1 other entity(s)"]}
	],
	"high_risk_count": 2,
	"money_at_risk": "₹3.40 L",
	"error_rate": "0.40%"
}`

type testEnv struct {
	server   *Server
	store    *casestore.Store
	analysis *httptest.Server
	bus      *bus.ChannelBus
	reply    func(w http.ResponseWriter)
}

// envOptions overrides the infrastructure newTestEnvWith would otherwise
// create, so several servers can share one repository or cache.
type envOptions struct {
	repo      *repository.MemoryRepository
	cache     domain.Cache
	maxUpload int64
}

// newTestEnv wires a server over in-memory infrastructure and an httptest
// Analysis Service whose reply can be swapped per test.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWith(t, envOptions{})
}

func newTestEnvWith(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	env := &testEnv{
		reply: func(w http.ResponseWriter) {
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, analysisBody)
		},
	}
	env.analysis = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != ingest.AnalyzePath {
			http.NotFound(w, r)
			return
		}
		env.reply(w)
	}))
	t.Cleanup(env.analysis.Close)

	cfg := domain.DefaultConfig()
	if opts.maxUpload > 0 {
		cfg.Server.MaxUploadBytes = opts.maxUpload
	}
	repo := opts.repo
	if repo == nil {
		repo = repository.NewMemory()
	}
	c := opts.cache
	if c == nil {
		c = cache.NewLRUCache(100)
	}
	engine, err := filter.NewEngine()
	if err != nil {
		t.Fatalf("failed to create filter engine: %v", err)
	}
	log := interventions.NewLog(repo)
	store := casestore.New(repo, log, engine)
	env.store = store
	env.bus = bus.NewChannelBus(100)
	t.Cleanup(func() { env.bus.Close() })

	client := ingest.NewClient(domain.AnalysisConfig{BaseURL: env.analysis.URL, Timeout: 5 * time.Second})
	svc := audit.NewService(store, log, client, ingest.NewAdapter(cfg.Ingest), c, env.bus)

	env.server = NewServer(cfg.Server, svc, repo, c, env.bus, time.Minute, "test-v1")
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rr := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) upload(t *testing.T, path, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("failed to create form file: %v", err)
	}
	io.WriteString(part, content)
	mw.Close()
	return e.do(t, http.MethodPost, path, &buf, mw.FormDataContentType())
}

func (e *testEnv) ingest(t *testing.T) {
	t.Helper()
	if rr := e.upload(t, "/ingest", "ledger.csv", "entity,amount\n"); rr.Code != http.StatusCreated {
		t.Fatalf("ingest failed: %d %s", rr.Code, rr.Body.String())
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodGet, "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	health := decode[map[string]any](t, rr)
	if health["status"] != "healthy" || health["version"] != "test-v1" {
		t.Errorf("unexpected health: %v", health)
	}
	if rr.Header().Get(TraceIDHeader) == "" || rr.Header().Get(RequestIDHeader) == "" {
		t.Error("expected trace and request id headers")
	}

	if rr := env.do(t, http.MethodGet, "/ready", nil, ""); rr.Code != http.StatusOK {
		t.Errorf("expected ready 200, got %d", rr.Code)
	}

	v := decode[casestore.Version](t, env.do(t, http.MethodGet, "/version", nil, ""))
	if v.Generation != 0 {
		t.Errorf("expected generation 0 before ingest, got %d", v.Generation)
	}
}

func TestIngestEndpoint(t *testing.T) {
	env := newTestEnv(t)

	t.Run("Success", func(t *testing.T) {
		rr := env.upload(t, "/ingest", "ledger.csv", "entity,amount\n")
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[IngestResponse](t, rr)
		if resp.CaseCount != 3 || !resp.Persisted || resp.Version.Generation != 1 || resp.Warning != "" {
			t.Errorf("unexpected response: %+v", resp)
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/ingest", bytes.NewBufferString("x"), "text/plain")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("StructuredErrorIs422", func(t *testing.T) {
		env.reply = func(w http.ResponseWriter) {
			io.WriteString(w, `{"error":"Invalid file","details":"Column 'amount' is missing"}`)
		}
		rr := env.upload(t, "/ingest", "bad.csv", "x")
		if rr.Code != http.StatusUnprocessableEntity {
			t.Fatalf("expected 422, got %d", rr.Code)
		}
		if got := decode[errorResponse](t, rr).Error; got != "Column 'amount' is missing" {
			t.Errorf("expected verbatim details, got %q", got)
		}
	})

	t.Run("TransportErrorIs502", func(t *testing.T) {
		env.reply = func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, `{"detail":"boom"}`)
		}
		if rr := env.upload(t, "/ingest", "x.csv", "x"); rr.Code != http.StatusBadGateway {
			t.Errorf("expected 502, got %d", rr.Code)
		}
	})

	t.Run("FailuresKeepPreviousCollection", func(t *testing.T) {
		v := decode[casestore.Version](t, env.do(t, http.MethodGet, "/version", nil, ""))
		if v.Generation != 1 {
			t.Errorf("expected generation 1 after failed ingests, got %d", v.Generation)
		}
	})
}

func TestIngestResultsEndpoint(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/ingest/results", bytes.NewBufferString(analysisBody), "application/json")
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr = env.do(t, http.MethodPost, "/ingest/results", bytes.NewBufferString(`{"error":"Processing failed"}`), "application/json")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/ingest/results", bytes.NewBufferString(`{`), "application/json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rr.Code)
	}
}

func TestCaseEndpoints(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t)

	t.Run("ListSortedByRisk", func(t *testing.T) {
		resp := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases", nil, ""))
		if resp.Count != 3 {
			t.Fatalf("expected 3 cases, got %d", resp.Count)
		}
		if resp.Cases[0].RiskScore != 91 || resp.Cases[2].RiskScore != 12 {
			t.Errorf("expected risk order, got %d..%d", resp.Cases[0].RiskScore, resp.Cases[2].RiskScore)
		}
	})

	t.Run("Search", func(t *testing.T) {
		resp := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases?q=ramesh", nil, ""))
		if resp.Count != 2 {
			t.Errorf("expected 2 matches, got %d", resp.Count)
		}
		resp = decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases?q=NIC-2025-1000", nil, ""))
		if resp.Count != 1 || resp.Cases[0].EntityName != "Sita Devi" {
			t.Errorf("expected id match, got %+v", resp.Cases)
		}
	})

	t.Run("Filter", func(t *testing.T) {
		path := "/cases?filter=" + urlEscape(`riskScore > 75 && program == "Pension"`)
		resp := decode[CaseListResponse](t, env.do(t, http.MethodGet, path, nil, ""))
		if resp.Count != 2 {
			t.Errorf("expected 2 filtered cases, got %d", resp.Count)
		}

		rr := env.do(t, http.MethodGet, "/cases?filter="+urlEscape("riskScore >"), nil, "")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for invalid filter, got %d", rr.Code)
		}
	})

	t.Run("Limit", func(t *testing.T) {
		resp := decode[CaseListResponse](t, env.do(t, http.MethodGet, "/cases?limit=1", nil, ""))
		if resp.Count != 1 || resp.Cases[0].RiskScore != 91 {
			t.Errorf("expected top case only, got %+v", resp.Cases)
		}
	})

	t.Run("GetCase", func(t *testing.T) {
		c := decode[domain.Case](t, env.do(t, http.MethodGet, "/cases/NIC-2025-1001", nil, ""))
		if c.EntityName != "Ramesh Traders" || c.RiskBreakdown.Rules != 80 || len(c.Evidence) != 1 {
			t.Errorf("unexpected case: %+v", c)
		}
		if rr := env.do(t, http.MethodGet, "/cases/NIC-2025-9999", nil, ""); rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("CaseClusters", func(t *testing.T) {
		got := decode[[]network.Summary](t, env.do(t, http.MethodGet, "/cases/NIC-2025-1001/clusters", nil, ""))
		if len(got) != 1 || got[0].ID != "98765" || got[0].Size != 2 {
			t.Errorf("unexpected clusters: %+v", got)
		}
		got = decode[[]network.Summary](t, env.do(t, http.MethodGet, "/cases/NIC-2025-1000/clusters", nil, ""))
		if len(got) != 0 {
			t.Errorf("expected no clusters, got %+v", got)
		}
	})
}

func TestAdjudicateEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t)

	post := func(id, body string) *httptest.ResponseRecorder {
		return env.do(t, http.MethodPost, "/cases/"+id+"/adjudicate", bytes.NewBufferString(body), "application/json")
	}

	rr := post("NIC-2025-1001", `{"status":"ConfirmedFraud"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	resp := decode[AdjudicateResponse](t, rr)
	if resp.Case.Status != domain.StatusConfirmedFraud || !resp.Entry.IsCorrect || resp.Previous != domain.StatusPending {
		t.Errorf("unexpected response: %+v", resp)
	}

	tests := []struct {
		name string
		id   string
		body string
		want int
	}{
		{"Reconfirm", "NIC-2025-1001", `{"status":"Confirmed Fraud"}`, http.StatusOK},
		{"Reverse", "NIC-2025-1001", `{"status":"Legitimate"}`, http.StatusConflict},
		{"BackToPending", "NIC-2025-1000", `{"status":"Pending"}`, http.StatusConflict},
		{"UnknownStatus", "NIC-2025-1000", `{"status":"Suspicious"}`, http.StatusBadRequest},
		{"MissingStatus", "NIC-2025-1000", `{}`, http.StatusBadRequest},
		{"BadJSON", "NIC-2025-1000", `{`, http.StatusBadRequest},
		{"UnknownCase", "NIC-2025-9999", `{"status":"Legitimate"}`, http.StatusNotFound},
		{"Legitimate", "NIC-2025-1000", `{"status":"Legitimate"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := post(tt.id, tt.body); rr.Code != tt.want {
				t.Errorf("expected %d, got %d: %s", tt.want, rr.Code, rr.Body.String())
			}
		})
	}

	t.Run("History", func(t *testing.T) {
		entries := decode[[]domain.InterventionEntry](t, env.do(t, http.MethodGet, "/interventions", nil, ""))
		if len(entries) != 3 {
			t.Fatalf("expected 3 entries, got %d", len(entries))
		}
		if entries[0].CaseID != "NIC-2025-1000" || entries[0].IsCorrect {
			t.Errorf("expected newest first, got %+v", entries[0])
		}

		limited := decode[[]domain.InterventionEntry](t, env.do(t, http.MethodGet, "/interventions?limit=1", nil, ""))
		if len(limited) != 1 {
			t.Errorf("expected 1 entry, got %d", len(limited))
		}

		summary := decode[domain.InterventionSummary](t, env.do(t, http.MethodGet, "/interventions/summary", nil, ""))
		if summary.Total != 3 || summary.ConfirmedFraud != 2 || summary.Legitimate != 1 {
			t.Errorf("unexpected summary: %+v", summary)
		}

		if rr := env.do(t, http.MethodDelete, "/interventions", nil, ""); rr.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rr.Code)
		}
		entries = decode[[]domain.InterventionEntry](t, env.do(t, http.MethodGet, "/interventions", nil, ""))
		if len(entries) != 0 {
			t.Errorf("expected empty history after reset, got %d", len(entries))
		}
	})
}

func TestStatsEndpoints(t *testing.T) {
	env := newTestEnv(t)

	// Before any ingestion the headline falls back.
	h := decode[stats.Headline](t, env.do(t, http.MethodGet, "/stats/headline", nil, ""))
	if h.MoneyAtRisk != stats.FallbackMoneyAtRisk || h.Sources.MoneyAtRisk != stats.SourceFallback {
		t.Errorf("expected fallback headline, got %+v", h)
	}

	env.ingest(t)

	h = decode[stats.Headline](t, env.do(t, http.MethodGet, "/stats/headline", nil, ""))
	if h.HighRisk != 2 || h.MoneyAtRisk != "₹3.40 L" || h.FalsePositiveRate != "0.40%" {
		t.Errorf("expected ingested headline, got %+v", h)
	}

	phases := decode[[]stats.PhasePoint](t, env.do(t, http.MethodGet, "/stats/phases", nil, ""))
	if len(phases) != 2 || phases[0].Name != "Jan" {
		t.Errorf("expected fallback phases for 3 cases, got %+v", phases)
	}

	programs := decode[[]stats.ProgramShare](t, env.do(t, http.MethodGet, "/stats/programs", nil, ""))
	if len(programs) != 2 || programs[0].Name != "Scholarship" || programs[1].Value != 2 {
		t.Errorf("unexpected programs: %+v", programs)
	}

	status := decode[[]stats.StatusCount](t, env.do(t, http.MethodGet, "/stats/status", nil, ""))
	if status[0].Status != domain.StatusPending || status[0].Count != 3 {
		t.Errorf("unexpected status breakdown: %+v", status)
	}

	clusters := decode[[]network.Summary](t, env.do(t, http.MethodGet, "/network/clusters", nil, ""))
	if len(clusters) != 1 || clusters[0].Type != "PHONE" || clusters[0].Exposure != 340000 {
		t.Errorf("unexpected clusters: %+v", clusters)
	}
}

func TestDashboardFollowsAdjudication(t *testing.T) {
	env := newTestEnv(t)
	env.ingest(t)

	d := decode[DashboardResponse](t, env.do(t, http.MethodGet, "/dashboard", nil, ""))
	if d.CaseCount != 3 || d.Superseded || len(d.Clusters) != 1 || d.Version.Generation != 1 {
		t.Errorf("unexpected dashboard: %+v", d)
	}

	env.do(t, http.MethodPost, "/cases/NIC-2025-1002/adjudicate", bytes.NewBufferString(`{"status":"Legitimate"}`), "application/json")

	d = decode[DashboardResponse](t, env.do(t, http.MethodGet, "/dashboard", nil, ""))
	if d.Version.Revision != 1 {
		t.Errorf("expected revision 1, got %d", d.Version.Revision)
	}
	if d.Status[2].Status != domain.StatusLegitimate || d.Status[2].Count != 1 {
		t.Errorf("cached view must not survive a transition: %+v", d.Status)
	}
	if len(d.Interventions) != 1 || d.Decisions.Legitimate != 1 {
		t.Errorf("unexpected interventions: %+v %+v", d.Interventions, d.Decisions)
	}
}

func TestAsyncIngest(t *testing.T) {
	env := newTestEnv(t)

	w := worker.NewWorker(env.bus, env.server.Handler().svc)
	if err := w.Start(worker.Config{WorkerCount: 1}); err != nil {
		t.Fatalf("failed to start worker: %v", err)
	}
	defer w.Stop()

	rr := env.upload(t, "/ingest/async", "ledger.csv", "entity,amount\n")
	if rr.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rr.Code, rr.Body.String())
	}
	queued := decode[domain.BatchStatus](t, rr)
	if rr.Header().Get("Location") != "/ingest/batches/"+queued.BatchID {
		t.Errorf("unexpected location %q", rr.Header().Get("Location"))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		status := decode[domain.BatchStatus](t, env.do(t, http.MethodGet, "/ingest/batches/"+queued.BatchID, nil, ""))
		if status.State == domain.BatchCompleted {
			if status.CaseCount != 3 || status.Generation != 1 {
				t.Errorf("unexpected completion: %+v", status)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("batch did not complete, last state %s", status.State)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if rr := env.do(t, http.MethodGet, "/ingest/batches/unknown", nil, ""); rr.Code != http.StatusNotFound {
		t.Errorf("expected 404 for unknown batch, got %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodOptions, "/cases", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&domain.TransportError{Op: "analyze", Err: io.ErrUnexpectedEOF}, http.StatusBadGateway},
		{&domain.MalformedResponseError{Message: "bad"}, http.StatusUnprocessableEntity},
		{domain.ErrNotFound, http.StatusNotFound},
		{domain.ErrBatchNotFound, http.StatusNotFound},
		{&domain.TransitionError{From: domain.StatusLegitimate, To: domain.StatusConfirmedFraud}, http.StatusConflict},
		{domain.ErrInvalidStatus, http.StatusBadRequest},
		{domain.ErrInvalidFilter, http.StatusBadRequest},
		{io.EOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func urlEscape(s string) string { return url.QueryEscape(s) }

func TestViewsAreScopedToTheirStore(t *testing.T) {
	repo := repository.NewMemory()
	shared := cache.NewLRUCache(100)
	a := newTestEnvWith(t, envOptions{repo: repo, cache: shared})
	b := newTestEnvWith(t, envOptions{repo: repo, cache: shared})

	a.ingest(t)
	if got := decode[stats.Headline](t, a.do(t, http.MethodGet, "/stats/headline", nil, "")).HighRisk; got != 2 {
		t.Fatalf("expected high risk 2 on first server, got %d", got)
	}

	b.reply = func(w http.ResponseWriter) {
		io.WriteString(w, strings.Replace(analysisBody, `"high_risk_count": 2`, `"high_risk_count": 7`, 1))
	}
	b.ingest(t)

	va := decode[casestore.Version](t, a.do(t, http.MethodGet, "/version", nil, ""))
	vb := decode[casestore.Version](t, b.do(t, http.MethodGet, "/version", nil, ""))
	if va.Generation != vb.Generation {
		t.Fatalf("expected both servers at the same generation, got %d and %d", va.Generation, vb.Generation)
	}
	if va.Epoch == "" || va.Epoch == vb.Epoch {
		t.Errorf("expected distinct epochs, got %q and %q", va.Epoch, vb.Epoch)
	}

	if got := decode[stats.Headline](t, b.do(t, http.MethodGet, "/stats/headline", nil, "")).HighRisk; got != 7 {
		t.Errorf("expected second server to report its own high risk 7, got %d", got)
	}
	if got := decode[stats.Headline](t, a.do(t, http.MethodGet, "/stats/headline", nil, "")).HighRisk; got != 2 {
		t.Errorf("expected first server to keep high risk 2, got %d", got)
	}

	// A restart reloads generation 1 from the shared repository.
	restarted := newTestEnvWith(t, envOptions{repo: repo, cache: shared})
	if _, err := restarted.store.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v := restarted.store.Version(); v.Generation != va.Generation {
		t.Fatalf("expected reloaded generation %d, got %d", va.Generation, v.Generation)
	}
	if got := decode[stats.Headline](t, restarted.do(t, http.MethodGet, "/stats/headline", nil, "")).HighRisk; got != 7 {
		t.Errorf("expected restarted server to report persisted high risk 7, got %d", got)
	}
}

func TestOversizedBodies(t *testing.T) {
	env := newTestEnvWith(t, envOptions{maxUpload: 1024})
	big := strings.Repeat("a", 10<<10)

	for _, path := range []string{"/ingest", "/ingest/async"} {
		t.Run("Upload "+path, func(t *testing.T) {
			rr := env.upload(t, path, "ledger.csv", "entity,amount\n"+big)
			if rr.Code != http.StatusRequestEntityTooLarge {
				t.Errorf("expected 413, got %d: %s", rr.Code, rr.Body.String())
			}
		})
	}

	t.Run("UploadWithoutContentLength", func(t *testing.T) {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		part, err := mw.CreateFormFile("file", "ledger.csv")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		io.WriteString(part, big)
		mw.Close()

		req := httptest.NewRequest(http.MethodPost, "/ingest", io.NopCloser(&buf))
		req.ContentLength = -1
		req.Header.Set("Content-Type", mw.FormDataContentType())
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Results", func(t *testing.T) {
		body := `{"results": [], "details": "` + big + `"}`
		rr := env.do(t, http.MethodPost, "/ingest/results", strings.NewReader(body), "application/json")
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("MalformedResultsStay400", func(t *testing.T) {
		rr := env.do(t, http.MethodPost, "/ingest/results", strings.NewReader(`{"results": [`), "application/json")
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("Adjudicate", func(t *testing.T) {
		env.ingest(t)
		body := `{"status": "` + strings.Repeat("x", maxActionBytes) + `"}`
		rr := env.do(t, http.MethodPost, "/cases/NIC-2025-1001/adjudicate", strings.NewReader(body), "application/json")
		if rr.Code != http.StatusRequestEntityTooLarge {
			t.Errorf("expected 413, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}
