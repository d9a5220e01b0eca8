// Load generator for exercising a running Kestrel server.
//
// Usage:
//
//	go run ./cmd/loadgen -url http://localhost:8080 -cases 5000 -workers 20
//
// This tool:
//  1. Generates a scored batch and replays it through POST /ingest/results
//  2. Adjudicates every case concurrently with a simulated reviewer whose
//     verdicts follow the risk score, while readers poll GET /dashboard
//  3. Compares the model's high-risk flag with the reviewer's verdicts and
//     reports precision, recall, latency and throughput
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/casestore"
	"github.com/opensource-finance/kestrel/internal/demo"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Metrics tracks load results.
type Metrics struct {
	TruePositives  int64 // high risk, confirmed fraud
	FalsePositives int64 // high risk, cleared
	TrueNegatives  int64 // low risk, cleared
	FalseNegatives int64 // low risk, confirmed fraud

	Adjudicated int64
	Rejected    int64 // 409 responses
	Errors      int64
	Reads       int64
	Superseded  int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (m *Metrics) observe(d time.Duration) {
	m.mu.Lock()
	m.latencies = append(m.latencies, d)
	m.mu.Unlock()
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	count := flag.Int("cases", 1000, "Number of cases to ingest")
	workers := flag.Int("workers", 10, "Number of concurrent adjudicators")
	readers := flag.Int("readers", 2, "Number of concurrent dashboard readers")
	seed := flag.Uint64("seed", 1, "Random seed")
	verbose := flag.Bool("verbose", false, "Print each adjudication")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║             KESTREL LOAD GENERATOR - Adjudication             ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nKestrel URL: %s\n", *baseURL)
	fmt.Printf("Cases:       %d\n", *count)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Readers:     %d\n", *readers)
	fmt.Println()

	client := &http.Client{Timeout: 30 * time.Second}

	if err := checkHealth(client, *baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run ./cmd/kestrel")
		os.Exit(1)
	}
	fmt.Println("✓ Kestrel is healthy")

	cases := demo.Generate(demo.Options{Count: *count, Prefix: "LOAD", Base: 0, Seed: *seed, Now: time.Now()})
	version, err := ingestBatch(client, *baseURL, toAnalysisResponse(cases))
	if err != nil {
		fmt.Printf("ERROR: ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Ingested %d cases (generation %d)\n", *count, version.Generation)

	ids, err := listCaseIDs(client, *baseURL)
	if err != nil {
		fmt.Printf("ERROR: failed to list cases: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nRunning adjudication with %d workers...\n", *workers)
	start := time.Now()
	metrics := run(client, *baseURL, ids, version.Generation, *workers, *readers, *seed, *verbose)
	printResults(metrics, time.Since(start))
}

func checkHealth(client *http.Client, baseURL string) error {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// toAnalysisResponse renders generated cases in the Analysis Service format.
func toAnalysisResponse(cases []domain.Case) domain.AnalysisResponse {
	resp := domain.AnalysisResponse{Results: make([]domain.AnalysisResult, len(cases))}
	for i, c := range cases {
		rules := float64(c.RiskBreakdown.Rules)
		ml := float64(c.RiskBreakdown.ML)
		net := float64(c.RiskBreakdown.Network)
		r := domain.AnalysisResult{
			Entity:       c.EntityName,
			Department:   c.Program,
			RiskScore:    float64(c.RiskScore),
			Amount:       float64(c.Amount),
			Reasons:      c.Reasons,
			RuleScore:    &rules,
			MLScore:      &ml,
			NetworkScore: &net,
		}
		for _, ev := range c.NetworkLinks() {
			r.NetworkLinks = append(r.NetworkLinks, ev.Value)
		}
		resp.Results[i] = r
		if c.IsHighRisk() {
			resp.HighRiskCount++
		}
	}
	return resp
}

func ingestBatch(client *http.Client, baseURL string, batch domain.AnalysisResponse) (casestore.Version, error) {
	body, err := json.Marshal(batch)
	if err != nil {
		return casestore.Version{}, err
	}
	resp, err := client.Post(baseURL+"/ingest/results", "application/json", bytes.NewReader(body))
	if err != nil {
		return casestore.Version{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(resp.Body)
		return casestore.Version{}, fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	var out struct {
		Version casestore.Version `json:"version"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return casestore.Version{}, err
	}
	return out.Version, nil
}

type caseRef struct {
	ID        string
	RiskScore int
}

func listCaseIDs(client *http.Client, baseURL string) ([]caseRef, error) {
	resp, err := client.Get(baseURL + "/cases")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		Cases []domain.Case `json:"cases"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	refs := make([]caseRef, len(out.Cases))
	for i, c := range out.Cases {
		refs[i] = caseRef{ID: c.ID, RiskScore: c.RiskScore}
	}
	return refs, nil
}

func run(client *http.Client, baseURL string, refs []caseRef, generation uint64, numWorkers, numReaders int, seed uint64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan caseRef, 100)
	done := make(chan struct{})
	var wg, rg sync.WaitGroup

	// Dashboard readers
	for i := 0; i < numReaders; i++ {
		rg.Add(1)
		go func() {
			defer rg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				var d struct {
					Version    casestore.Version `json:"version"`
					Superseded bool              `json:"superseded"`
				}
				if err := getJSON(client, baseURL+"/dashboard", &d); err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					continue
				}
				atomic.AddInt64(&metrics.Reads, 1)
				if d.Superseded || d.Version.Generation != generation {
					atomic.AddInt64(&metrics.Superseded, 1)
				}
			}
		}()
	}

	// Adjudicators
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(worker uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, worker))

			for ref := range work {
				// The reviewer confirms fraud with probability riskScore/100.
				fraud := rng.IntN(100) < ref.RiskScore
				verdict := domain.StatusLegitimate
				if fraud {
					verdict = domain.StatusConfirmedFraud
				}

				start := time.Now()
				code, err := adjudicate(client, baseURL, ref.ID, verdict)
				metrics.observe(time.Since(start))

				switch {
				case err != nil:
					atomic.AddInt64(&metrics.Errors, 1)
					continue
				case code == http.StatusConflict:
					// Seeded with a verdict already.
					atomic.AddInt64(&metrics.Rejected, 1)
					continue
				case code != http.StatusOK:
					atomic.AddInt64(&metrics.Errors, 1)
					continue
				}
				atomic.AddInt64(&metrics.Adjudicated, 1)

				flagged := ref.RiskScore > domain.HighRiskThreshold
				switch {
				case flagged && fraud:
					atomic.AddInt64(&metrics.TruePositives, 1)
				case flagged && !fraud:
					atomic.AddInt64(&metrics.FalsePositives, 1)
				case !flagged && !fraud:
					atomic.AddInt64(&metrics.TrueNegatives, 1)
				default:
					atomic.AddInt64(&metrics.FalseNegatives, 1)
				}

				if verbose {
					fmt.Printf("%-12s | risk %3d | %s\n", ref.ID, ref.RiskScore, verdict)
				}
			}
		}(uint64(i))
	}

	for _, ref := range refs {
		work <- ref
	}
	close(work)
	wg.Wait()

	close(done)
	rg.Wait()

	return metrics
}

func adjudicate(client *http.Client, baseURL, id string, status domain.Status) (int, error) {
	body, _ := json.Marshal(map[string]string{"status": string(status)})
	resp, err := client.Post(baseURL+"/cases/"+id+"/adjudicate", "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func getJSON(client *http.Client, url string, v any) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(v)
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	i := int(float64(len(sorted)-1) * p)
	return sorted[i]
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                         LOAD RESULTS                          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 ADJUDICATION\n")
	fmt.Printf("   Adjudicated:      %d\n", m.Adjudicated)
	fmt.Printf("   Rejected (409):   %d\n", m.Rejected)
	fmt.Printf("   Errors:           %d\n", m.Errors)
	fmt.Printf("   Dashboard reads:  %d (%d superseded)\n", m.Reads, m.Superseded)

	fmt.Printf("\n📈 MODEL VS REVIEWER\n")
	fmt.Println("                        Reviewer")
	fmt.Println("                   FRAUD      CLEARED")
	fmt.Println("              ┌──────────┬──────────┐")
	fmt.Printf("   Risk  >75  │ %8d │ %8d │  (TP, FP)\n", m.TruePositives, m.FalsePositives)
	fmt.Println("              ├──────────┼──────────┤")
	fmt.Printf("        <=75  │ %8d │ %8d │  (FN, TN)\n", m.FalseNegatives, m.TrueNegatives)
	fmt.Println("              └──────────┴──────────┘")

	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}
	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}
	fmt.Printf("\n🎯 FLAG QUALITY\n")
	fmt.Printf("   Precision:  %.4f  (of high-risk flags, how many were confirmed)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of confirmed fraud, how many were flagged)\n", recall)

	sort.Slice(m.latencies, func(i, j int) bool { return m.latencies[i] < m.latencies[j] })
	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   p50 Latency:      %v\n", percentile(m.latencies, 0.50).Round(time.Microsecond))
	fmt.Printf("   p99 Latency:      %v\n", percentile(m.latencies, 0.99).Round(time.Microsecond))
	if m.Adjudicated > 0 {
		fmt.Printf("   Throughput:       %.2f adjudications/sec\n", float64(m.Adjudicated)/duration.Seconds())
	}
	fmt.Println()
}
