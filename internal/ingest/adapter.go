// Package ingest turns Analysis Service responses into case records.
package ingest

import (
	"fmt"
	"math"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Adapter converts an AnalysisResponse into a case collection and a
// statistics snapshot. It never touches the case store.
type Adapter struct {
	idPrefix string
	idBase   int

	// now is overridable in tests.
	now func() time.Time
}

// NewAdapter creates an adapter using the configured case id scheme.
func NewAdapter(cfg domain.IngestConfig) *Adapter {
	return &Adapter{
		idPrefix: cfg.IDPrefix,
		idBase:   cfg.IDBase,
		now:      time.Now,
	}
}

// WithClock returns a copy of the adapter that reads the ingestion date from now.
func (a *Adapter) WithClock(now func() time.Time) *Adapter {
	c := *a
	c.now = now
	return &c
}

// Ingest maps a response to cases. A response carrying an error yields a
// *domain.MalformedResponseError and no cases. Details alone is advisory.
func (a *Adapter) Ingest(resp *domain.AnalysisResponse) ([]domain.Case, domain.StatisticsSnapshot, error) {
	if resp == nil {
		return nil, domain.StatisticsSnapshot{}, &domain.MalformedResponseError{Message: "empty analysis response"}
	}
	if resp.Error != "" {
		return nil, domain.StatisticsSnapshot{}, &domain.MalformedResponseError{Message: resp.ErrorMessage()}
	}

	date := a.now().Format(domain.DateLayout)
	cases := make([]domain.Case, 0, len(resp.Results))
	for i, r := range resp.Results {
		cases = append(cases, a.toCase(i, date, r))
	}

	stats := domain.StatisticsSnapshot{
		HighRiskCount: resp.HighRiskCount,
		MoneyAtRisk:   resp.MoneyAtRisk,
		ErrorRate:     resp.ErrorRate,
	}
	return cases, stats, nil
}

// CaseID returns the id assigned to the record at index i of a batch.
func (a *Adapter) CaseID(i int) string {
	return fmt.Sprintf("%s-%d", a.idPrefix, a.idBase+i)
}

func (a *Adapter) toCase(i int, date string, r domain.AnalysisResult) domain.Case {
	reasons := make([]string, len(r.Reasons))
	copy(reasons, r.Reasons)

	evidence := make([]domain.Evidence, 0, len(r.NetworkLinks))
	for _, raw := range r.NetworkLinks {
		link := ParseNetworkLink(raw)
		evidence = append(evidence, domain.Evidence{
			Date:        date,
			Description: domain.NetworkLinkTag,
			Value:       raw,
			Link:        &link,
		})
	}

	return domain.Case{
		ID:         a.CaseID(i),
		EntityName: r.Entity,
		Program:    r.Department,
		RiskScore:  clampScore(r.RiskScore),
		RiskBreakdown: domain.RiskBreakdown{
			Rules:   subScore(r.RuleScore),
			ML:      subScore(r.MLScore),
			Network: subScore(r.NetworkScore),
		},
		Status:      domain.StatusPending,
		Amount:      wholeAmount(r.Amount),
		DateFlagged: date,
		Reasons:     reasons,
		Evidence:    evidence,
	}
}

func clampScore(v float64) int {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= 100 {
		return 100
	}
	return int(math.Round(v))
}

func subScore(v *float64) int {
	if v == nil || math.IsNaN(*v) || *v <= 0 {
		return 0
	}
	if *v >= math.MaxInt32 {
		return math.MaxInt32
	}
	return int(math.Round(*v))
}

func wholeAmount(v float64) int64 {
	if math.IsNaN(v) || v <= 0 {
		return 0
	}
	if v >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(math.Round(v))
}
