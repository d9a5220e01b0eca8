// Package demo generates a plausible case collection for an empty
// installation, so the dashboard has something to show before the first
// batch is ingested.
package demo

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
)

var (
	entities = []string{
		"Aditi Sharma", "Rajesh Kumar", "Global Tech Solutions", "Nirmala Devi",
		"Suresh Enterprises", "Vikram Singh", "Asha Foundation", "Metro Builders",
	}
	programs = []string{"Scholarship", "Pension", "Public Works", "Procurement"}
	statuses = []domain.Status{
		domain.StatusPending, domain.StatusConfirmedFraud, domain.StatusLegitimate, domain.StatusEscalated,
	}
	reasons = []string{
		"Duplicate bank account usage detected",
		"Transaction amount exceeds historical average by 400%",
		"Entity linked to blacklisted vendor 'K-Corp'",
		"High frequency of withdrawals in low-activity periods",
	}
	// shared identifiers; every few cases reuse one so clusters form.
	sharedLinks = []struct{ kind, id string }{
		{"BANK ACCOUNT", "ACC-88213"},
		{"PHONE", "98450-11234"},
		{"ADDRESS", "12-MG-ROAD"},
		{"PAN", "ABCPK1234F"},
	}
)

// Options controls generation.
type Options struct {
	Count  int
	Prefix string
	Base   int
	Seed   uint64
	Now    time.Time
}

// OptionsFrom derives generation options from the ingest configuration.
func OptionsFrom(cfg domain.IngestConfig, now time.Time) Options {
	return Options{
		Count:  cfg.DemoCaseCount,
		Prefix: cfg.IDPrefix,
		Base:   cfg.IDBase,
		Seed:   uint64(now.UnixNano()),
		Now:    now,
	}
}

// Generate returns opts.Count cases. The same options always produce the
// same cases.
func Generate(opts Options) []domain.Case {
	if opts.Count <= 0 {
		return []domain.Case{}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed^0x9e3779b97f4a7c15))

	cases := make([]domain.Case, opts.Count)
	for i := range cases {
		name := entities[rng.IntN(len(entities))]
		if i%3 == 0 {
			name += " & Co."
		}
		flagged := opts.Now.Add(-time.Duration(rng.Int64N(int64(12 * 24 * time.Hour)))).UTC().Format(domain.DateLayout)

		c := domain.Case{
			ID:         fmt.Sprintf("%s-%d", opts.Prefix, opts.Base+i),
			EntityName: name,
			Program:    programs[rng.IntN(len(programs))],
			RiskScore:  rng.IntN(100),
			RiskBreakdown: domain.RiskBreakdown{
				Rules:   rng.IntN(40),
				ML:      rng.IntN(40),
				Network: rng.IntN(20),
			},
			Status:      statuses[rng.IntN(len(statuses))],
			Amount:      rng.Int64N(5_000_000) + 10_000,
			DateFlagged: flagged,
			Reasons:     append([]string(nil), reasons[:rng.IntN(3)+1]...),
			Evidence: []domain.Evidence{
				{Date: "2024-11-12", Description: "Initial Application Submitted", Value: "₹45,000"},
				{Date: "2024-12-05", Description: "System Auto-Flag: Rule #412", Value: "High Priority"},
				{Date: "2025-01-10", Description: "Unusual Transaction Cluster", Value: "₹1,20,000"},
			},
		}

		if i%4 == 0 {
			shared := sharedLinks[(i/4)%len(sharedLinks)]
			value := fmt.Sprintf("Linked via %s (%s) to %d other entity(s)", shared.kind, shared.id, opts.Count/16)
			link := ingest.ParseNetworkLink(value)
			c.Evidence = append(c.Evidence, domain.Evidence{
				Date:        flagged,
				Description: domain.NetworkLinkTag,
				Value:       value,
				Link:        &link,
			})
			c.Reasons = append(c.Reasons, fmt.Sprintf("Network: Identity sharing found (%s)", shared.kind))
		}

		cases[i] = c
	}
	return cases
}
