package stats

import (
	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Presentational defaults shown when the ingested figures are unset.
const (
	FallbackMoneyAtRisk       = "₹142.50 Cr"
	FallbackFalsePositiveRate = "0.42%"
)

// Source says which side of the degradation rule produced a headline figure.
type Source string

const (
	SourceIngested Source = "ingested"
	SourceFallback Source = "fallback"
)

// HeadlineSources records the source of each headline figure.
type HeadlineSources struct {
	HighRisk          Source `json:"highRisk"`
	MoneyAtRisk       Source `json:"moneyAtRisk"`
	FalsePositiveRate Source `json:"falsePositiveRate"`
}

// Headline holds the dashboard counters.
type Headline struct {
	HighRisk          int             `json:"highRisk"`
	MoneyAtRisk       string          `json:"moneyAtRisk"`
	FalsePositiveRate string          `json:"falsePositiveRate"`
	PendingExposure   string          `json:"pendingExposure"`
	Sources           HeadlineSources `json:"sources"`
}

// Headlines computes the headline counters. Each ingested figure is used
// unless it is unset, in which case the fallback is used. The high-risk
// fallback counts pending cases above the high-risk threshold, so it moves
// as cases are adjudicated.
func Headlines(cases []domain.Case, snap domain.StatisticsSnapshot) Headline {
	h := Headline{
		PendingExposure: FormatExposure(PendingHighRiskAmount(cases)),
	}

	if snap.HasHighRiskCount() {
		h.HighRisk, h.Sources.HighRisk = snap.HighRiskCount, SourceIngested
	} else {
		h.HighRisk, h.Sources.HighRisk = PendingHighRisk(cases), SourceFallback
	}

	if snap.HasMoneyAtRisk() {
		h.MoneyAtRisk, h.Sources.MoneyAtRisk = snap.MoneyAtRisk, SourceIngested
	} else {
		h.MoneyAtRisk, h.Sources.MoneyAtRisk = FallbackMoneyAtRisk, SourceFallback
	}

	if snap.HasErrorRate() {
		h.FalsePositiveRate, h.Sources.FalsePositiveRate = snap.ErrorRate, SourceIngested
	} else {
		h.FalsePositiveRate, h.Sources.FalsePositiveRate = FallbackFalsePositiveRate, SourceFallback
	}

	return h
}

// PendingHighRisk counts pending cases above the high-risk threshold.
func PendingHighRisk(cases []domain.Case) int {
	n := 0
	for _, c := range cases {
		if c.IsHighRisk() && c.Status == domain.StatusPending {
			n++
		}
	}
	return n
}

// PendingHighRiskAmount sums the amounts of pending high-risk cases.
func PendingHighRiskAmount(cases []domain.Case) decimal.Decimal {
	total := decimal.Zero
	for _, c := range cases {
		if c.IsHighRisk() && c.Status == domain.StatusPending {
			total = total.Add(decimal.NewFromInt(c.Amount))
		}
	}
	return total
}

var (
	crore = decimal.NewFromInt(10_000_000)
	lakh  = decimal.NewFromInt(100_000)
)

// FormatExposure renders an amount in crore ("₹1.25 Cr") from one crore
// upwards and in lakh ("₹3.40 L") below.
func FormatExposure(amount decimal.Decimal) string {
	if amount.GreaterThanOrEqual(crore) {
		return "₹" + amount.Div(crore).StringFixed(2) + " Cr"
	}
	return "₹" + amount.Div(lakh).StringFixed(2) + " L"
}
