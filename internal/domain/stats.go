package domain

// Unset sentinels reported by the Analysis Service when it has nothing to say.
const (
	UnsetMoneyAtRisk = "₹0.00 Cr"
	UnsetErrorRate   = "0.0%"
)

// StatisticsSnapshot holds the batch-level counters reported with an ingestion.
// It is replaced wholesale on every ingestion and never partially updated.
type StatisticsSnapshot struct {
	HighRiskCount int    `json:"highRiskCount"`
	MoneyAtRisk   string `json:"moneyAtRisk"`
	ErrorRate     string `json:"errorRate"`
}

// HasHighRiskCount reports whether the ingested count is usable.
func (s StatisticsSnapshot) HasHighRiskCount() bool {
	return s.HighRiskCount > 0
}

// HasMoneyAtRisk reports whether the ingested amount is usable.
func (s StatisticsSnapshot) HasMoneyAtRisk() bool {
	return s.MoneyAtRisk != "" && s.MoneyAtRisk != UnsetMoneyAtRisk
}

// HasErrorRate reports whether the ingested error rate is usable.
func (s StatisticsSnapshot) HasErrorRate() bool {
	return s.ErrorRate != "" && s.ErrorRate != UnsetErrorRate
}

// EmptyStatistics is the snapshot a store starts with before any ingestion.
func EmptyStatistics() StatisticsSnapshot {
	return StatisticsSnapshot{
		HighRiskCount: 0,
		MoneyAtRisk:   UnsetMoneyAtRisk,
		ErrorRate:     UnsetErrorRate,
	}
}
