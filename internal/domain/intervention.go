package domain

import "time"

// InterventionEntry records a single adjudication action.
// Entries outlive the cases they reference: a later ingestion may drop the case.
type InterventionEntry struct {
	ID        string    `json:"id"`
	CaseID    string    `json:"caseId"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	IsCorrect bool      `json:"isCorrect"`
}

// InterventionSummary counts interventions by outcome.
type InterventionSummary struct {
	Total          int `json:"total"`
	ConfirmedFraud int `json:"confirmedFraud"`
	Legitimate     int `json:"legitimate"`
}
