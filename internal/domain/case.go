package domain

import (
	"fmt"
	"strings"
)

// NetworkLinkTag marks an evidence entry as network-correlation input.
const NetworkLinkTag = "Network Link Detected"

// DateLayout is the layout for DateFlagged and evidence dates.
const DateLayout = "2006-01-02"

// Status is the adjudication state of a case.
type Status string

const (
	StatusPending        Status = "Pending"
	StatusConfirmedFraud Status = "ConfirmedFraud"
	StatusLegitimate     Status = "Legitimate"

	// StatusEscalated only ever arrives from ingestion or seeding.
	StatusEscalated Status = "Escalated"
)

// ParseStatus maps a status string to a Status.
// Accepts the display spellings used by the dashboard ("Confirmed Fraud").
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "pending":
		return StatusPending, nil
	case "confirmedfraud":
		return StatusConfirmedFraud, nil
	case "legitimate":
		return StatusLegitimate, nil
	case "escalated":
		return StatusEscalated, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
}

// IsOperatorTarget reports whether an adjudicator may set this status.
func (s Status) IsOperatorTarget() bool {
	return s == StatusConfirmedFraud || s == StatusLegitimate
}

// CanTransition reports whether an operator may move a case from s to next.
// Pending may move to either verdict. A verdict may be re-applied, which leaves
// the case unchanged but is still recorded as an intervention.
func (s Status) CanTransition(next Status) bool {
	if !next.IsOperatorTarget() {
		return false
	}
	return s == StatusPending || s == next
}

// RiskBreakdown holds the contributing sub-scores reported by the scoring model.
// They are not required to sum to the case's RiskScore.
type RiskBreakdown struct {
	Rules   int `json:"rules"`
	ML      int `json:"ml"`
	Network int `json:"network"`
}

// NetworkLink is the structured correlation key carried by a network-link
// evidence entry.
type NetworkLink struct {
	Identifier     string `json:"identifier"`
	Type           string `json:"type"`
	RawDescription string `json:"rawDescription"`
}

// Evidence is a single dated entry in a case's evidence trail.
type Evidence struct {
	Date        string       `json:"date"`
	Description string       `json:"description"`
	Value       string       `json:"value"`
	Link        *NetworkLink `json:"link,omitempty"`
}

// IsNetworkLink reports whether the entry feeds network correlation.
func (e Evidence) IsNetworkLink() bool {
	return e.Description == NetworkLinkTag
}

// Case is a scored record awaiting (or having received) human adjudication.
type Case struct {
	ID            string        `json:"id"`
	EntityName    string        `json:"entityName"`
	Program       string        `json:"program"`
	RiskScore     int           `json:"riskScore"`
	RiskBreakdown RiskBreakdown `json:"riskBreakdown"`
	Status        Status        `json:"status"`
	Amount        int64         `json:"amount"`
	DateFlagged   string        `json:"dateFlagged"`
	Reasons       []string      `json:"reasons"`
	Evidence      []Evidence    `json:"evidence"`
}

// HighRiskThreshold is the score above which a case counts as high risk.
const HighRiskThreshold = 75

// IsHighRisk reports whether the case scores above HighRiskThreshold.
func (c Case) IsHighRisk() bool {
	return c.RiskScore > HighRiskThreshold
}

// PrimaryReason returns the first reason, or "" when there are none.
func (c Case) PrimaryReason() string {
	if len(c.Reasons) == 0 {
		return ""
	}
	return c.Reasons[0]
}

// NetworkLinks returns the evidence entries tagged as network links.
func (c Case) NetworkLinks() []Evidence {
	var links []Evidence
	for _, e := range c.Evidence {
		if e.IsNetworkLink() {
			links = append(links, e)
		}
	}
	return links
}
