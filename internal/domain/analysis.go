package domain

// AnalysisResponse is the body returned by the Analysis Service for a batch.
type AnalysisResponse struct {
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`

	Results []AnalysisResult `json:"results"`

	HighRiskCount int    `json:"high_risk_count"`
	MoneyAtRisk   string `json:"money_at_risk"`
	ErrorRate     string `json:"error_rate"`
}

// AnalysisResult is a single scored record in an AnalysisResponse.
// Optional fields are pointers so an absent value can be told apart from zero.
type AnalysisResult struct {
	Entity       string   `json:"entity"`
	Department   string   `json:"department"`
	RiskScore    float64  `json:"risk_score"`
	Amount       float64  `json:"amount"`
	Reasons      []string `json:"reasons,omitempty"`
	RuleScore    *float64 `json:"rule_score,omitempty"`
	MLScore      *float64 `json:"ml_score,omitempty"`
	NetworkScore *float64 `json:"network_score,omitempty"`
	NetworkLinks []string `json:"network_links,omitempty"`
}

// ErrorMessage returns the operator-facing message of a structured error
// response: details when present, otherwise the error text.
func (r *AnalysisResponse) ErrorMessage() string {
	if r.Details != "" {
		return r.Details
	}
	return r.Error
}
