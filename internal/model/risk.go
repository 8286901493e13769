package model

import (
	"strings"
	"time"
)

// RiskLevel is the bounded risk rating for a client company.
type RiskLevel string

const (
	RiskLow     RiskLevel = "low"
	RiskMedium  RiskLevel = "medium"
	RiskHigh    RiskLevel = "high"
	RiskExtreme RiskLevel = "extreme"
	// RiskUnknown is reserved for total assessment failure. The generator is
	// never allowed to return it; only the assessor's failure path does.
	RiskUnknown RiskLevel = "unknown"
)

// NormalizeRiskLevel coerces a model-produced rating to the allowed enum.
// Anything outside {low, medium, high, extreme} becomes medium.
func NormalizeRiskLevel(s string) RiskLevel {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(s))) {
	case RiskLow:
		return RiskLow
	case RiskMedium:
		return RiskMedium
	case RiskHigh:
		return RiskHigh
	case RiskExtreme:
		return RiskExtreme
	}
	return RiskMedium
}

// HighRisk reports whether the level is in the human-review trigger set.
// Unknown is deliberately not a trigger: an unassessable company proceeds to
// automatic response unless something else gates it.
func (l RiskLevel) HighRisk() bool {
	return l == RiskHigh || l == RiskExtreme
}

// RiskAssessmentResult is the structured rating produced from external
// company signals.
type RiskAssessmentResult struct {
	OverallRiskLevel   RiskLevel `json:"overall_risk_level"`
	RiskFactors        []string  `json:"risk_factors"`
	FinancialStability string    `json:"financial_stability"`
	MarketPosition     string    `json:"market_position"`
	ClaimsHistory      string    `json:"claims_history"`
	DetailedAssessment string    `json:"detailed_assessment"`
}

// RiskAssessment is the full assessment package for a company, including the
// underwriter-only narrative summary. It is always fully populated; total
// failure yields an unknown-level object, never an error.
type RiskAssessment struct {
	CompanyName        string               `json:"company_name"`
	AssessmentDate     time.Time            `json:"assessment_date"`
	Signals            []CompanySignal      `json:"signals,omitempty"`
	Result             RiskAssessmentResult `json:"risk_assessment"`
	UnderwriterSummary string               `json:"underwriter_summary"`
}

// CompanySignal is one normalized external search or news record used as
// assessment input.
type CompanySignal struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
	Link    string `json:"link,omitempty"`
	Date    string `json:"date,omitempty"`
	Source  string `json:"source"` // "search" or "news"
}
