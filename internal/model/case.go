package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// CaseStatus represents the lifecycle state of an underwriting case.
type CaseStatus string

const (
	CaseStatusPending     CaseStatus = "pending"
	CaseStatusProcessing  CaseStatus = "processing"
	CaseStatusCompleted   CaseStatus = "completed"
	CaseStatusFailed      CaseStatus = "failed"
	CaseStatusHumanReview CaseStatus = "requires_human_review"
)

// Terminal reports whether the status is a terminal state.
func (s CaseStatus) Terminal() bool {
	switch s {
	case CaseStatusCompleted, CaseStatusFailed, CaseStatusHumanReview:
		return true
	}
	return false
}

// Step names a pipeline step. Step values double as the storage prefix for
// the step's input/output/explanation record and as current_step markers.
type Step string

const (
	StepExtraction       Step = "extraction"
	StepIndustryCode     Step = "industry_code"
	StepBaseRate         Step = "base_rate"
	StepRevenueEstimate  Step = "revenue_estimate"
	StepBasePremium      Step = "base_premium"
	StepPremiumModifiers Step = "premium_modifiers"
	StepAuthorityCheck   Step = "authority_check"
	StepCoverageDetails  Step = "coverage_details"
	StepRiskAssessment   Step = "risk_assessment"
	StepResponseEmail    Step = "response_email"

	// Transient markers used in current_step but never stored as step records.
	StepInitializing Step = "initializing"
	StepFinalizing   Step = "finalizing"
)

// StepOrder is the canonical execution order of the pipeline. AuthorityCheck
// and CoverageDetails have no data dependency on each other and may run
// concurrently; every other pair is strictly ordered.
var StepOrder = []Step{
	StepExtraction,
	StepIndustryCode,
	StepBaseRate,
	StepRevenueEstimate,
	StepBasePremium,
	StepPremiumModifiers,
	StepAuthorityCheck,
	StepCoverageDetails,
	StepRiskAssessment,
	StepResponseEmail,
}

// ValidStep reports whether name is a storable pipeline step.
func ValidStep(name Step) bool {
	for _, s := range StepOrder {
		if s == name {
			return true
		}
	}
	return false
}

// StepRecord holds the durable input/output/explanation triple for one step.
type StepRecord struct {
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Explanation string          `json:"explanation,omitempty"`
}

// CaseRecord is one underwriting case, created when a broker email is
// ingested. The pipeline is its exclusive writer while status is
// "processing"; the caller is responsible for preventing two concurrent runs
// against the same case id.
type CaseRecord struct {
	ID string `json:"id"`

	// Email metadata.
	Subject    string    `json:"subject"`
	Sender     string    `json:"sender"`
	Recipient  string    `json:"recipient"`
	ReceivedAt time.Time `json:"received_at"`
	Body       string    `json:"body"`

	// Per-step durable records keyed by step name.
	Steps map[Step]StepRecord `json:"steps,omitempty"`

	// Quick-access scalars mirrored from step outputs.
	ClientName              string            `json:"client_name,omitempty"`
	Industry                string            `json:"industry,omitempty"`
	CoverageType            string            `json:"coverage_type,omitempty"`
	CoverageLimits          string            `json:"coverage_limits,omitempty"`
	FleetSize               int               `json:"fleet_size,omitempty"`
	Urgency                 string            `json:"urgency,omitempty"`
	LossHistory             string            `json:"loss_history,omitempty"`
	AnnualRevenue           int64             `json:"annual_revenue,omitempty"`
	EmployeeCount           int               `json:"employee_count,omitempty"`
	BusinessDescription     string            `json:"business_description,omitempty"`
	BrokerName              string            `json:"broker_name,omitempty"`
	BrokerBrokerage         string            `json:"broker_brokerage,omitempty"`
	BrokerEmail             string            `json:"broker_email,omitempty"`
	BICCode                 string            `json:"bic_code,omitempty"`
	BaseRatePer1000         float64           `json:"base_rate_per_1000,omitempty"`
	EstimatedAnnualRevenue  int64             `json:"estimated_annual_revenue,omitempty"`
	BasePremium             float64           `json:"base_premium,omitempty"`
	FinalPremium            float64           `json:"final_premium,omitempty"`
	PremiumModifiers        *PremiumModifiers `json:"premium_modifiers,omitempty"`
	AuthorityCheck          string            `json:"authority_check,omitempty"`
	ReferralRequired        bool              `json:"referral_required,omitempty"`
	CoverageLimitations     string            `json:"coverage_limitations,omitempty"`
	RecommendedEndorsements []string          `json:"recommended_endorsements,omitempty"`
	RiskLevel               RiskLevel         `json:"risk_level,omitempty"`
	RiskFactors             []string          `json:"risk_factors,omitempty"`
	FinancialStability      string            `json:"financial_stability,omitempty"`
	MarketPosition          string            `json:"market_position,omitempty"`
	ClaimsHistory           string            `json:"claims_history,omitempty"`
	RiskSummary             string            `json:"risk_summary,omitempty"`
	ResponseEmail           string            `json:"response_email,omitempty"`

	// Review gate outcome.
	RequiresHumanReview bool   `json:"requires_human_review,omitempty"`
	HumanReviewReason   string `json:"human_review_reason,omitempty"`
	ReviewNotification  string `json:"review_notification,omitempty"`

	// Underwriter bookkeeping.
	ReviewedBy string     `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time `json:"reviewed_at,omitempty"`
	Notes      string     `json:"notes,omitempty"`

	// Processing state.
	Status              CaseStatus `json:"status"`
	CurrentStep         Step       `json:"current_step,omitempty"`
	ErrorMessage        string     `json:"error_message,omitempty"`
	ProcessingStartTime *time.Time `json:"processing_start_time,omitempty"`
	ProcessingEndTime   *time.Time `json:"processing_end_time,omitempty"`
	ProcessingTimeMS    int64      `json:"processing_time_ms,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RecordStep marshals the step's input and output and stores the triple on
// the record. Passing nil for input or output leaves that field empty.
func (c *CaseRecord) RecordStep(step Step, input, output any, explanation string) error {
	rec := StepRecord{Explanation: explanation}

	if input != nil {
		data, err := json.Marshal(input)
		if err != nil {
			return eris.Wrapf(err, "case: marshal %s input", step)
		}
		rec.Input = data
	}
	if output != nil {
		data, err := json.Marshal(output)
		if err != nil {
			return eris.Wrapf(err, "case: marshal %s output", step)
		}
		rec.Output = data
	}

	if c.Steps == nil {
		c.Steps = make(map[Step]StepRecord)
	}
	c.Steps[step] = rec
	return nil
}

// StepOutput unmarshals the stored output of a step into out. Returns an
// error if the step has no stored output.
func (c *CaseRecord) StepOutput(step Step, out any) error {
	rec, ok := c.Steps[step]
	if !ok || len(rec.Output) == 0 {
		return eris.Errorf("case: no stored output for step %s", step)
	}
	return eris.Wrapf(json.Unmarshal(rec.Output, out), "case: unmarshal %s output", step)
}
