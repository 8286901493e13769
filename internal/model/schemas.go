package model

// Step value schemas. Every structured generator call targets one of these
// types; each type has an explicit default constructor used when the
// generator cannot produce a usable value. Defaults are struct literals, not
// reflection, so the zero shape of every schema is visible at a glance.

// ProhibitedBIC is the literal classification for industries the program
// will not write. It is never a valid 4-digit code.
const ProhibitedBIC = "N/A (Prohibited)"

// Urgency levels allowed in EmailInfo. Anything else is coerced to standard.
const (
	UrgencyStandard    = "standard"
	UrgencyUrgent      = "urgent"
	UrgencyExploratory = "exploratory"
	UrgencyPreliminary = "preliminary"
)

// NormalizeUrgency coerces free-form urgency text to the allowed enum.
func NormalizeUrgency(s string) string {
	switch s {
	case UrgencyStandard, UrgencyUrgent, UrgencyExploratory, UrgencyPreliminary:
		return s
	}
	return UrgencyStandard
}

// BrokerContact identifies the submitting broker.
type BrokerContact struct {
	Name      string `json:"name"`
	Brokerage string `json:"brokerage"`
	Email     string `json:"email"`
}

// CoverageRequested is the coverage type and limit asked for in the email.
// Limits are formatted as $<N>M.
type CoverageRequested struct {
	Type   string `json:"type"`
	Limits string `json:"limits"`
}

// EmailInfo is the structured extraction of a quote-request email.
type EmailInfo struct {
	ClientName          string            `json:"client_name"`
	Industry            string            `json:"industry"`
	CoverageRequested   CoverageRequested `json:"coverage_requested"`
	FleetSize           int               `json:"fleet_size,omitempty"`
	Revenue             int64             `json:"revenue,omitempty"`
	Employees           int               `json:"employees,omitempty"`
	FacilitySize        string            `json:"facility_size,omitempty"`
	Urgency             string            `json:"urgency"`
	LossHistory         string            `json:"loss_history"`
	AdditionalRequests  []string          `json:"additional_requests,omitempty"`
	BrokerContact       BrokerContact     `json:"broker_contact"`
	BusinessDescription string            `json:"business_description,omitempty"`
	Explanation         string            `json:"explanation"`
}

// DefaultEmailInfo returns the schema's zero value with the failure reason
// recorded in the explanation field.
func DefaultEmailInfo(reason string) EmailInfo {
	return EmailInfo{
		Urgency:     UrgencyStandard,
		Explanation: reason,
	}
}

// IndustryCode is the BIC classification of the client's industry.
// BICCode is always a 4-digit string or the ProhibitedBIC literal, never
// blank and never a range.
type IndustryCode struct {
	BICCode     string `json:"bic_code"`
	Explanation string `json:"explanation"`
}

// BaseRateInfo is the base rate per $1,000 of revenue for a BIC code:
// 0.00 for a prohibited class, otherwise within [0.50, 5.00].
type BaseRateInfo struct {
	BaseRatePer1000 float64 `json:"base_rate_per_1000"`
	Explanation     string  `json:"explanation"`
}

// RevenueInfo is the estimated annual revenue. Always populated, even with
// minimal input.
type RevenueInfo struct {
	EstimatedAnnualRevenue int64  `json:"estimated_annual_revenue"`
	Explanation            string `json:"explanation"`
}

// BasePremiumInfo is the deterministic base premium: revenue/1000 * rate,
// rounded to cents.
type BasePremiumInfo struct {
	BasePremium float64 `json:"base_premium"`
}

// PremiumModifiers are the multiplicative factors applied to the base
// premium. A fleet discount is applied only when the business has a fleet.
type PremiumModifiers struct {
	FleetDiscount       float64            `json:"fleet_discount,omitempty"`
	LossHistoryFactor   float64            `json:"loss_history_factor"`
	TerritoryFactor     float64            `json:"territory_factor"`
	CoverageLimitFactor float64            `json:"coverage_limit_factor,omitempty"`
	BusinessTypeFactor  float64            `json:"business_type_factor,omitempty"`
	OtherFactors        map[string]float64 `json:"other_factors,omitempty"`
}

// Product returns the combined multiplier. Unset (zero) factors count as 1.0.
func (m PremiumModifiers) Product() float64 {
	p := 1.0
	for _, f := range []float64{
		m.FleetDiscount,
		m.LossHistoryFactor,
		m.TerritoryFactor,
		m.CoverageLimitFactor,
		m.BusinessTypeFactor,
	} {
		if f > 0 {
			p *= f
		}
	}
	for _, f := range m.OtherFactors {
		if f > 0 {
			p *= f
		}
	}
	return p
}

// PremiumInfo is the final premium after modifiers.
type PremiumInfo struct {
	Modifiers    PremiumModifiers `json:"modifiers"`
	FinalPremium float64          `json:"final_premium"`
	Explanation  string           `json:"explanation"`
}

// Authority statuses produced by the authority check.
const (
	AuthorityApproved       = "approved"
	AuthoritySeniorReferral = "requires senior management referral"
	AuthorityManager        = "requires manager approval"
	AuthorityRegional       = "requires regional approval"
	AuthorityProhibited     = "prohibited"
)

// AuthorityInfo is the delegated-authority determination for the requested
// limit. A prohibited BIC code always yields authority_check="prohibited"
// with referral_required=true.
type AuthorityInfo struct {
	AuthorityCheck   string `json:"authority_check"`
	ReferralRequired bool   `json:"referral_required"`
	Explanation      string `json:"explanation"`
}

// CoverageInfo is the coverage limitations and recommended endorsements for
// the industry and coverage type.
type CoverageInfo struct {
	CoverageLimitations     string   `json:"coverage_limitations"`
	RecommendedEndorsements []string `json:"recommended_endorsements"`
	Explanation             string   `json:"explanation"`
}
