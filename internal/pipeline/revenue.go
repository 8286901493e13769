package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const revenuePrompt = `You are an insurance underwriting assistant. Estimate the annual revenue for this business based on ALL available information in the email.

Reference the rating-factors document.
Also reference the industry-uw-guidelines document for industry-specific revenue benchmarks and typical business size characteristics.

Consider these approaches in your estimation:
1. Use explicitly mentioned revenue if available
2. Use industry-specific indicators (fleet size, employee count, store size, etc.)
3. Consider the coverage limits requested (higher limits often correlate with larger businesses)
4. Use industry averages based on the BIC code
5. Consider any business descriptions that indicate size or scale

Be adaptable in your approach - different business types have different relevant metrics:
- Transportation: primarily fleet size-based estimation
- Manufacturing: employee count and operation scale
- Retail: store size, locations, inventory value
- Food service: location count, service type
- Other industries: use appropriate indicators

Always provide a reasonable revenue estimate, even with limited information.
If the business type doesn't have a fleet, don't use fleet size in your calculation.

Include a detailed explanation of your estimation methodology, assumptions, and reasoning.

Return valid JSON: {"estimated_annual_revenue": 0, "explanation": ""}

Business Industry Classification (BIC) Code: %s

Extracted Email Information:
%s`

// fallbackRevenueDefaults is the industry-keyed default revenue table.
var fallbackRevenueDefaults = map[string]int64{
	"42xx":              1_500_000, // Transportation
	"35xx":              3_000_000, // Manufacturing
	"54xx":              1_200_000, // Retail
	"58xx":              800_000,   // Food Service
	model.ProhibitedBIC: 0,
}

func (p *Pipeline) stepRevenueEstimate(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	emailJSON, _ := json.MarshalIndent(st.email, "", "  ")

	var rev model.RevenueInfo
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepRevenueEstimate,
		Prompt:    fmt.Sprintf(revenuePrompt, st.industry.BICCode, emailJSON),
		Documents: []string{docs.RatingFactors, docs.IndustryGuidelines},
	}, &rev)
	if err != nil {
		zap.L().Warn("revenue estimate falling back to industry defaults",
			zap.String("case_id", rec.ID),
			zap.Error(err))
		rev = fallbackRevenueEstimate(st.industry.BICCode, st.email)
	}
	st.revenue = rev

	rec.EstimatedAnnualRevenue = rev.EstimatedAnnualRevenue
	return rec.RecordStep(model.StepRevenueEstimate, st.industry.BICCode, rev, rev.Explanation)
}

// fallbackRevenueEstimate prefers explicitly stated revenue; otherwise it
// uses the industry default, doubled when the requested coverage limit
// exceeds $5M.
func fallbackRevenueEstimate(bicCode string, email model.EmailInfo) model.RevenueInfo {
	if email.Revenue > 0 {
		return model.RevenueInfo{
			EstimatedAnnualRevenue: email.Revenue,
			Explanation:            "revenue stated in submission",
		}
	}

	estimate, ok := fallbackRevenueDefaults[bicCode]
	if !ok {
		estimate = 1_500_000
	}
	if email.CoverageRequested.Limits != "" {
		if limit := ParseCoverageLimit(email.CoverageRequested.Limits); limit > 5_000_000 {
			estimate *= 2
		}
	}

	return model.RevenueInfo{
		EstimatedAnnualRevenue: estimate,
		Explanation:            "industry default revenue fallback",
	}
}
