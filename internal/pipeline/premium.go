package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const modifiersPrompt = `You are an insurance underwriting assistant. Determine the premium modifiers that apply to this submission and compute the final premium.

Reference the rating-factors document for the schedule of credits and debits.

Base premium before modifiers: %s
Business Industry Classification (BIC) Code: %s

Extracted Email Information:
%s

Rules:
- Apply a fleet discount ONLY when the business actually operates a fleet. Never apply a fleet discount to a business without vehicles.
- Apply a loss history factor based on the described loss history (credit for clean history, debit for losses).
- Apply a coverage limit factor based on the requested limit.
- Apply a business type factor when the rating factors call for one.
- Each factor is a multiplier near 1.0. Omit factors that do not apply.
- final_premium = base premium multiplied by every applicable factor, rounded to 2 decimals.

Return valid JSON:
{"modifiers": {"fleet_discount": 0, "loss_history_factor": 1.0, "territory_factor": 1.0, "coverage_limit_factor": 1.0, "business_type_factor": 1.0, "other_factors": {}}, "final_premium": 0, "explanation": ""}`

// stepBasePremium is pure arithmetic: no generator call, no fallback path.
func (p *Pipeline) stepBasePremium(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	premium := roundCents(float64(st.revenue.EstimatedAnnualRevenue) / 1000 * st.baseRate.BaseRatePer1000)

	info := model.BasePremiumInfo{BasePremium: premium}
	st.basePrem = info

	rec.BasePremium = premium
	explanation := fmt.Sprintf("(%d / 1000) * %.2f = %.2f",
		st.revenue.EstimatedAnnualRevenue, st.baseRate.BaseRatePer1000, premium)
	return rec.RecordStep(model.StepBasePremium,
		map[string]any{
			"estimated_annual_revenue": st.revenue.EstimatedAnnualRevenue,
			"base_rate_per_1000":       st.baseRate.BaseRatePer1000,
		}, info, explanation)
}

func (p *Pipeline) stepPremiumModifiers(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	emailJSON, _ := json.MarshalIndent(st.email, "", "  ")

	var prem model.PremiumInfo
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepPremiumModifiers,
		Prompt:    fmt.Sprintf(modifiersPrompt, formatUSD(st.basePrem.BasePremium), st.industry.BICCode, emailJSON),
		Documents: []string{docs.RatingFactors},
	}, &prem)
	if err != nil {
		zap.L().Warn("premium modifiers falling back to coverage limit factor",
			zap.String("case_id", rec.ID),
			zap.Error(err))
		prem = fallbackPremiumModifiers(st.basePrem.BasePremium, st.email)
	}
	// The generator's arithmetic is not trusted: recompute from the factors.
	prem.FinalPremium = roundCents(st.basePrem.BasePremium * prem.Modifiers.Product())
	st.premium = prem

	rec.FinalPremium = prem.FinalPremium
	rec.PremiumModifiers = &prem.Modifiers
	return rec.RecordStep(model.StepPremiumModifiers, st.basePrem.BasePremium, prem, prem.Explanation)
}

// fallbackPremiumModifiers applies only the coverage limit factor. Fleet and
// loss history cannot be judged without the generator, so they stay neutral.
func fallbackPremiumModifiers(basePremium float64, email model.EmailInfo) model.PremiumInfo {
	limitFactor := 1.0
	switch limit := ParseCoverageLimit(email.CoverageRequested.Limits); {
	case limit >= 10_000_000:
		limitFactor = 1.25
	case limit >= 5_000_000:
		limitFactor = 1.15
	case limit >= 2_000_000:
		limitFactor = 1.05
	}

	mods := model.PremiumModifiers{
		LossHistoryFactor:   1.0,
		TerritoryFactor:     1.0,
		CoverageLimitFactor: limitFactor,
	}
	return model.PremiumInfo{
		Modifiers:    mods,
		FinalPremium: roundCents(basePremium * mods.Product()),
		Explanation:  "coverage limit factor fallback",
	}
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}

var usdPrinter = message.NewPrinter(language.AmericanEnglish)

// formatUSD renders a dollar amount with thousands separators and cents,
// e.g. 2850 -> "$2,850.00".
func formatUSD(v float64) string {
	return usdPrinter.Sprintf("$%v", number.Decimal(v, number.Scale(2)))
}
