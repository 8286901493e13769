package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const baseRatePrompt = `You are an insurance underwriting assistant. Based on the Business Industry Classification (BIC) code, determine the appropriate base rate per $1,000 of revenue.

Reference the rating-manual and rating-factors documents.

The base rate should be between 0.50 and 5.00, unless this is a prohibited class (then 0.00).

Include an explanation that explains your reasoning for selecting this base rate, including any risk factors or industry considerations that influenced your decision.

Return valid JSON: {"base_rate_per_1000": 0.0, "explanation": ""}

BIC Code: %s`

// fallbackBaseRates is the static rate table used when the generator fails.
// Unknown codes rate at 0.0.
var fallbackBaseRates = map[string]float64{
	"42xx":              1.90, // Transportation Services
	"35xx":              1.20, // Manufacturing
	"54xx":              0.85, // Retail - Food
	"58xx":              1.00, // Restaurants
	model.ProhibitedBIC: 0.00,
}

func (p *Pipeline) stepBaseRate(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	var rate model.BaseRateInfo
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepBaseRate,
		Prompt:    fmt.Sprintf(baseRatePrompt, st.industry.BICCode),
		Documents: []string{docs.RatingManual, docs.RatingFactors},
	}, &rate)
	if err != nil {
		zap.L().Warn("base rate falling back to rate table",
			zap.String("case_id", rec.ID),
			zap.Error(err))
		rate = fallbackBaseRate(st.industry.BICCode)
	}
	st.baseRate = rate

	rec.BaseRatePer1000 = rate.BaseRatePer1000
	return rec.RecordStep(model.StepBaseRate, st.industry.BICCode, rate, rate.Explanation)
}

func fallbackBaseRate(bicCode string) model.BaseRateInfo {
	return model.BaseRateInfo{
		BaseRatePer1000: fallbackBaseRates[bicCode],
		Explanation:     "static rate table fallback",
	}
}
