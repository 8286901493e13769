package pipeline

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const industryCodePrompt = `You are an insurance underwriting assistant. Based on the industry description and additional context, determine the appropriate Business Industry Classification (BIC) code.

Reference the industry classification guidelines in the industry-uw-guidelines reference document, and use general knowledge to make a determination when a range of codes is given.

Also reference the rating-factors document to ensure the BIC code you select aligns with our rating categories for premium calculation.

Return a 4 digit BIC code e.g. "4200". Do not leave it blank, and do not give a range of codes. If you cannot find a match, return "N/A (Prohibited)".

IMPORTANT: Include an explanation that explains your reasoning for selecting this BIC code, referencing specific keywords or characteristics from the industry description and how it aligns with our rating categories.

Return valid JSON: {"bic_code": "", "explanation": ""}

Industry: %s
Additional Context: %s`

func (p *Pipeline) stepIndustryCode(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	var code model.IndustryCode
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepIndustryCode,
		Prompt:    fmt.Sprintf(industryCodePrompt, st.email.Industry, st.email.Explanation),
		Documents: []string{docs.IndustryGuidelines, docs.RatingFactors},
	}, &code)
	if err != nil || code.BICCode == "" {
		if err != nil {
			zap.L().Warn("industry classification falling back to keyword table",
				zap.String("case_id", rec.ID),
				zap.Error(err))
		}
		code = fallbackIndustryCode(st.email.Industry)
	}
	st.industry = code

	rec.BICCode = code.BICCode
	return rec.RecordStep(model.StepIndustryCode, st.email.Industry, code, code.Explanation)
}

// fallbackIndustryCode classifies by keyword. Transportation is the default
// class when nothing matches.
func fallbackIndustryCode(industry string) model.IndustryCode {
	normalized := strings.ToLower(industry)

	code := model.IndustryCode{Explanation: "keyword fallback classification"}
	switch {
	case containsAny(normalized, "transport", "trucking", "freight", "logistics"):
		code.BICCode = "42xx"
	case containsAny(normalized, "manufactur", "industrial", "factory"):
		code.BICCode = "35xx"
	case containsAny(normalized, "restaurant", "cafe", "catering"):
		code.BICCode = "58xx"
	case containsAny(normalized, "retail", "store", "shop", "food"):
		code.BICCode = "54xx"
	case containsAny(normalized, "firework", "explosive", "cannabis", "adult"):
		code.BICCode = model.ProhibitedBIC
	default:
		code.BICCode = "42xx"
	}
	return code
}

func containsAny(s string, terms ...string) bool {
	for _, t := range terms {
		if strings.Contains(s, t) {
			return true
		}
	}
	return false
}
