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

const coveragePrompt = `You are an insurance underwriting assistant. Determine applicable coverage limitations and recommended endorsements based on the industry and coverage type.

Reference the following documents:
1. coverage-limitations for industry-specific coverage restrictions
2. coverage-options for available coverage enhancements and endorsements
3. policy-form-library for specific policy forms and endorsement numbers

For each recommended endorsement, provide the specific form number (e.g., "CG 20 10") from the policy form library when available, along with its title.

Include an explanation that explains your reasoning for each recommended endorsement and coverage limitation, referencing specific industry risks and how these address the client's needs.

Return valid JSON: {"coverage_limitations": "", "recommended_endorsements": [], "explanation": ""}

Industry: %s
Coverage Type: %s`

// coverageDetails mirrors the authorityCheck deferred-record shape so the
// two can share an errgroup.
func (p *Pipeline) coverageDetails(ctx context.Context, rec *model.CaseRecord, st *runState) (func() error, error) {
	var cov model.CoverageInfo
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepCoverageDetails,
		Prompt:    fmt.Sprintf(coveragePrompt, st.email.Industry, st.email.CoverageRequested.Type),
		Documents: []string{docs.CoverageLimitations, docs.CoverageOptions, docs.PolicyFormLibrary},
	}, &cov)
	if err != nil {
		zap.L().Warn("coverage details falling back to keyword defaults",
			zap.String("case_id", rec.ID),
			zap.Error(err))
		cov = fallbackCoverageDetails(st.email.Industry, st.email.CoverageRequested.Type)
	}

	return func() error {
		st.coverage = cov
		rec.CoverageLimitations = cov.CoverageLimitations
		rec.RecommendedEndorsements = cov.RecommendedEndorsements
		return rec.RecordStep(model.StepCoverageDetails,
			map[string]any{"industry": st.email.Industry, "coverage_type": st.email.CoverageRequested.Type},
			cov, cov.Explanation)
	}, nil
}

// stepCoverageDetails is the standalone form used when resuming directly at
// this step, with the authority check already recorded.
func (p *Pipeline) stepCoverageDetails(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	record, err := p.coverageDetails(ctx, rec, st)
	if err != nil {
		return err
	}
	return record()
}

func fallbackCoverageDetails(industry, coverageType string) model.CoverageInfo {
	ind := strings.ToLower(industry)
	cov := strings.ToLower(coverageType)

	info := model.CoverageInfo{
		CoverageLimitations:     "Standard terms and conditions apply.",
		RecommendedEndorsements: []string{"Additional Insured Endorsement"},
		Explanation:             "keyword coverage fallback",
	}

	if containsAny(ind, "transport", "trucking", "fleet") &&
		containsAny(cov, "auto", "fleet", "liability") {
		info.CoverageLimitations = "Coverage is subject to driver experience requirements and radius of operation limitations."
		info.RecommendedEndorsements = []string{"Motor Truck Cargo Coverage", "Trailer Interchange Coverage"}
	}
	if strings.Contains(ind, "agricult") {
		info.CoverageLimitations = "No restrictions noted for agricultural transportation operations."
		info.RecommendedEndorsements = []string{"Agricultural Transport Endorsement"}
	}
	return info
}
