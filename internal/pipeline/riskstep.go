package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

// stepRiskAssessment runs the external risk assessment when an assessor is
// configured and the extraction produced a client name. Otherwise the case
// carries an unknown assessment and proceeds without gating on risk.
func (p *Pipeline) stepRiskAssessment(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	if p.assessor == nil || st.email.ClientName == "" {
		reason := "no search backend configured"
		if st.email.ClientName == "" {
			reason = "no client name extracted"
		}
		zap.L().Info("risk assessment skipped",
			zap.String("case_id", rec.ID),
			zap.String("reason", reason))
		st.assessment = skippedAssessment(st.email.ClientName, reason)
	} else {
		st.assessment = p.assessor.Assess(ctx, st.email.ClientName)
	}

	a := st.assessment
	rec.RiskLevel = a.Result.OverallRiskLevel
	rec.RiskFactors = a.Result.RiskFactors
	rec.FinancialStability = a.Result.FinancialStability
	rec.MarketPosition = a.Result.MarketPosition
	rec.ClaimsHistory = a.Result.ClaimsHistory
	rec.RiskSummary = a.UnderwriterSummary
	return rec.RecordStep(model.StepRiskAssessment, a.CompanyName, a, a.Result.DetailedAssessment)
}

func skippedAssessment(companyName, reason string) *model.RiskAssessment {
	return &model.RiskAssessment{
		CompanyName:    companyName,
		AssessmentDate: time.Now().UTC(),
		Result: model.RiskAssessmentResult{
			OverallRiskLevel:   model.RiskUnknown,
			RiskFactors:        []string{"Unable to assess risk factors"},
			FinancialStability: "Unknown",
			MarketPosition:     "Unknown",
			ClaimsHistory:      "Unknown",
			DetailedAssessment: "Risk assessment skipped: " + reason,
		},
		UnderwriterSummary: "Risk assessment skipped: " + reason,
	}
}
