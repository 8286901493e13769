package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/internal/store"
)

const truckingEmail = `Hi,

I'd like to request a liability insurance quote for Henson Trucking LLC, a regional transport
operation running 15 commercial vehicles out of Ohio. They want a $3 million limit.

Thanks,
Sarah Henson
Henson Brokerage`

func newTestPipeline(t *testing.T, gen llm.Generator, assessor Assessor) (*Pipeline, store.Store) {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return New(st, gen, assessor), st
}

func newTestCase(t *testing.T, st store.Store, body string) *model.CaseRecord {
	t.Helper()
	rec := &model.CaseRecord{
		Sender:     "sarah@hensonbrokerage.com",
		Subject:    "Quote request - Henson Trucking LLC",
		ReceivedAt: time.Now().UTC(),
		Body:       body,
	}
	require.NoError(t, st.CreateCase(context.Background(), rec))
	return rec
}

// stepMatch matches a generator request for one step.
func stepMatch(step model.Step) any {
	return mock.MatchedBy(func(req llm.Request) bool { return req.Step == step })
}

// fillStructured returns a mock.Run that copies v into the output argument.
func fillStructured(t *testing.T, v any) func(mock.Arguments) {
	t.Helper()
	return func(args mock.Arguments) {
		data, err := json.Marshal(v)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(data, args.Get(2)))
	}
}

func TestPipelineAllFallbacks(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	gen.On("GenerateText", mock.Anything, mock.Anything).
		Return("Subject: Your quote\n\nDear Sarah,\n...")

	p, st := newTestPipeline(t, gen, nil)
	rec := newTestCase(t, st, truckingEmail)

	require.NoError(t, p.Start(context.Background(), rec.ID))

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, model.CaseStatusCompleted, got.Status)
	assert.Empty(t, got.CurrentStep)
	assert.Equal(t, "Henson Trucking LLC", got.ClientName)
	assert.Equal(t, "Transportation", got.Industry)
	assert.Equal(t, 15, got.FleetSize)
	assert.Equal(t, "42xx", got.BICCode)
	assert.Equal(t, 1.90, got.BaseRatePer1000)
	assert.Equal(t, int64(1_500_000), got.EstimatedAnnualRevenue)
	assert.Equal(t, 2850.00, got.BasePremium)
	assert.Equal(t, 2992.50, got.FinalPremium)
	require.NotNil(t, got.PremiumModifiers)
	assert.Equal(t, 1.05, got.PremiumModifiers.CoverageLimitFactor)
	assert.Equal(t, model.AuthorityManager, got.AuthorityCheck)
	assert.True(t, got.ReferralRequired)
	assert.Contains(t, got.CoverageLimitations, "driver experience requirements")
	assert.Equal(t, model.RiskUnknown, got.RiskLevel)
	assert.False(t, got.RequiresHumanReview)
	assert.Contains(t, got.ResponseEmail, "Dear Sarah")
	assert.NotNil(t, got.ProcessingEndTime)

	for _, step := range model.StepOrder {
		_, ok := got.Steps[step]
		assert.True(t, ok, "missing step record for %s", step)
	}
}

func TestPipelineHighRiskGatesResponse(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	gen.On("GenerateText", mock.Anything, mock.Anything).
		Return("PRIORITY ALERT: Henson Trucking LLC requires review")

	assessor := new(mockAssessor)
	assessor.On("Assess", mock.Anything, "Henson Trucking LLC").Return(&model.RiskAssessment{
		CompanyName:    "Henson Trucking LLC",
		AssessmentDate: time.Now().UTC(),
		Result: model.RiskAssessmentResult{
			OverallRiskLevel: model.RiskHigh,
			RiskFactors:      []string{"recent large claims"},
		},
		UnderwriterSummary: "INSURANCE RISK ASSESSMENT SUMMARY",
	})

	p, st := newTestPipeline(t, gen, assessor)
	rec := newTestCase(t, st, truckingEmail)

	require.NoError(t, p.Start(context.Background(), rec.ID))

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, model.CaseStatusHumanReview, got.Status)
	assert.True(t, got.RequiresHumanReview)
	assert.Equal(t, "Risk assessment indicates high risk level requiring human review", got.HumanReviewReason)
	assert.Contains(t, got.ReviewNotification, "PRIORITY ALERT")
	assert.Empty(t, got.ResponseEmail)
	assert.Equal(t, model.RiskHigh, got.RiskLevel)
	assert.Equal(t, []string{"recent large claims"}, got.RiskFactors)

	_, ok := got.Steps[model.StepResponseEmail]
	assert.False(t, ok, "response email step must not run for gated cases")
}

func TestPipelineProhibitedIndustryGatesAtLowRisk(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateStructured", mock.Anything, stepMatch(model.StepExtraction), mock.Anything).
		Run(fillStructured(t, model.EmailInfo{
			ClientName: "Sparkler City Inc",
			Industry:   "Fireworks wholesale",
			CoverageRequested: model.CoverageRequested{
				Type:   "General Liability",
				Limits: "$1M",
			},
			Urgency:       "standard",
			BrokerContact: model.BrokerContact{Name: "Tom Reyes"},
		})).Return(nil)
	gen.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	gen.On("GenerateText", mock.Anything, mock.Anything).
		Return("PRIORITY ALERT: prohibited class submission")

	assessor := new(mockAssessor)
	assessor.On("Assess", mock.Anything, "Sparkler City Inc").Return(&model.RiskAssessment{
		CompanyName: "Sparkler City Inc",
		Result:      model.RiskAssessmentResult{OverallRiskLevel: model.RiskLow},
	})

	p, st := newTestPipeline(t, gen, assessor)
	rec := newTestCase(t, st, "Quote request for Sparkler City Inc, a fireworks wholesaler.")

	require.NoError(t, p.Start(context.Background(), rec.ID))

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)

	assert.Equal(t, model.CaseStatusHumanReview, got.Status)
	assert.Equal(t, model.ProhibitedBIC, got.BICCode)
	assert.Equal(t, "Industry falls under prohibited classification", got.HumanReviewReason)
	assert.Equal(t, model.AuthorityProhibited, got.AuthorityCheck)
	assert.Equal(t, 0.0, got.BaseRatePer1000)
	assert.Equal(t, int64(0), got.EstimatedAnnualRevenue)
	assert.Equal(t, 0.0, got.FinalPremium)
	assert.Empty(t, got.ResponseEmail)
}

func TestPipelineResumeFromPremiumModifiers(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	gen.On("GenerateText", mock.Anything, mock.Anything).
		Return("Subject: Your quote\n\nDear Sarah,\n...")

	p, st := newTestPipeline(t, gen, nil)
	rec := newTestCase(t, st, truckingEmail)
	require.NoError(t, p.Start(context.Background(), rec.ID))

	require.NoError(t, p.ResumeFrom(context.Background(), rec.ID, model.StepPremiumModifiers))

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusCompleted, got.Status)
	assert.Equal(t, 2992.50, got.FinalPremium)
	assert.Empty(t, got.ErrorMessage)
}

func TestPipelineResumeClearsStaleGate(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	gen.On("GenerateText", mock.Anything, mock.Anything).
		Return("Subject: Your quote\n\nDear Sarah,\n...")

	highAssessor := new(mockAssessor)
	highAssessor.On("Assess", mock.Anything, mock.Anything).Return(&model.RiskAssessment{
		CompanyName: "Henson Trucking LLC",
		Result:      model.RiskAssessmentResult{OverallRiskLevel: model.RiskHigh},
	})

	p, st := newTestPipeline(t, gen, highAssessor)
	rec := newTestCase(t, st, truckingEmail)
	require.NoError(t, p.Start(context.Background(), rec.ID))

	gated, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.CaseStatusHumanReview, gated.Status)

	// Re-run the assessment against a source that now rates the company low.
	lowAssessor := new(mockAssessor)
	lowAssessor.On("Assess", mock.Anything, mock.Anything).Return(&model.RiskAssessment{
		CompanyName: "Henson Trucking LLC",
		Result:      model.RiskAssessmentResult{OverallRiskLevel: model.RiskLow},
	})
	p2 := New(st, gen, lowAssessor)
	require.NoError(t, p2.ResumeFrom(context.Background(), rec.ID, model.StepRiskAssessment))

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusCompleted, got.Status)
	assert.False(t, got.RequiresHumanReview)
	assert.Empty(t, got.HumanReviewReason)
	assert.Empty(t, got.ReviewNotification)
	assert.Contains(t, got.ResponseEmail, "Dear Sarah")
}

func TestPipelineResumeClearsStaleResponse(t *testing.T) {
	gen := new(mockGenerator)
	gen.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	gen.On("GenerateText", mock.Anything, mock.Anything).
		Return("Subject: Your quote\n\nDear Sarah,\n...")

	p, st := newTestPipeline(t, gen, nil)
	rec := newTestCase(t, st, truckingEmail)
	require.NoError(t, p.Start(context.Background(), rec.ID))

	done, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	require.Equal(t, model.CaseStatusCompleted, done.Status)
	require.NotEmpty(t, done.ResponseEmail)

	highAssessor := new(mockAssessor)
	highAssessor.On("Assess", mock.Anything, mock.Anything).Return(&model.RiskAssessment{
		CompanyName: "Henson Trucking LLC",
		Result:      model.RiskAssessmentResult{OverallRiskLevel: model.RiskExtreme},
	})
	genGated := new(mockGenerator)
	genGated.On("GenerateStructured", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("api unavailable"))
	genGated.On("GenerateText", mock.Anything, mock.Anything).
		Return("PRIORITY ALERT: re-rated extreme")

	p2 := New(st, genGated, highAssessor)
	require.NoError(t, p2.ResumeFrom(context.Background(), rec.ID, model.StepRiskAssessment))

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusHumanReview, got.Status)
	assert.True(t, got.RequiresHumanReview)
	assert.Empty(t, got.ResponseEmail)

	_, ok := got.Steps[model.StepResponseEmail]
	assert.False(t, ok, "stale response email record must not survive a gated re-run")
}

func TestPipelineResumeWithoutPredecessorFails(t *testing.T) {
	gen := new(mockGenerator)
	p, st := newTestPipeline(t, gen, nil)
	rec := newTestCase(t, st, truckingEmail)

	err := p.ResumeFrom(context.Background(), rec.ID, model.StepBaseRate)
	require.Error(t, err)

	got, err := st.GetCase(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CaseStatusFailed, got.Status)
	assert.NotEmpty(t, got.ErrorMessage)
}

func TestPairFailureAttribution(t *testing.T) {
	cause := errors.New("record write failed")

	step, err := pairFailure(&stepFailure{step: model.StepCoverageDetails, err: cause})
	assert.Equal(t, model.StepCoverageDetails, step)
	assert.Equal(t, cause, err)

	step, err = pairFailure(&stepFailure{step: model.StepAuthorityCheck, err: cause})
	assert.Equal(t, model.StepAuthorityCheck, step)
	assert.Equal(t, cause, err)

	// Errors from outside the pair (context cancellation) default to the
	// authority step, which is also the recorded current_step.
	step, err = pairFailure(cause)
	assert.Equal(t, model.StepAuthorityCheck, step)
	assert.Equal(t, cause, err)
}

func TestPipelineResumeUnknownStep(t *testing.T) {
	gen := new(mockGenerator)
	p, _ := newTestPipeline(t, gen, nil)

	err := p.ResumeFrom(context.Background(), "some-id", model.Step("premium_wizardry"))
	assert.Error(t, err)
}

func TestPipelineUnknownCase(t *testing.T) {
	gen := new(mockGenerator)
	p, _ := newTestPipeline(t, gen, nil)

	err := p.Start(context.Background(), "no-such-case")
	assert.Error(t, err)
}
