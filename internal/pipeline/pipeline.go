// Package pipeline drives an underwriting case through the ordered step
// chain, from email extraction to the drafted broker response. Each step is
// an LLM-backed decision with a deterministic fallback; the driver records
// every step durably before the next one starts.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/internal/store"
)

// Assessor produces the company risk assessment. Implemented by risk.Assessor.
type Assessor interface {
	Assess(ctx context.Context, companyName string) *model.RiskAssessment
}

// Pipeline runs underwriting cases. One Pipeline serves many cases; per-case
// mutable state lives in runState. The caller must not start two concurrent
// runs for the same case id.
type Pipeline struct {
	store    store.Store
	gen      llm.Generator
	assessor Assessor // nil disables risk assessment
}

// New creates a Pipeline. assessor may be nil when no search backend is
// configured; cases then carry an unknown risk level.
func New(st store.Store, gen llm.Generator, assessor Assessor) *Pipeline {
	return &Pipeline{store: st, gen: gen, assessor: assessor}
}

// runState threads step outputs through the chain. On resume, earlier
// entries are rehydrated from the stored step records.
type runState struct {
	emailBody  string
	email      model.EmailInfo
	industry   model.IndustryCode
	baseRate   model.BaseRateInfo
	revenue    model.RevenueInfo
	basePrem   model.BasePremiumInfo
	premium    model.PremiumInfo
	authority  model.AuthorityInfo
	coverage   model.CoverageInfo
	assessment *model.RiskAssessment
}

// Start begins the full chain for a case.
func (p *Pipeline) Start(ctx context.Context, caseID string) error {
	return p.runFrom(ctx, caseID, model.StepExtraction)
}

// ResumeFrom re-executes the chain from a named step forward, using the
// predecessor outputs already stored on the record. Downstream step records
// are overwritten as the chain re-runs.
func (p *Pipeline) ResumeFrom(ctx context.Context, caseID string, step model.Step) error {
	if !model.ValidStep(step) {
		return eris.Errorf("pipeline: unknown step %q", step)
	}
	return p.runFrom(ctx, caseID, step)
}

func (p *Pipeline) runFrom(ctx context.Context, caseID string, from model.Step) error {
	rec, err := p.store.GetCase(ctx, caseID)
	if err != nil {
		return eris.Wrap(err, "pipeline: load case")
	}

	now := time.Now().UTC()
	rec.Status = model.CaseStatusProcessing
	rec.CurrentStep = model.StepInitializing
	rec.ProcessingStartTime = &now
	rec.ProcessingEndTime = nil
	rec.ProcessingTimeMS = 0
	rec.ErrorMessage = ""

	// The gate and response are outcomes of this run, not inputs to it: a
	// re-run must re-derive them or the stale flag leaks into finalize.
	rec.RequiresHumanReview = false
	rec.HumanReviewReason = ""
	rec.ReviewNotification = ""
	rec.ResponseEmail = ""
	delete(rec.Steps, model.StepResponseEmail)

	if err := p.store.UpdateCase(ctx, rec); err != nil {
		return eris.Wrap(err, "pipeline: mark processing")
	}

	zap.L().Info("pipeline start",
		zap.String("case_id", rec.ID),
		zap.String("from_step", string(from)))

	st := &runState{emailBody: rec.Body}
	if from != model.StepExtraction {
		if err := p.rehydrate(rec, st, from); err != nil {
			return p.fail(ctx, rec, from, err)
		}
	}

	if err := p.runSteps(ctx, rec, st, from); err != nil {
		return err
	}
	return p.finalize(ctx, rec, st)
}

// stepIndex returns the position of step in the canonical order.
func stepIndex(step model.Step) int {
	for i, s := range model.StepOrder {
		if s == step {
			return i
		}
	}
	return -1
}

// rehydrate loads the stored outputs of every step before `from` into st.
// A missing predecessor output is a pipeline failure: the resume point has
// nothing to run against.
func (p *Pipeline) rehydrate(rec *model.CaseRecord, st *runState, from model.Step) error {
	fromIdx := stepIndex(from)
	for _, s := range model.StepOrder[:fromIdx] {
		var err error
		switch s {
		case model.StepExtraction:
			err = rec.StepOutput(s, &st.email)
		case model.StepIndustryCode:
			err = rec.StepOutput(s, &st.industry)
		case model.StepBaseRate:
			err = rec.StepOutput(s, &st.baseRate)
		case model.StepRevenueEstimate:
			err = rec.StepOutput(s, &st.revenue)
		case model.StepBasePremium:
			err = rec.StepOutput(s, &st.basePrem)
		case model.StepPremiumModifiers:
			err = rec.StepOutput(s, &st.premium)
		case model.StepAuthorityCheck:
			err = rec.StepOutput(s, &st.authority)
		case model.StepCoverageDetails:
			err = rec.StepOutput(s, &st.coverage)
		case model.StepRiskAssessment:
			var a model.RiskAssessment
			if err = rec.StepOutput(s, &a); err == nil {
				st.assessment = &a
			}
		}
		if err != nil {
			return eris.Wrapf(err, "pipeline: rehydrate %s", s)
		}
	}
	return nil
}

// runSteps executes the ordered chain from `from`. Authority check and
// coverage details have no data dependency on each other and run
// concurrently when both are due.
func (p *Pipeline) runSteps(ctx context.Context, rec *model.CaseRecord, st *runState, from model.Step) error {
	fromIdx := stepIndex(from)

	sequential := []struct {
		step model.Step
		fn   func(context.Context, *model.CaseRecord, *runState) error
	}{
		{model.StepExtraction, p.stepExtraction},
		{model.StepIndustryCode, p.stepIndustryCode},
		{model.StepBaseRate, p.stepBaseRate},
		{model.StepRevenueEstimate, p.stepRevenueEstimate},
		{model.StepBasePremium, p.stepBasePremium},
		{model.StepPremiumModifiers, p.stepPremiumModifiers},
	}
	for _, s := range sequential {
		if stepIndex(s.step) < fromIdx {
			continue
		}
		if err := p.runStep(ctx, rec, s.step, st, s.fn); err != nil {
			return err
		}
	}

	authIdx := stepIndex(model.StepAuthorityCheck)
	covIdx := stepIndex(model.StepCoverageDetails)
	switch {
	case fromIdx <= authIdx:
		if err := p.runConcurrentPair(ctx, rec, st); err != nil {
			return err
		}
	case fromIdx == covIdx:
		if err := p.runStep(ctx, rec, model.StepCoverageDetails, st, p.stepCoverageDetails); err != nil {
			return err
		}
	}

	if fromIdx <= stepIndex(model.StepRiskAssessment) {
		if err := p.runStep(ctx, rec, model.StepRiskAssessment, st, p.stepRiskAssessment); err != nil {
			return err
		}
	}

	// Human-review gate: the response email is generated only for ungated
	// cases. Gated cases get an internal notification instead.
	if p.gateRequiresReview(st) {
		return p.prepareReview(ctx, rec, st)
	}
	return p.runStep(ctx, rec, model.StepResponseEmail, st, p.stepResponseEmail)
}

// runConcurrentPair executes authority check and coverage details in
// parallel. Both step records are written only after both complete, in
// canonical order; a failure in either fails the case.
func (p *Pipeline) runConcurrentPair(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	rec.CurrentStep = model.StepAuthorityCheck
	if err := p.store.UpdateCase(ctx, rec); err != nil {
		return p.fail(ctx, rec, model.StepAuthorityCheck, eris.Wrap(err, "pipeline: mark step"))
	}

	var authRecorded, covRecorded func() error
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		authRecorded, err = p.authorityCheck(gctx, rec, st)
		if err != nil {
			return &stepFailure{step: model.StepAuthorityCheck, err: err}
		}
		return nil
	})
	g.Go(func() error {
		var err error
		covRecorded, err = p.coverageDetails(gctx, rec, st)
		if err != nil {
			return &stepFailure{step: model.StepCoverageDetails, err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		step, cause := pairFailure(err)
		return p.fail(ctx, rec, step, cause)
	}

	for _, r := range []struct {
		step   model.Step
		record func() error
	}{
		{model.StepAuthorityCheck, authRecorded},
		{model.StepCoverageDetails, covRecorded},
	} {
		if err := r.record(); err != nil {
			return p.fail(ctx, rec, r.step, err)
		}
	}
	if err := p.store.UpdateCase(ctx, rec); err != nil {
		return p.fail(ctx, rec, model.StepCoverageDetails, eris.Wrap(err, "pipeline: persist step"))
	}
	return nil
}

// stepFailure tags an error from the concurrent pair with the member that
// produced it, so the failed case records the right current_step.
type stepFailure struct {
	step model.Step
	err  error
}

func (e *stepFailure) Error() string { return e.err.Error() }
func (e *stepFailure) Unwrap() error { return e.err }

func pairFailure(err error) (model.Step, error) {
	var sf *stepFailure
	if errors.As(err, &sf) {
		return sf.step, sf.err
	}
	return model.StepAuthorityCheck, err
}

// runStep marks the step as current, executes fn, and persists the record
// afterwards. fn is responsible for calling rec.RecordStep and mirroring
// quick-access scalars. Any error is terminal for the run.
func (p *Pipeline) runStep(ctx context.Context, rec *model.CaseRecord, step model.Step, st *runState, fn func(context.Context, *model.CaseRecord, *runState) error) error {
	rec.CurrentStep = step
	if err := p.store.UpdateCase(ctx, rec); err != nil {
		return p.fail(ctx, rec, step, eris.Wrap(err, "pipeline: mark step"))
	}

	start := time.Now()
	if err := fn(ctx, rec, st); err != nil {
		return p.fail(ctx, rec, step, err)
	}

	if err := p.store.UpdateCase(ctx, rec); err != nil {
		return p.fail(ctx, rec, step, eris.Wrap(err, "pipeline: persist step"))
	}

	zap.L().Debug("step complete",
		zap.String("case_id", rec.ID),
		zap.String("step", string(step)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

// gateRequiresReview applies the human-review gate: high or extreme risk, or
// a prohibited industry classification. An unknown risk level does not gate;
// an unassessable company proceeds to automatic response.
func (p *Pipeline) gateRequiresReview(st *runState) bool {
	if st.industry.BICCode == model.ProhibitedBIC {
		return true
	}
	return st.assessment != nil && st.assessment.Result.OverallRiskLevel.HighRisk()
}

// prepareReview records the review reason and the internal notification.
// Prohibited classification takes precedence in the reason text.
func (p *Pipeline) prepareReview(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	riskLevel := model.RiskUnknown
	if st.assessment != nil {
		riskLevel = st.assessment.Result.OverallRiskLevel
	}

	rec.RequiresHumanReview = true
	rec.HumanReviewReason = fmt.Sprintf("Risk assessment indicates %s risk level requiring human review", riskLevel)
	if st.industry.BICCode == model.ProhibitedBIC {
		rec.HumanReviewReason = "Industry falls under prohibited classification"
	}
	rec.ReviewNotification = p.reviewNotification(ctx, rec, st)

	zap.L().Info("case gated for human review",
		zap.String("case_id", rec.ID),
		zap.String("reason", rec.HumanReviewReason))
	return p.store.UpdateCase(ctx, rec)
}

// finalize closes out the run: timing, terminal status, cleared step marker.
// Its own failures convert to a failed case, never an unhandled error.
func (p *Pipeline) finalize(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	rec.CurrentStep = model.StepFinalizing

	end := time.Now().UTC()
	rec.ProcessingEndTime = &end
	if rec.ProcessingStartTime != nil {
		rec.ProcessingTimeMS = end.Sub(*rec.ProcessingStartTime).Milliseconds()
	}

	if rec.RequiresHumanReview {
		rec.Status = model.CaseStatusHumanReview
	} else {
		rec.Status = model.CaseStatusCompleted
	}
	rec.CurrentStep = ""

	if err := p.store.UpdateCase(ctx, rec); err != nil {
		return p.fail(ctx, rec, model.StepFinalizing, eris.Wrap(err, "pipeline: finalize"))
	}

	zap.L().Info("pipeline finished",
		zap.String("case_id", rec.ID),
		zap.String("status", string(rec.Status)),
		zap.Int64("processing_time_ms", rec.ProcessingTimeMS))
	return nil
}

// fail marks the case terminally failed at the given step. The last-known
// step records stay on the case for inspection.
func (p *Pipeline) fail(ctx context.Context, rec *model.CaseRecord, step model.Step, cause error) error {
	end := time.Now().UTC()
	rec.Status = model.CaseStatusFailed
	rec.CurrentStep = step
	rec.ErrorMessage = cause.Error()
	rec.ProcessingEndTime = &end
	if rec.ProcessingStartTime != nil {
		rec.ProcessingTimeMS = end.Sub(*rec.ProcessingStartTime).Milliseconds()
	}

	if err := p.store.UpdateCase(ctx, rec); err != nil {
		zap.L().Error("failed to persist failed case",
			zap.String("case_id", rec.ID),
			zap.Error(err))
	}

	zap.L().Error("pipeline failed",
		zap.String("case_id", rec.ID),
		zap.String("step", string(step)),
		zap.Error(cause))
	return eris.Wrapf(cause, "pipeline: step %s", step)
}
