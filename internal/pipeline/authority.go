package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const authorityPrompt = `You are an insurance underwriting assistant. Determine if the requested coverage limit falls within the underwriter's authority level based on the BIC code.

Reference the authority-levels document.

Include an explanation that describes your reasoning process, including what authority level thresholds you considered and why you reached your conclusion.

Return valid JSON: {"authority_check": "", "referral_required": false, "explanation": ""}

Coverage Limit: %s
BIC Code: %s`

var coverageLimitRe = regexp.MustCompile(`\$?([0-9.]+)\s*[mM]`)

// ParseCoverageLimit converts a limit string like "$2M" or "5 million" to
// dollars. Unparseable input defaults to $1,000,000.
func ParseCoverageLimit(limits string) float64 {
	m := coverageLimitRe.FindStringSubmatch(limits)
	if m == nil {
		return 1_000_000
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 1_000_000
	}
	return v * 1_000_000
}

// authorityCheck computes the authority determination and returns a closure
// that records it. The closure runs after the concurrent pair completes, so
// step records and scalar mirrors are written from a single goroutine.
func (p *Pipeline) authorityCheck(ctx context.Context, rec *model.CaseRecord, st *runState) (func() error, error) {
	limit := ParseCoverageLimit(st.email.CoverageRequested.Limits)

	var auth model.AuthorityInfo
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepAuthorityCheck,
		Prompt:    fmt.Sprintf(authorityPrompt, formatUSD(limit), st.industry.BICCode),
		Documents: []string{docs.AuthorityLevels},
	}, &auth)
	if err != nil {
		zap.L().Warn("authority check falling back to static tiers",
			zap.String("case_id", rec.ID),
			zap.Error(err))
		auth = fallbackAuthorityCheck(limit, st.industry.BICCode)
	}

	return func() error {
		st.authority = auth
		rec.AuthorityCheck = auth.AuthorityCheck
		rec.ReferralRequired = auth.ReferralRequired
		return rec.RecordStep(model.StepAuthorityCheck,
			map[string]any{"coverage_limit": limit, "bic_code": st.industry.BICCode},
			auth, auth.Explanation)
	}, nil
}

// authorityTiers are the escalation thresholds in dollars, lowest first:
// underwriter, senior underwriter, manager. Anything above the manager tier
// requires regional approval.
var authorityTiers = map[string][3]float64{
	"standard":     {1_000_000, 2_000_000, 5_000_000},
	"non-standard": {500_000, 1_000_000, 2_000_000},
}

func fallbackAuthorityCheck(coverageLimit float64, bicCode string) model.AuthorityInfo {
	if bicCode == model.ProhibitedBIC {
		return model.AuthorityInfo{
			AuthorityCheck:   model.AuthorityProhibited,
			ReferralRequired: true,
			Explanation:      "prohibited classification",
		}
	}

	tierClass := "standard"
	if bicCode == "58xx" {
		tierClass = "non-standard"
	}
	tiers := authorityTiers[tierClass]

	info := model.AuthorityInfo{
		ReferralRequired: true,
		Explanation:      fmt.Sprintf("static %s authority tiers", tierClass),
	}
	switch {
	case coverageLimit <= tiers[0]:
		info.AuthorityCheck = model.AuthorityApproved
		info.ReferralRequired = false
	case coverageLimit <= tiers[1]:
		info.AuthorityCheck = model.AuthoritySeniorReferral
	case coverageLimit <= tiers[2]:
		info.AuthorityCheck = model.AuthorityManager
	default:
		info.AuthorityCheck = model.AuthorityRegional
	}
	return info
}
