// Package risk assesses client-company risk from external search signals.
// The assessor never returns an error: total failure produces an
// unknown-level assessment object so the pipeline can keep moving.
package risk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
	"github.com/atlas-specialty/underwrite-cli/internal/resilience"
	"github.com/atlas-specialty/underwrite-cli/pkg/serp"
)

const assessmentPrompt = `You are an expert insurance risk assessor. Analyze the following company data and provide a comprehensive risk assessment including:
1. Financial Stability Analysis
2. Industry Risk Factors
3. Claims History Analysis
4. Market Position Assessment
5. Overall Risk Rating (must be EXACTLY one of: "low", "medium", "high", or "extreme")

Company Data:
%s

Recent News and Updates:
%s

Return your assessment as valid JSON with exactly these fields:
{
  "overall_risk_level": "one of low, medium, high, extreme ONLY",
  "risk_factors": ["specific risk factors identified"],
  "financial_stability": "assessment of financial stability",
  "market_position": "assessment of market position",
  "claims_history": "assessment of claims history",
  "detailed_assessment": "longer detailed assessment narrative"
}`

const summaryPrompt = `You are an expert insurance underwriter summarizer. Create a clear, concise underwriter summary from this risk assessment.
Include:
- Executive Summary (2-3 sentences)
- Key Risk Factors (bulleted)
- Critical Financial Metrics
- Recommendations
- Overall Risk Rating: %s

Risk Factors:
%s

Financial Stability:
%s

Detailed Assessment:
%s`

// SignalCache is the store subset the assessor uses for cached search
// signals. Satisfied by store.Store.
type SignalCache interface {
	GetCachedSignals(ctx context.Context, companyName string) ([]model.CompanySignal, error)
	SetCachedSignals(ctx context.Context, companyName string, signals []model.CompanySignal, ttl time.Duration) error
}

// Assessor produces company risk assessments from search signals.
type Assessor struct {
	search   serp.Client
	gen      llm.Generator
	cache    SignalCache
	cacheTTL time.Duration
	retry    resilience.RetryConfig
	now      func() time.Time
}

// NewAssessor creates an Assessor. cache may be nil to disable signal caching.
func NewAssessor(search serp.Client, gen llm.Generator, cache SignalCache, cacheTTL time.Duration) *Assessor {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("serp", "search")
	return &Assessor{
		search:   search,
		gen:      gen,
		cache:    cache,
		cacheTTL: cacheTTL,
		retry:    retryCfg,
		now:      time.Now,
	}
}

// Assess builds the full risk assessment for a company. It always returns a
// populated assessment; failures degrade to the unknown-level object.
func (a *Assessor) Assess(ctx context.Context, companyName string) *model.RiskAssessment {
	signals := a.fetchSignals(ctx, companyName)

	assessment := &model.RiskAssessment{
		CompanyName:    companyName,
		AssessmentDate: a.now().UTC(),
		Signals:        signals,
	}

	result, err := a.rate(ctx, signals)
	if err != nil {
		zap.L().Error("risk rating failed, recording unknown assessment",
			zap.String("company", companyName),
			zap.Error(err))
		assessment.Result = failedResult(err)
	} else {
		assessment.Result = result
	}

	assessment.UnderwriterSummary = a.summarize(ctx, assessment)
	return assessment
}

// fetchSignals gathers financial and claims-news search results, consulting
// the signal cache first. Search failure is tolerated; the rating then runs
// on whatever signals were gathered.
func (a *Assessor) fetchSignals(ctx context.Context, companyName string) []model.CompanySignal {
	if a.cache != nil {
		cached, err := a.cache.GetCachedSignals(ctx, companyName)
		if err != nil {
			zap.L().Warn("signal cache read failed", zap.Error(err))
		} else if cached != nil {
			zap.L().Debug("signal cache hit", zap.String("company", companyName))
			return cached
		}
	}

	var signals []model.CompanySignal

	financials, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*serp.SearchResponse, error) {
		return a.search.Search(ctx, serp.SearchRequest{
			Query: fmt.Sprintf("%s company financials annual report", companyName),
		})
	})
	if err != nil {
		zap.L().Warn("company financials search failed",
			zap.String("company", companyName),
			zap.Error(err))
	} else {
		for _, r := range financials.OrganicResults {
			signals = append(signals, model.CompanySignal{
				Title:   r.Title,
				Snippet: r.Snippet,
				Link:    r.Link,
				Source:  "search",
			})
		}
	}

	news, err := resilience.DoVal(ctx, a.retry, func(ctx context.Context) (*serp.SearchResponse, error) {
		return a.search.Search(ctx, serp.SearchRequest{
			Query: fmt.Sprintf("%s insurance claims news", companyName),
			News:  true,
		})
	})
	if err != nil {
		zap.L().Warn("claims news search failed",
			zap.String("company", companyName),
			zap.Error(err))
	} else {
		for _, r := range news.NewsResults {
			signals = append(signals, model.CompanySignal{
				Title:   r.Title,
				Snippet: r.Snippet,
				Link:    r.Link,
				Date:    r.Date,
				Source:  "news",
			})
		}
	}

	if a.cache != nil && len(signals) > 0 {
		if err := a.cache.SetCachedSignals(ctx, companyName, signals, a.cacheTTL); err != nil {
			zap.L().Warn("signal cache write failed", zap.Error(err))
		}
	}
	return signals
}

func (a *Assessor) rate(ctx context.Context, signals []model.CompanySignal) (model.RiskAssessmentResult, error) {
	var companySignals, newsSignals []model.CompanySignal
	for _, s := range signals {
		if s.Source == "news" {
			newsSignals = append(newsSignals, s)
		} else {
			companySignals = append(companySignals, s)
		}
	}

	// Raw rating with a free-form level string; the enum is enforced below,
	// never trusted from the model.
	var raw struct {
		OverallRiskLevel   string   `json:"overall_risk_level"`
		RiskFactors        []string `json:"risk_factors"`
		FinancialStability string   `json:"financial_stability"`
		MarketPosition     string   `json:"market_position"`
		ClaimsHistory      string   `json:"claims_history"`
		DetailedAssessment string   `json:"detailed_assessment"`
	}

	prompt := fmt.Sprintf(assessmentPrompt, signalJSON(companySignals), signalJSON(newsSignals))
	err := a.gen.GenerateStructured(ctx, llm.Request{
		Step:   model.StepRiskAssessment,
		Prompt: prompt,
	}, &raw)
	if err != nil {
		return model.RiskAssessmentResult{}, err
	}

	return model.RiskAssessmentResult{
		OverallRiskLevel:   model.NormalizeRiskLevel(raw.OverallRiskLevel),
		RiskFactors:        raw.RiskFactors,
		FinancialStability: raw.FinancialStability,
		MarketPosition:     raw.MarketPosition,
		ClaimsHistory:      raw.ClaimsHistory,
		DetailedAssessment: raw.DetailedAssessment,
	}, nil
}

// summarize produces the formatted underwriter-only summary block.
func (a *Assessor) summarize(ctx context.Context, assessment *model.RiskAssessment) string {
	r := assessment.Result
	body := a.gen.GenerateText(ctx, llm.Request{
		Step: model.StepRiskAssessment,
		Prompt: fmt.Sprintf(summaryPrompt,
			r.OverallRiskLevel,
			strings.Join(r.RiskFactors, ", "),
			r.FinancialStability,
			r.DetailedAssessment),
	})

	return fmt.Sprintf(`INSURANCE RISK ASSESSMENT SUMMARY
================================
Company: %s
Assessment Date: %s
Overall Risk Level: %s
--------------------------------

%s

--------------------------------
Generated by the risk assessment agent
Last Updated: %s`,
		assessment.CompanyName,
		assessment.AssessmentDate.Format(time.RFC3339),
		strings.ToUpper(string(r.OverallRiskLevel)),
		body,
		a.now().UTC().Format("2006-01-02 15:04:05"))
}

func failedResult(err error) model.RiskAssessmentResult {
	return model.RiskAssessmentResult{
		OverallRiskLevel:   model.RiskUnknown,
		RiskFactors:        []string{"Unable to assess risk factors"},
		FinancialStability: "Unknown",
		MarketPosition:     "Unknown",
		ClaimsHistory:      "Unknown",
		DetailedAssessment: fmt.Sprintf("Risk assessment failed: %v", err),
	}
}

func signalJSON(signals []model.CompanySignal) string {
	if len(signals) == 0 {
		return "[]"
	}
	data, err := json.MarshalIndent(signals, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(data)
}
