package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const responseEmailPrompt = `You are an insurance underwriter. Generate a professional response email for an insurance quote request with the following information:

The email should:
1. Be professionally formatted
2. Include a subject line
3. Address the broker by name
4. Provide the quote details (or explain why a quote cannot be provided)
5. Request any additional information needed
6. Include standard closing
7. Maintain a personalized tone that responds to the specific context, questions, and concerns raised in the original email

IMPORTANT: This is an external communication with a broker. DO NOT include any internal risk assessment information, risk levels, or detailed company risk factors. Those are for internal use only. DO NOT mention the internal reference documents you are drawing on.

Do not include any placeholders like [Insurance Company Representative].
Use "Insurance Underwriter" in the signature if no other name is provided.

Reference the policy-form-library document to cite specific policy forms by number, particularly when mentioning coverages and endorsements.

Reference the commercial-lines-app-templates document to identify any additional information that would be required to complete the application, and request that information if it appears to be missing from the original submission.

Original Email:
%s

Client Name: %s
Coverage Requested: %s with %s
Final Premium: %s
Coverage Limitations: %s
Recommended Endorsements: %s
Broker Name: %s`

const reviewNotificationPrompt = `Generate a concise notification for the underwriting team about a high-risk quote request that requires human review.

Include:
1. Client name and industry
2. Brief summary of the coverage requested
3. The specific reason human review is required: %s
4. Key risk factors identified in the assessment
5. Any authority considerations

Format the notification as a prioritized alert for immediate attention.

Client: %s
Industry: %s
Coverage: %s with limits %s
Risk Level: %s
Authority: %s`

func (p *Pipeline) stepResponseEmail(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	clientName := st.email.ClientName
	if clientName == "" {
		clientName = "the client"
	}
	coverageType := st.email.CoverageRequested.Type
	if coverageType == "" {
		coverageType = "insurance coverage"
	}
	limits := st.email.CoverageRequested.Limits
	if limits == "" {
		limits = "unspecified limits"
	}
	brokerName := st.email.BrokerContact.Name
	if brokerName == "" {
		brokerName = "Insurance Broker"
	}
	limitations := st.coverage.CoverageLimitations
	if limitations == "" {
		limitations = "Standard terms apply."
	}
	endorsements := strings.Join(st.coverage.RecommendedEndorsements, ", ")
	if endorsements == "" {
		endorsements = "None specified"
	}

	prompt := fmt.Sprintf(responseEmailPrompt,
		st.emailBody,
		clientName,
		coverageType, limits,
		formatUSD(st.premium.FinalPremium),
		limitations,
		endorsements,
		brokerName)

	// GenerateText never fails: a generation error comes back as the body
	// text, which the reviewer sees before anything is sent.
	email := p.gen.GenerateText(ctx, llm.Request{
		Step:      model.StepResponseEmail,
		Prompt:    prompt,
		Documents: []string{docs.PolicyFormLibrary, docs.CommercialTemplates},
	})

	rec.ResponseEmail = email
	return rec.RecordStep(model.StepResponseEmail, clientName, email, "drafted broker response")
}

// reviewNotification drafts the internal alert for a gated case.
func (p *Pipeline) reviewNotification(ctx context.Context, rec *model.CaseRecord, st *runState) string {
	clientName := st.email.ClientName
	if clientName == "" {
		clientName = "Unknown client"
	}
	industry := st.email.Industry
	if industry == "" {
		industry = "Unknown industry"
	}
	coverageType := st.email.CoverageRequested.Type
	if coverageType == "" {
		coverageType = "Unknown"
	}
	limits := st.email.CoverageRequested.Limits
	if limits == "" {
		limits = "unspecified"
	}
	riskLevel := model.RiskUnknown
	if st.assessment != nil {
		riskLevel = st.assessment.Result.OverallRiskLevel
	}
	authority := st.authority.AuthorityCheck
	if authority == "" {
		authority = "not determined"
	}

	return p.gen.GenerateText(ctx, llm.Request{
		Step: model.StepResponseEmail,
		Prompt: fmt.Sprintf(reviewNotificationPrompt,
			rec.HumanReviewReason,
			clientName,
			industry,
			coverageType, limits,
			riskLevel,
			authority),
	})
}
