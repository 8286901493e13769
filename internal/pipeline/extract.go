package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/atlas-specialty/underwrite-cli/internal/docs"
	"github.com/atlas-specialty/underwrite-cli/internal/llm"
	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

const extractionPrompt = `You are an insurance underwriting assistant. Extract ALL relevant information from this insurance quote request email that would be needed for generating a quote.

Include:
1. Client name
2. Industry (based on their PRIMARY business activity)
3. Coverage requested (type and limits)
4. Fleet size (if mentioned or applicable)
5. Urgency of the request
6. Loss history (if mentioned)
7. Annual revenue (if mentioned)
8. Number of employees (if mentioned)
9. Company size indicators (store square footage, fleet size, etc.)
10. Business description
11. Additional requests or considerations
12. Broker contact information

For industry: Focus on the company's core business function - what they do, not who they serve.
For urgency: Only return one of: "standard", "urgent", "exploratory", or "preliminary"
For coverage_requested.limits: Format as $XM where X is the limit in millions
For fleet_size: Return 0 if not applicable to this business type

Thoroughly analyze the email to identify ALL information that could be relevant for insurance underwriting.
Include an explanation that describes your reasoning for each extracted data point.

Return valid JSON with this shape:
{
  "client_name": "", "industry": "",
  "coverage_requested": {"type": "", "limits": ""},
  "fleet_size": 0, "revenue": 0, "employees": 0, "facility_size": "",
  "urgency": "standard", "loss_history": "", "additional_requests": [],
  "broker_contact": {"name": "", "brokerage": "", "email": ""},
  "business_description": "", "explanation": ""
}

Email content:
%s`

var (
	clientNameRe    = regexp.MustCompile(`for\s+([^,\n.]+)`)
	fleetSizeRe     = regexp.MustCompile(`([0-9]+)\s*(?:commercial)?\s*vehicles?`)
	limitMillionsRe = regexp.MustCompile(`\$([0-9.]+)\s*million`)
)

func (p *Pipeline) stepExtraction(ctx context.Context, rec *model.CaseRecord, st *runState) error {
	var info model.EmailInfo
	err := p.gen.GenerateStructured(ctx, llm.Request{
		Step:      model.StepExtraction,
		Prompt:    fmt.Sprintf(extractionPrompt, st.emailBody),
		Documents: []string{docs.CommercialTemplates},
	}, &info)
	if err != nil {
		zap.L().Warn("extraction falling back to regex",
			zap.String("case_id", rec.ID),
			zap.Error(err))
		info = fallbackEmailExtraction(st.emailBody)
	}
	info.Urgency = model.NormalizeUrgency(info.Urgency)
	st.email = info

	rec.ClientName = info.ClientName
	rec.Industry = info.Industry
	rec.CoverageType = info.CoverageRequested.Type
	rec.CoverageLimits = info.CoverageRequested.Limits
	rec.FleetSize = info.FleetSize
	rec.Urgency = info.Urgency
	rec.LossHistory = info.LossHistory
	rec.AnnualRevenue = info.Revenue
	rec.EmployeeCount = info.Employees
	rec.BusinessDescription = info.BusinessDescription
	rec.BrokerName = info.BrokerContact.Name
	rec.BrokerBrokerage = info.BrokerContact.Brokerage
	rec.BrokerEmail = info.BrokerContact.Email

	return rec.RecordStep(model.StepExtraction, st.emailBody, info, info.Explanation)
}

// fallbackEmailExtraction is the regex-based extraction used when the
// generator cannot produce usable JSON. Unmatched fields stay at their
// schema defaults.
func fallbackEmailExtraction(body string) model.EmailInfo {
	info := model.DefaultEmailInfo("extracted via regex fallback")

	if m := clientNameRe.FindStringSubmatch(body); m != nil {
		info.ClientName = strings.TrimSpace(m[1])
	}
	if m := fleetSizeRe.FindStringSubmatch(body); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			info.FleetSize = n
		}
	}
	if m := limitMillionsRe.FindStringSubmatch(body); m != nil {
		info.CoverageRequested.Limits = fmt.Sprintf("$%sM", m[1])
	}

	lower := strings.ToLower(body)
	switch {
	case strings.Contains(lower, "transport"):
		info.Industry = "Transportation"
	case strings.Contains(lower, "manufactur"):
		info.Industry = "Manufacturing"
	}

	switch {
	case strings.Contains(lower, "liability"):
		info.CoverageRequested.Type = "Liability Insurance"
	case strings.Contains(lower, "fleet"):
		info.CoverageRequested.Type = "Commercial Fleet Insurance"
	}

	return info
}
