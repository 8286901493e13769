package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/atlas-specialty/underwrite-cli/internal/model"
)

func TestFallbackIndustryCode(t *testing.T) {
	tests := []struct {
		industry string
		want     string
	}{
		{"Long-haul trucking", "42xx"},
		{"Freight and Logistics", "42xx"},
		{"Precision manufacturing", "35xx"},
		{"Restaurant group", "58xx"},
		{"Retail store chain", "54xx"},
		{"Fireworks wholesale", model.ProhibitedBIC},
		{"Cannabis dispensary", model.ProhibitedBIC},
		{"Consulting services", "42xx"},
		{"", "42xx"},
	}
	for _, tt := range tests {
		t.Run(tt.industry, func(t *testing.T) {
			assert.Equal(t, tt.want, fallbackIndustryCode(tt.industry).BICCode)
		})
	}
}

func TestFallbackBaseRate(t *testing.T) {
	assert.Equal(t, 1.90, fallbackBaseRate("42xx").BaseRatePer1000)
	assert.Equal(t, 1.20, fallbackBaseRate("35xx").BaseRatePer1000)
	assert.Equal(t, 0.85, fallbackBaseRate("54xx").BaseRatePer1000)
	assert.Equal(t, 1.00, fallbackBaseRate("58xx").BaseRatePer1000)
	assert.Equal(t, 0.00, fallbackBaseRate(model.ProhibitedBIC).BaseRatePer1000)
	assert.Equal(t, 0.00, fallbackBaseRate("99xx").BaseRatePer1000)
}

func TestFallbackRevenueEstimate(t *testing.T) {
	t.Run("prefers stated revenue", func(t *testing.T) {
		rev := fallbackRevenueEstimate("42xx", model.EmailInfo{Revenue: 4_200_000})
		assert.Equal(t, int64(4_200_000), rev.EstimatedAnnualRevenue)
	})

	t.Run("industry defaults", func(t *testing.T) {
		assert.Equal(t, int64(1_500_000), fallbackRevenueEstimate("42xx", model.EmailInfo{}).EstimatedAnnualRevenue)
		assert.Equal(t, int64(3_000_000), fallbackRevenueEstimate("35xx", model.EmailInfo{}).EstimatedAnnualRevenue)
		assert.Equal(t, int64(800_000), fallbackRevenueEstimate("58xx", model.EmailInfo{}).EstimatedAnnualRevenue)
		assert.Equal(t, int64(0), fallbackRevenueEstimate(model.ProhibitedBIC, model.EmailInfo{}).EstimatedAnnualRevenue)
		assert.Equal(t, int64(1_500_000), fallbackRevenueEstimate("99xx", model.EmailInfo{}).EstimatedAnnualRevenue)
	})

	t.Run("doubles above 5M limit", func(t *testing.T) {
		email := model.EmailInfo{CoverageRequested: model.CoverageRequested{Limits: "$10M"}}
		assert.Equal(t, int64(3_000_000), fallbackRevenueEstimate("42xx", email).EstimatedAnnualRevenue)

		email.CoverageRequested.Limits = "$5M"
		assert.Equal(t, int64(1_500_000), fallbackRevenueEstimate("42xx", email).EstimatedAnnualRevenue)
	})
}

func TestParseCoverageLimit(t *testing.T) {
	assert.Equal(t, 2_000_000.0, ParseCoverageLimit("$2M"))
	assert.Equal(t, 500_000.0, ParseCoverageLimit("$0.5m"))
	assert.Equal(t, 3_000_000.0, ParseCoverageLimit("$3 million"))
	assert.Equal(t, 1_000_000.0, ParseCoverageLimit("garbage"))
	assert.Equal(t, 1_000_000.0, ParseCoverageLimit(""))
}

func TestFallbackPremiumModifiers(t *testing.T) {
	tests := []struct {
		limits string
		factor float64
	}{
		{"$10M", 1.25},
		{"$5M", 1.15},
		{"$2M", 1.05},
		{"$1M", 1.0},
		{"", 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.limits, func(t *testing.T) {
			email := model.EmailInfo{CoverageRequested: model.CoverageRequested{Limits: tt.limits}}
			prem := fallbackPremiumModifiers(1000, email)
			assert.Equal(t, tt.factor, prem.Modifiers.CoverageLimitFactor)
			assert.Equal(t, 1000*tt.factor, prem.FinalPremium)
		})
	}

	t.Run("never applies fleet discount", func(t *testing.T) {
		email := model.EmailInfo{FleetSize: 40}
		prem := fallbackPremiumModifiers(1000, email)
		assert.Zero(t, prem.Modifiers.FleetDiscount)
	})
}

func TestFallbackAuthorityCheck(t *testing.T) {
	t.Run("prohibited short-circuits", func(t *testing.T) {
		auth := fallbackAuthorityCheck(500_000, model.ProhibitedBIC)
		assert.Equal(t, model.AuthorityProhibited, auth.AuthorityCheck)
		assert.True(t, auth.ReferralRequired)
	})

	t.Run("standard tiers", func(t *testing.T) {
		assert.Equal(t, model.AuthorityApproved, fallbackAuthorityCheck(1_000_000, "42xx").AuthorityCheck)
		assert.False(t, fallbackAuthorityCheck(1_000_000, "42xx").ReferralRequired)
		assert.Equal(t, model.AuthoritySeniorReferral, fallbackAuthorityCheck(2_000_000, "42xx").AuthorityCheck)
		assert.Equal(t, model.AuthorityManager, fallbackAuthorityCheck(5_000_000, "42xx").AuthorityCheck)
		assert.Equal(t, model.AuthorityRegional, fallbackAuthorityCheck(6_000_000, "42xx").AuthorityCheck)
	})

	t.Run("food service uses non-standard tiers", func(t *testing.T) {
		assert.Equal(t, model.AuthorityApproved, fallbackAuthorityCheck(500_000, "58xx").AuthorityCheck)
		assert.Equal(t, model.AuthoritySeniorReferral, fallbackAuthorityCheck(1_000_000, "58xx").AuthorityCheck)
		assert.Equal(t, model.AuthorityManager, fallbackAuthorityCheck(2_000_000, "58xx").AuthorityCheck)
		assert.Equal(t, model.AuthorityRegional, fallbackAuthorityCheck(2_000_001, "58xx").AuthorityCheck)
	})
}

func TestFallbackCoverageDetails(t *testing.T) {
	t.Run("trucking liability", func(t *testing.T) {
		cov := fallbackCoverageDetails("Trucking", "Commercial Auto Liability")
		assert.Contains(t, cov.CoverageLimitations, "driver experience requirements")
		assert.Equal(t, []string{"Motor Truck Cargo Coverage", "Trailer Interchange Coverage"}, cov.RecommendedEndorsements)
	})

	t.Run("agricultural", func(t *testing.T) {
		cov := fallbackCoverageDetails("Agricultural transport", "Fleet Insurance")
		assert.Contains(t, cov.CoverageLimitations, "agricultural transportation")
		assert.Equal(t, []string{"Agricultural Transport Endorsement"}, cov.RecommendedEndorsements)
	})

	t.Run("default", func(t *testing.T) {
		cov := fallbackCoverageDetails("Software", "Professional Liability")
		assert.Equal(t, "Standard terms and conditions apply.", cov.CoverageLimitations)
		assert.Equal(t, []string{"Additional Insured Endorsement"}, cov.RecommendedEndorsements)
	})
}

func TestFallbackEmailExtraction(t *testing.T) {
	body := "We need a liability quote for Henson Trucking LLC, a transport operation " +
		"running 15 commercial vehicles with a $3 million limit."

	info := fallbackEmailExtraction(body)
	assert.Equal(t, "Henson Trucking LLC", info.ClientName)
	assert.Equal(t, "Transportation", info.Industry)
	assert.Equal(t, 15, info.FleetSize)
	assert.Equal(t, "$3M", info.CoverageRequested.Limits)
	assert.Equal(t, model.UrgencyStandard, info.Urgency)
}

func TestFormatUSD(t *testing.T) {
	assert.Equal(t, "$2,850.00", formatUSD(2850))
	assert.Equal(t, "$2,992.50", formatUSD(2992.5))
	assert.Equal(t, "$0.00", formatUSD(0))
}

func TestRoundCents(t *testing.T) {
	assert.Equal(t, 2992.50, roundCents(2850*1.05))
	assert.Equal(t, 0.01, roundCents(0.005))
}
