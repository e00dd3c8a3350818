package service

import "github.com/gramfinance/gramfin-go/internal/domain"

// InsurancePlans returns the static recommendation catalogue for the
// rural segment. Premiums and coverage are fixed product facts, not
// underwriting output, so there is nothing to compute per user yet.
func (s *FinancialService) InsurancePlans(_ string) []domain.InsurancePlan {
	return []domain.InsurancePlan{
		{
			Type:        "Livestock Insurance",
			Premium:     "₹50/year",
			Coverage:    "Up to ₹5,000 per animal",
			Description: "Protects against livestock death/disease",
		},
		{
			Type:        "Crop Insurance",
			Premium:     "₹100/year",
			Coverage:    "Up to ₹10,000 per acre",
			Description: "Protects against crop failure",
		},
		{
			Type:        "Health Insurance",
			Premium:     "₹200/year",
			Coverage:    "Up to ₹50,000",
			Description: "Basic health coverage for family",
		},
	}
}
