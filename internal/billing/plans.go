package billing

import "github.com/datacove/datacove/internal/model"

// PlanFeatures maps a plan name to the entitlements cached on the
// subscription when checkout completes. Unknown plan names fall back to the
// Basic tier.
var planFeatures = map[string]model.Entitlements{
	"Basic (Free Trial)": {
		Seats:          1,
		MonthlyUploads: 100,
	},
	"Business": {
		Seats:             3,
		MonthlyUploads:    1000,
		AdvancedReporting: true,
	},
	"Enterprise": {
		Seats:             10,
		MonthlyUploads:    10000,
		UnlimitedUploads:  true,
		UnlimitedSeats:    true,
		AdvancedReporting: true,
		APIAccess:         true,
		DedicatedSupport:  true,
	},
}

// FeaturesForPlan resolves the entitlement snapshot for a plan name.
func FeaturesForPlan(name string) model.Entitlements {
	if f, ok := planFeatures[name]; ok {
		return f
	}
	return planFeatures["Basic (Free Trial)"]
}
