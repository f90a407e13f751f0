package enums

import "fmt"

// BillingPlan names a recurring-charge cadence expressed in weeks.
type BillingPlan string

const (
	BillingPlan4Week  BillingPlan = "4_WEEK"
	BillingPlan26Week BillingPlan = "26_WEEK"
	BillingPlan52Week BillingPlan = "52_WEEK"
)

var planCadences = map[BillingPlan]int{
	BillingPlan4Week:  4,
	BillingPlan26Week: 26,
	BillingPlan52Week: 52,
}

var validBillingPlans = []BillingPlan{
	BillingPlan4Week,
	BillingPlan26Week,
	BillingPlan52Week,
}

// String implements fmt.Stringer.
func (b BillingPlan) String() string {
	return string(b)
}

// IsValid reports whether the value is a known BillingPlan.
func (b BillingPlan) IsValid() bool {
	_, ok := planCadences[b]
	return ok
}

// CadenceWeeks returns the number of weeks between charges for the plan.
func (b BillingPlan) CadenceWeeks() int {
	return planCadences[b]
}

// ParseBillingPlan converts raw input into a BillingPlan.
func ParseBillingPlan(value string) (BillingPlan, error) {
	for _, candidate := range validBillingPlans {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing plan %q", value)
}
