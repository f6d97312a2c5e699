package enums

import "fmt"

// PlanType is the entitlement tier a user holds.
type PlanType string

const (
	PlanTypeFree    PlanType = "free"
	PlanTypeMonthly PlanType = "monthly"
	PlanTypeAnnual  PlanType = "annual"
)

var validPlanTypes = []PlanType{
	PlanTypeFree,
	PlanTypeMonthly,
	PlanTypeAnnual,
}

// String implements fmt.Stringer.
func (p PlanType) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PlanType.
func (p PlanType) IsValid() bool {
	for _, candidate := range validPlanTypes {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsPaid reports whether the plan is one of the purchasable tiers.
func (p PlanType) IsPaid() bool {
	return p == PlanTypeMonthly || p == PlanTypeAnnual
}

// ParsePlanType converts raw input into a PlanType.
func ParsePlanType(value string) (PlanType, error) {
	for _, candidate := range validPlanTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid plan type %q", value)
}
