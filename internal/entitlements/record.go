package entitlements

import (
	"time"

	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// Record is the per-session entitlement snapshot. It is always persisted whole.
type Record struct {
	Plan          enums.PlanType `json:"plan"`
	AnalysisCount int            `json:"analysisCount"`
	StartDate     *time.Time     `json:"startDate,omitempty"`
	ExpiresAt     *time.Time     `json:"expiresAt,omitempty"`
}

// NewRecord returns the record every session starts with.
func NewRecord() Record {
	return Record{Plan: enums.PlanTypeFree}
}

// Validate checks the record invariants.
func (r Record) Validate() error {
	if !r.Plan.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid plan").
			WithDetails(map[string]string{"plan": string(r.Plan)})
	}
	if r.AnalysisCount < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "analysis count must be non-negative")
	}
	if r.Plan == enums.PlanTypeFree && (r.StartDate != nil || r.ExpiresAt != nil) {
		return pkgerrors.New(pkgerrors.CodeValidation, "free plan cannot carry dates")
	}
	return nil
}

// ExpiryFor applies calendar arithmetic: one month for monthly, one year for
// annual. Day overflow normalizes forward (Jan 31 + 1 month lands in March).
func ExpiryFor(plan enums.PlanType, start time.Time) (time.Time, bool) {
	switch plan {
	case enums.PlanTypeMonthly:
		return start.AddDate(0, 1, 0), true
	case enums.PlanTypeAnnual:
		return start.AddDate(1, 0, 0), true
	default:
		return time.Time{}, false
	}
}
