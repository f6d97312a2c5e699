package entitlements

import (
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// FreeAnalysisAllowance is how many analyses a free record may ever run.
const FreeAnalysisAllowance = 1

// Action names a gated feature.
type Action string

const (
	ActionAnalysis       Action = "analysis"
	ActionPremiumContent Action = "premium_content"
)

// HasAccess reports whether the record is on a paid plan.
func HasAccess(rec Record) bool {
	return rec.Plan != enums.PlanTypeFree
}

// CanAnalyze reports whether a new analysis is permitted.
func CanAnalyze(rec Record) bool {
	return HasAccess(rec) || rec.AnalysisCount < FreeAnalysisAllowance
}

// Permits evaluates the gate for the named action.
func Permits(rec Record, action Action) (bool, error) {
	switch action {
	case ActionAnalysis:
		return CanAnalyze(rec), nil
	case ActionPremiumContent:
		return HasAccess(rec), nil
	default:
		return false, pkgerrors.New(pkgerrors.CodeValidation, "unknown action").
			WithDetails(map[string]string{"action": string(action)})
	}
}

// Access is the evaluated gate for a record.
type Access struct {
	Plan                  enums.PlanType `json:"plan"`
	HasAccess             bool           `json:"hasAccess"`
	CanAnalyze            bool           `json:"canAnalyze"`
	RemainingFreeAnalyses int            `json:"remainingFreeAnalyses"`
}

// Evaluate summarizes the gate for a record.
func Evaluate(rec Record) Access {
	remaining := FreeAnalysisAllowance - rec.AnalysisCount
	if remaining < 0 || HasAccess(rec) {
		remaining = 0
	}
	return Access{
		Plan:                  rec.Plan,
		HasAccess:             HasAccess(rec),
		CanAnalyze:            CanAnalyze(rec),
		RemainingFreeAnalyses: remaining,
	}
}
