package entitlements

import (
	"time"

	"github.com/alphacut/alphacut-backend/pkg/db/models"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
)

// Subscribe moves the record onto a paid plan starting at now. The analysis
// count carries over.
func Subscribe(rec Record, plan enums.PlanType, now time.Time) (Record, error) {
	if !plan.IsPaid() {
		return rec, pkgerrors.New(pkgerrors.CodeValidation, "plan must be monthly or annual").
			WithDetails(map[string]string{"plan": string(plan)})
	}
	start := now.UTC()
	expires, _ := ExpiryFor(plan, start)
	return Record{
		Plan:          plan,
		AnalysisCount: rec.AnalysisCount,
		StartDate:     &start,
		ExpiresAt:     &expires,
	}, nil
}

// CancelSubscription drops the record back to free and clears its dates.
func CancelSubscription(rec Record) Record {
	return Record{
		Plan:          enums.PlanTypeFree,
		AnalysisCount: rec.AnalysisCount,
	}
}

// IncrementAnalysis records one more analysis. There is no ceiling.
func IncrementAnalysis(rec Record) Record {
	rec.AnalysisCount++
	return rec
}

// Sync overlays the durable subscription on the replica. An entitling
// subscription whose period has not ended sets the plan and window; anything
// else yields free. The analysis count is never touched.
func Sync(rec Record, durable *models.Subscription, now time.Time) Record {
	if durable == nil || !durable.Status.Entitles() || !durable.PlanType.IsPaid() {
		return CancelSubscription(rec)
	}
	if durable.CurrentPeriodEnd != nil && !now.Before(*durable.CurrentPeriodEnd) {
		return CancelSubscription(rec)
	}

	start := now.UTC()
	switch {
	case durable.CurrentPeriodStart != nil:
		start = durable.CurrentPeriodStart.UTC()
	case rec.StartDate != nil && rec.Plan == durable.PlanType:
		start = rec.StartDate.UTC()
	}

	var expires time.Time
	if durable.CurrentPeriodEnd != nil {
		expires = durable.CurrentPeriodEnd.UTC()
	} else {
		expires, _ = ExpiryFor(durable.PlanType, start)
	}

	return Record{
		Plan:          durable.PlanType,
		AnalysisCount: rec.AnalysisCount,
		StartDate:     &start,
		ExpiresAt:     &expires,
	}
}
