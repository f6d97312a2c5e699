package controllers

import (
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/alphacut/alphacut-backend/api/responses"
	"github.com/alphacut/alphacut-backend/internal/plans"
	"github.com/alphacut/alphacut-backend/pkg/enums"
	pkgerrors "github.com/alphacut/alphacut-backend/pkg/errors"
	"github.com/alphacut/alphacut-backend/pkg/logger"
)

// PlanCatalog lists the purchasable plans.
type PlanCatalog interface {
	List() []plans.Plan
	AnnualSavings() decimal.Decimal
}

type planResponse struct {
	Type              enums.PlanType        `json:"type"`
	Name              string                `json:"name"`
	Description       string                `json:"description"`
	PriceID           string                `json:"priceId,omitempty"`
	Price             string                `json:"price"`
	MonthlyEquivalent string                `json:"monthlyEquivalent"`
	Currency          enums.Currency        `json:"currency"`
	Interval          enums.BillingInterval `json:"interval"`
	Features          []string              `json:"features"`
}

type planListResponse struct {
	Plans         []planResponse `json:"plans"`
	AnnualSavings string         `json:"annualSavings"`
}

// PlansList returns the purchasable plans ordered by price.
func PlansList(catalog PlanCatalog, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if catalog == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "plan catalog unavailable"))
			return
		}

		list := catalog.List()
		out := make([]planResponse, 0, len(list))
		for _, p := range list {
			out = append(out, planResponse{
				Type:              p.Type,
				Name:              p.Name,
				Description:       p.Description,
				PriceID:           p.PriceID,
				Price:             p.Price.StringFixed(2),
				MonthlyEquivalent: p.MonthlyEquivalent().StringFixed(2),
				Currency:          p.Currency,
				Interval:          p.Interval,
				Features:          p.Features,
			})
		}
		responses.WriteSuccess(w, planListResponse{
			Plans:         out,
			AnnualSavings: catalog.AnnualSavings().StringFixed(2),
		})
	}
}
