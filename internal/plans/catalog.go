package plans

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/alphacut/alphacut-backend/pkg/config"
	"github.com/alphacut/alphacut-backend/pkg/enums"
)

// Plan describes one purchasable tier.
type Plan struct {
	Type        enums.PlanType
	Name        string
	Description string
	PriceID     string
	Price       decimal.Decimal
	Currency    enums.Currency
	Interval    enums.BillingInterval
	PaymentLink string
	Features    []string
}

// MonthlyEquivalent spreads the plan price over its months, rounded to cents.
func (p Plan) MonthlyEquivalent() decimal.Decimal {
	if p.Interval == enums.BillingIntervalYear {
		return p.Price.Div(decimal.NewFromInt(12)).Round(2)
	}
	return p.Price
}

// Source records how a price id was mapped to a plan type.
type Source string

const (
	SourceCatalog  Source = "catalog"
	SourceInterval Source = "interval"
	SourceMarker   Source = "marker"
	SourceDefault  Source = "default"
)

// Catalog holds the paid plans and the price id lookup table.
type Catalog struct {
	plans   map[enums.PlanType]Plan
	byPrice map[string]enums.PlanType
}

var monthlyFeatures = []string{
	"Análises ilimitadas de visagismo",
	"Recomendações completas de cortes",
	"Dicas personalizadas para seu rosto",
	"Histórico completo de análises",
}

var annualExtras = []string{
	"Conteúdo educativo exclusivo",
	"Rastreador de hábitos avançado",
	"Suporte prioritário",
	"Atualizações de novos estilos",
}

// NewCatalog builds the catalog from configuration.
func NewCatalog(stripeCfg config.StripeConfig, plansCfg config.PlansConfig) (*Catalog, error) {
	currency, err := enums.ParseCurrency(plansCfg.Currency)
	if err != nil {
		return nil, err
	}
	monthlyPrice, err := decimal.NewFromString(strings.TrimSpace(plansCfg.MonthlyPrice))
	if err != nil {
		return nil, fmt.Errorf("parsing monthly price: %w", err)
	}
	annualPrice, err := decimal.NewFromString(strings.TrimSpace(plansCfg.AnnualPrice))
	if err != nil {
		return nil, fmt.Errorf("parsing annual price: %w", err)
	}
	if !monthlyPrice.IsPositive() || !annualPrice.IsPositive() {
		return nil, fmt.Errorf("plan prices must be positive")
	}

	annualFeatures := append(append([]string{}, monthlyFeatures...), annualExtras...)

	return New(
		Plan{
			Type:        enums.PlanTypeMonthly,
			Name:        "Plano Mensal",
			Description: "Compromisso flexível",
			PriceID:     strings.TrimSpace(stripeCfg.MonthlyPriceID),
			Price:       monthlyPrice,
			Currency:    currency,
			Interval:    enums.BillingIntervalMonth,
			PaymentLink: strings.TrimSpace(stripeCfg.MonthlyPaymentLink),
			Features:    append([]string{}, monthlyFeatures...),
		},
		Plan{
			Type:        enums.PlanTypeAnnual,
			Name:        "Plano Anual",
			Description: "Melhor custo-benefício",
			PriceID:     strings.TrimSpace(stripeCfg.AnnualPriceID),
			Price:       annualPrice,
			Currency:    currency,
			Interval:    enums.BillingIntervalYear,
			PaymentLink: strings.TrimSpace(stripeCfg.AnnualPaymentLink),
			Features:    annualFeatures,
		},
	)
}

// New builds a catalog from explicit plans. Only paid plan types are accepted
// and price ids must be unique.
func New(plans ...Plan) (*Catalog, error) {
	c := &Catalog{
		plans:   make(map[enums.PlanType]Plan, len(plans)),
		byPrice: make(map[string]enums.PlanType, len(plans)),
	}
	for _, p := range plans {
		if !p.Type.IsPaid() {
			return nil, fmt.Errorf("plan type %q is not purchasable", p.Type)
		}
		if _, dup := c.plans[p.Type]; dup {
			return nil, fmt.Errorf("duplicate plan %q", p.Type)
		}
		c.plans[p.Type] = p
		if p.PriceID == "" {
			continue
		}
		if other, dup := c.byPrice[p.PriceID]; dup {
			return nil, fmt.Errorf("price %q already mapped to %q", p.PriceID, other)
		}
		c.byPrice[p.PriceID] = p.Type
	}
	return c, nil
}

// Get returns the plan for the given type.
func (c *Catalog) Get(planType enums.PlanType) (Plan, bool) {
	p, ok := c.plans[planType]
	return p, ok
}

// List returns the plans ordered by price.
func (c *Catalog) List() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Price.LessThan(out[j].Price)
	})
	return out
}

// PlanTypeForPrice looks the price id up in the catalog table.
func (c *Catalog) PlanTypeForPrice(priceID string) (enums.PlanType, bool) {
	planType, ok := c.byPrice[strings.TrimSpace(priceID)]
	return planType, ok
}

// ResolvePlanType maps a purchased price to a paid plan. The catalog table
// wins, then the provider's recurring interval, then a "month" marker in the
// id. Anything else resolves to annual.
func (c *Catalog) ResolvePlanType(priceID string, interval enums.BillingInterval) (enums.PlanType, Source) {
	if planType, ok := c.PlanTypeForPrice(priceID); ok {
		return planType, SourceCatalog
	}
	switch interval {
	case enums.BillingIntervalMonth:
		return enums.PlanTypeMonthly, SourceInterval
	case enums.BillingIntervalYear:
		return enums.PlanTypeAnnual, SourceInterval
	}
	if strings.Contains(strings.ToLower(priceID), "month") {
		return enums.PlanTypeMonthly, SourceMarker
	}
	return enums.PlanTypeAnnual, SourceDefault
}

// AnnualSavings is twelve monthly payments minus the annual price.
func (c *Catalog) AnnualSavings() decimal.Decimal {
	monthly, okM := c.plans[enums.PlanTypeMonthly]
	annual, okA := c.plans[enums.PlanTypeAnnual]
	if !okM || !okA {
		return decimal.Zero
	}
	savings := monthly.Price.Mul(decimal.NewFromInt(12)).Sub(annual.Price)
	if savings.IsNegative() {
		return decimal.Zero
	}
	return savings
}
