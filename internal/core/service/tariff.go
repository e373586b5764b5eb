package service

import (
	"math"
	"time"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
)

// TieredPricingCalculator prices monthly consumption against a seasonal
// three-tier progressive tariff. Each tier's price applies only to the
// consumption that falls inside that tier's band.
type TieredPricingCalculator struct {
	Table domain.SeasonRateTable
}

// Classify returns the tier (1, 2 or 3) the cumulative monthly
// consumption currently sits in.
func (c *TieredPricingCalculator) Classify(consumptionKWh float64, month time.Month) int {
	rates := c.Table.Rates(month)
	switch {
	case consumptionKWh <= rates.Tier1LimitKWh:
		return 1
	case consumptionKWh <= rates.Tier2LimitKWh:
		return 2
	default:
		return 3
	}
}

// UnitPrice returns the marginal price of the next kWh.
func (c *TieredPricingCalculator) UnitPrice(consumptionKWh float64, month time.Month) float64 {
	rates := c.Table.Rates(month)
	switch c.Classify(consumptionKWh, month) {
	case 1:
		return rates.Tier1Price
	case 2:
		return rates.Tier2Price
	default:
		return rates.Tier3Price
	}
}

// CumulativeCost computes the progressive cost of the month's consumption
// so far, rounded to 2 decimals. The first tier band is priced at the
// tier 1 rate, the second band at the tier 2 rate and the remainder at
// the tier 3 rate.
func (c *TieredPricingCalculator) CumulativeCost(consumptionKWh float64, month time.Month) float64 {
	rates := c.Table.Rates(month)
	var cost float64
	switch {
	case consumptionKWh <= rates.Tier1LimitKWh:
		cost = consumptionKWh * rates.Tier1Price
	case consumptionKWh <= rates.Tier2LimitKWh:
		cost = rates.Tier1LimitKWh*rates.Tier1Price +
			(consumptionKWh-rates.Tier1LimitKWh)*rates.Tier2Price
	default:
		cost = rates.Tier1LimitKWh*rates.Tier1Price +
			(rates.Tier2LimitKWh-rates.Tier1LimitKWh)*rates.Tier2Price +
			(consumptionKWh-rates.Tier2LimitKWh)*rates.Tier3Price
	}
	return math.Round(cost*100) / 100
}

// Evaluate bundles the full billing view for a monthly consumption value.
func (c *TieredPricingCalculator) Evaluate(consumptionKWh float64, month time.Month) domain.BillingValues {
	return domain.BillingValues{
		MonthlyConsumptionKWh: consumptionKWh,
		Tier:                  c.Classify(consumptionKWh, month),
		UnitPrice:             c.UnitPrice(consumptionKWh, month),
		CumulativeCost:        c.CumulativeCost(consumptionKWh, month),
	}
}
