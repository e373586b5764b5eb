package domain

import "time"

// TierRates is one season's tier table. Consumption up to Tier1LimitKWh is
// billed at Tier1Price, the slice up to Tier2LimitKWh at Tier2Price, and
// everything above at Tier3Price. Limits satisfy Tier1LimitKWh <=
// Tier2LimitKWh.
type TierRates struct {
	Tier1LimitKWh float64
	Tier2LimitKWh float64
	Tier1Price    float64
	Tier2Price    float64
	Tier3Price    float64
}

// SeasonRateTable selects one of two tier tables by calendar month.
// Supplied by configuration, read-only afterwards.
type SeasonRateTable struct {
	SummerMonths map[time.Month]bool
	Summer       TierRates
	NonSummer    TierRates
}

func (t SeasonRateTable) IsSummer(month time.Month) bool {
	return t.SummerMonths[month]
}

func (t SeasonRateTable) Rates(month time.Month) TierRates {
	if t.IsSummer(month) {
		return t.Summer
	}
	return t.NonSummer
}

// BillingValues are the derived values recomputed after every successful
// poll. CumulativeCost uses progressive tier billing and is the
// authoritative spend figure; UnitPrice is the marginal price of the
// active tier only and must not be multiplied by consumption.
type BillingValues struct {
	MonthlyConsumptionKWh float64
	Tier                  int
	UnitPrice             float64
	CumulativeCost        float64
}
