package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
)

func testRateTable() domain.SeasonRateTable {
	return domain.SeasonRateTable{
		SummerMonths: map[time.Month]bool{
			time.June: true, time.July: true, time.August: true, time.September: true,
		},
		Summer: domain.TierRates{
			Tier1LimitKWh: 260,
			Tier2LimitKWh: 600,
			Tier1Price:    0.5,
			Tier2Price:    0.6,
			Tier3Price:    0.7,
		},
		NonSummer: domain.TierRates{
			Tier1LimitKWh: 200,
			Tier2LimitKWh: 400,
			Tier1Price:    0.45,
			Tier2Price:    0.55,
			Tier3Price:    0.65,
		},
	}
}

func TestClassifyTierBoundaries(t *testing.T) {
	calc := &TieredPricingCalculator{Table: testRateTable()}

	assert.Equal(t, 1, calc.Classify(0, time.July))
	assert.Equal(t, 1, calc.Classify(260, time.July))
	assert.Equal(t, 2, calc.Classify(260.001, time.July))
	assert.Equal(t, 2, calc.Classify(600, time.July))
	assert.Equal(t, 3, calc.Classify(600.001, time.July))
}

func TestClassifyUsesSeasonLimits(t *testing.T) {
	calc := &TieredPricingCalculator{Table: testRateTable()}

	// 250 kWh is tier 1 in summer but tier 2 outside it
	assert.Equal(t, 1, calc.Classify(250, time.July))
	assert.Equal(t, 2, calc.Classify(250, time.January))
}

func TestUnitPrice(t *testing.T) {
	calc := &TieredPricingCalculator{Table: testRateTable()}

	assert.Equal(t, 0.5, calc.UnitPrice(100, time.July))
	assert.Equal(t, 0.6, calc.UnitPrice(400, time.July))
	assert.Equal(t, 0.7, calc.UnitPrice(700, time.July))
	assert.Equal(t, 0.45, calc.UnitPrice(100, time.December))
}

func TestCumulativeCostProgressive(t *testing.T) {
	calc := &TieredPricingCalculator{Table: testRateTable()}

	// full tier 1 band: 260 * 0.5
	assert.Equal(t, 130.0, calc.CumulativeCost(260, time.July))
	// tier 1 band plus full tier 2 band: 130 + 340 * 0.6
	assert.Equal(t, 334.0, calc.CumulativeCost(600, time.July))
	// both bands plus 100 kWh at the tier 3 rate
	assert.Equal(t, 404.0, calc.CumulativeCost(700, time.July))
	assert.Equal(t, 0.0, calc.CumulativeCost(0, time.July))
}

func TestCumulativeCostIsNotFlatRate(t *testing.T) {
	calc := &TieredPricingCalculator{Table: testRateTable()}

	// 700 kWh at the marginal tier 3 price would be 490, progressive is 404
	cost := calc.CumulativeCost(700, time.July)
	assert.NotEqual(t, 700*calc.UnitPrice(700, time.July), cost)
	assert.Equal(t, 404.0, cost)
}

func TestEvaluateBundlesBillingValues(t *testing.T) {
	calc := &TieredPricingCalculator{Table: testRateTable()}

	values := calc.Evaluate(300, time.July)
	assert.Equal(t, 300.0, values.MonthlyConsumptionKWh)
	assert.Equal(t, 2, values.Tier)
	assert.Equal(t, 0.6, values.UnitPrice)
	assert.Equal(t, 154.0, values.CumulativeCost)
}
