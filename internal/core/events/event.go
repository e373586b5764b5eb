package events

import (
	. "github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

func MeasurementsToUpdateEvents(device DeviceID, m *pzem.Measurements) []any {
	var events []any

	// Voltage
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_VOLTAGE),
		},
		Value:    m.Voltage,
		Decimals: 1,
	})
	// Current
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_CURRENT),
		},
		Value:    m.Current,
		Decimals: 3,
	})
	// Active power
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_POWER),
		},
		Value:    m.PowerWatt,
		Decimals: 1,
	})
	// Lifetime energy
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_ENERGY),
		},
		Value:    m.EnergyKWh,
		Decimals: 3,
	})
	// Grid frequency
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_FREQUENCY),
		},
		Value:    m.Frequency,
		Decimals: 1,
	})
	// Power factor
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_POWER_FACTOR),
		},
		Value:    m.PowerFactor,
		Decimals: 2,
	})

	return events
}

func BillingToUpdateEvents(device DeviceID, b *BillingValues) []any {
	var events []any

	// Monthly consumption
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_MONTHLY_CONSUMPTION),
		},
		Value:    b.MonthlyConsumptionKWh,
		Decimals: 3,
	})
	// Current tariff tier
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_TIER),
		},
		Value:    float64(b.Tier),
		Decimals: 0,
	})
	// Marginal unit price
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_UNIT_PRICE),
		},
		Value:    b.UnitPrice,
		Decimals: 4,
	})
	// Cumulative monthly cost
	events = append(events, FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SensorID(device, SENSOR_SUFFIX_CUMULATIVE_COST),
		},
		Value:    b.CumulativeCost,
		Decimals: 2,
	})

	return events
}
