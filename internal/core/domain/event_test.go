package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// every published event type must satisfy the sensor update contract
var (
	_ SensorUpdateEvent = FloatSensorUpdateEvent{}
	_ SensorUpdateEvent = TextSensorUpdateEvent{}
	_ SensorUpdateEvent = BridgeStateUpdateEvent{}
)

func TestFloatSensorUpdateEventValueString(t *testing.T) {
	ev := FloatSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: "meter_voltage"},
		Value:                  230.04,
		Decimals:               1,
	}
	assert.Equal(t, "230.0", ev.ValueString())
	assert.Equal(t, "meter_voltage", ev.SensorID())
	assert.True(t, ev.IsSensorUpdateEvent())
}

func TestBridgeStateUpdateEventValueString(t *testing.T) {
	online := BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{Id: "bridge"},
		Online:                 true,
	}
	assert.Equal(t, "online", online.ValueString())
	assert.Equal(t, "bridge", online.SensorID())

	offline := BridgeStateUpdateEvent{Online: false}
	assert.Equal(t, "offline", offline.ValueString())
}
