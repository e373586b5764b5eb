package domain

import (
	"strconv"
)

type Event interface {
	IsEvent() bool
}

type EventMixIn struct {
}

func (m EventMixIn) IsEvent() bool {
	return true
}

type SensorUpdateEvent interface {
	Event
	IsSensorUpdateEvent() bool
	SensorID() string
	ValueString() string
}

type SensorUpdateEventMixIn struct {
	EventMixIn
	Id string
}

func (m SensorUpdateEventMixIn) IsSensorUpdateEvent() bool {
	return true
}

func (m SensorUpdateEventMixIn) SensorID() string {
	return m.Id
}

// FloatSensorUpdateEvent carries a numeric sensor value rendered with a
// fixed number of decimals.
type FloatSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value    float64
	Decimals int
}

func (e FloatSensorUpdateEvent) ValueString() string {
	return strconv.FormatFloat(e.Value, 'f', e.Decimals, 64)
}

type TextSensorUpdateEvent struct {
	SensorUpdateEventMixIn
	Value string
}

func (e TextSensorUpdateEvent) ValueString() string {
	return e.Value
}

// BridgeStateUpdateEvent reflects bridge connectivity (online/offline).
type BridgeStateUpdateEvent struct {
	SensorUpdateEventMixIn
	Online bool
}

func (e BridgeStateUpdateEvent) ValueString() string {
	if e.Online {
		return "online"
	}
	return "offline"
}
