package domain

import (
	"time"

	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"

	// per-device children, suffixed with the device id
	ACTOR_ID_MODBUS_PREFIX  = "modbus"
	ACTOR_ID_MONITOR_PREFIX = "monitor"
)

// ErrorKind classifies why a poll cycle failed. Absorbed at the monitor
// boundary; consumers of live data never see the underlying error.
type ErrorKind string

const (
	ErrorKindNone                 ErrorKind = ""
	ErrorKindProtocolIO           ErrorKind = "protocol_io"
	ErrorKindMalformedResponse    ErrorKind = "malformed_response"
	ErrorKindInvalidBlockLength   ErrorKind = "invalid_block_length"
	ErrorKindParameterNegotiation ErrorKind = "parameter_negotiation"
	ErrorKindUnknown              ErrorKind = "unknown"
)

// GetMeasurementsRequest asks the modbus actor for one fresh reading.
type GetMeasurementsRequest struct {
	ActorRequestMixIn
}

type GetMeasurementsResponse struct {
	ActorResponseMixIn
	Measurements *pzem.Measurements
}

// ResetEnergyRequest triggers the vendor reset command on the device. The
// Device field is used when the request is routed through the master;
// a monitor or modbus actor addressed directly ignores it.
type ResetEnergyRequest struct {
	ActorRequestMixIn
	Device DeviceID
}

type ResetEnergyResponse struct {
	ActorResponseMixIn
}

// GetLiveDataRequest asks a monitor (directly or routed by device id
// through the master) for the last known good data.
type GetLiveDataRequest struct {
	ActorRequestMixIn
	Device DeviceID
}

type GetLiveDataResponse struct {
	ActorResponseMixIn
	Device DeviceID
	// Snapshot is nil until the first successful poll. A failed poll never
	// clears it.
	Snapshot *pzem.Measurements
	Billing  *BillingValues
	LastPoll time.Time
	LastErr  ErrorKind
}

// SetPollIntervalRequest changes a monitor's poll cadence at runtime.
// Takes effect when the next tick is scheduled.
type SetPollIntervalRequest struct {
	ActorRequestMixIn
	Device   DeviceID
	Interval time.Duration
}

type SetPollIntervalResponse struct {
	ActorResponseMixIn
}

// DeprovisionDeviceRequest stops a device's actors, closes its transport
// and deletes its persisted baseline.
type DeprovisionDeviceRequest struct {
	ActorRequestMixIn
	Device DeviceID
}

type DeprovisionDeviceResponse struct {
	ActorResponseMixIn
}

// ListDevicesRequest returns the ids of all provisioned devices.
type ListDevicesRequest struct {
	ActorRequestMixIn
}

type ListDevicesResponse struct {
	ActorResponseMixIn
	Devices []DeviceID
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
	Buttons []GenericButton
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
