package events

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/carlmjohnson/versioninfo"

	. "github.com/gnowmil/peacefair-energy/internal/core/domain"
)

const (
	SENSOR_ID_BRIDGE_STATE = "bridge"

	SENSOR_SUFFIX_VOLTAGE             = "voltage"
	SENSOR_SUFFIX_CURRENT             = "current"
	SENSOR_SUFFIX_POWER               = "power"
	SENSOR_SUFFIX_ENERGY              = "energy"
	SENSOR_SUFFIX_FREQUENCY           = "frequency"
	SENSOR_SUFFIX_POWER_FACTOR        = "power_factor"
	SENSOR_SUFFIX_MONTHLY_CONSUMPTION = "monthly_consumption"
	SENSOR_SUFFIX_TIER                = "tier"
	SENSOR_SUFFIX_UNIT_PRICE          = "unit_price"
	SENSOR_SUFFIX_CUMULATIVE_COST     = "cumulative_cost"
	BUTTON_ID_RESET_ENERGY            = "reset_energy"

	STATE_CLASS_MEASUREMENT      = "measurement"
	STATE_CLASS_TOTAL            = "total"
	STATE_CLASS_TOTAL_INCREASING = "total_increasing"
	DEVICE_CLASS_VOLTAGE         = "voltage"
	DEVICE_CLASS_CURRENT         = "current"
	DEVICE_CLASS_POWER           = "power"
	DEVICE_CLASS_ENERGY          = "energy"
	DEVICE_CLASS_FREQUENCY       = "frequency"
	DEVICE_CLASS_POWER_FACTOR    = "power_factor"
	DEVICE_CLASS_MONETARY        = "monetary"
	DEVICE_CLASS_CONNECTIVITY    = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC      = "diagnostic"
	SENSOR_TYPE_SENSOR           = "sensor"
	SENSOR_TYPE_BINARY           = "binary_sensor"
)

// SensorID builds the per-device sensor identifier used across MQTT
// topics and discovery payloads.
func SensorID(device DeviceID, suffix string) string {
	return fmt.Sprintf("%s_%s", device, suffix)
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("peacefair_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "Peacefair",
		Model:        "PZEM bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("Peacefair bridge %s", md5HashShort(baseTopic)),
	}
}

func MeterDevice(device DeviceID, bridge Device) Device {
	return Device{
		Id:           string(device),
		Manufacturer: "Peacefair",
		Model:        "PZEM-004T",
		Name:         fmt.Sprintf("PZEM %s", device),
		ViaDevice:    bridge.Id,
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

func MeterSensors(device DeviceID, meterDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Voltage
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_VOLTAGE),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Voltage",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_VOLTAGE,
		UnitOfMeasurement: "V",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_VOLTAGE),
	})

	// Current
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_CURRENT),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Current",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_CURRENT,
		UnitOfMeasurement: "A",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_CURRENT),
	})

	// Active power
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_POWER),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER,
		UnitOfMeasurement: "W",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_POWER),
	})

	// Lifetime energy
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_ENERGY),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Energy",
		StateClass:        STATE_CLASS_TOTAL_INCREASING,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_ENERGY),
	})

	// Grid frequency
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_FREQUENCY),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Frequency",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_FREQUENCY,
		UnitOfMeasurement: "Hz",
		Icon:              "mdi:sine-wave",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_FREQUENCY),
	})

	// Power factor
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_POWER_FACTOR),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Power factor",
		StateClass:        STATE_CLASS_MEASUREMENT,
		DeviceClass:       DEVICE_CLASS_POWER_FACTOR,
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_POWER_FACTOR),
	})

	return sensors
}

func BillingSensors(device DeviceID, meterDevice Device, currency string) []GenericSensor {

	var sensors []GenericSensor

	// Monthly consumption
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_MONTHLY_CONSUMPTION),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Monthly consumption",
		StateClass:        STATE_CLASS_TOTAL,
		DeviceClass:       DEVICE_CLASS_ENERGY,
		UnitOfMeasurement: "kWh",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_MONTHLY_CONSUMPTION),
	})

	// Current tariff tier
	sensors = append(sensors, GenericSensor{
		Device:     meterDevice,
		Id:         SensorID(device, SENSOR_SUFFIX_TIER),
		SensorType: SENSOR_TYPE_SENSOR,
		Name:       "Tariff tier",
		Icon:       "mdi:stairs",
		UniqueId:   uniqueId(meterDevice.Id, SENSOR_SUFFIX_TIER),
	})

	// Marginal unit price
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_UNIT_PRICE),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Unit price",
		UnitOfMeasurement: fmt.Sprintf("%s/kWh", currency),
		Icon:              "mdi:cash",
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_UNIT_PRICE),
	})

	// Cumulative monthly cost
	sensors = append(sensors, GenericSensor{
		Device:            meterDevice,
		Id:                SensorID(device, SENSOR_SUFFIX_CUMULATIVE_COST),
		SensorType:        SENSOR_TYPE_SENSOR,
		Name:              "Monthly cost",
		StateClass:        STATE_CLASS_TOTAL,
		DeviceClass:       DEVICE_CLASS_MONETARY,
		UnitOfMeasurement: currency,
		UniqueId:          uniqueId(meterDevice.Id, SENSOR_SUFFIX_CUMULATIVE_COST),
	})

	return sensors
}

func MeterButtons(device DeviceID, meterDevice Device) []GenericButton {

	var buttons []GenericButton

	// Reset lifetime energy counter
	buttons = append(buttons, GenericButton{
		Device:   meterDevice,
		Id:       SensorID(device, BUTTON_ID_RESET_ENERGY),
		Name:     "Reset energy",
		Icon:     "mdi:restart",
		Payload:  "reset_energy",
		UniqueId: uniqueId(meterDevice.Id, BUTTON_ID_RESET_ENERGY),
	})

	return buttons
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge connection state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Connection state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	return md5Hash(text)[0:8]
}
