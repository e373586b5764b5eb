package domain

import (
	"fmt"
	"strings"
)

// DeviceID identifies one meter. Host alone is not enough: two meters can
// share a host and differ by port or unit address.
type DeviceID string

func NewDeviceID(host string, port uint, unit uint8) DeviceID {
	h := strings.NewReplacer(".", "_", ":", "_", "-", "_").Replace(strings.ToLower(host))
	return DeviceID(fmt.Sprintf("%s_%d_%d", h, port, unit))
}

func (id DeviceID) String() string {
	return string(id)
}

// BaselineRecord is the only durable state in the system: the lifetime
// energy counter value and the calendar month at the start of the current
// billing period.
type BaselineRecord struct {
	BaselineEnergy float64 `json:"baseline_energy"`
	BaselineMonth  int     `json:"baseline_month"`
}
