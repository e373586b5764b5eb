package port

import (
	"github.com/gnowmil/peacefair-energy/internal/core/domain"
)

// BaselineStore persists the monthly consumption baseline per device so
// that restarts within a billing month do not re-anchor accumulation.
type BaselineStore interface {
	// Load returns the stored record for the device, or nil when no record
	// exists yet.
	Load(device domain.DeviceID) (*domain.BaselineRecord, error)
	Save(device domain.DeviceID, record domain.BaselineRecord) error
	// Delete removes the record. Deleting an absent record is not an error.
	Delete(device domain.DeviceID) error
}
