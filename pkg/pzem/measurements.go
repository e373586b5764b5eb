package pzem

// Measurements is one decoded reading of the full measurement block.
// EnergyKWh is the device's lifetime counter: monotonically non-decreasing
// except across an explicit reset or a power-on default.
type Measurements struct {
	Voltage     float64 // V
	Current     float64 // A
	PowerWatt   float64 // W
	EnergyKWh   float64 // kWh, lifetime counter
	Frequency   float64 // Hz
	PowerFactor float64 // dimensionless, 0..1
}

// Measurement block layout, input registers starting at address 0:
//
//	[0]    voltage      x10
//	[1..2] current      (low, high) x1000
//	[3..4] power        (low, high) x10
//	[5..6] energy       (low, high) x1000
//	[7]    frequency    x10
//	[8]    power factor x100
const (
	MeasurementRegisterStart = 0
	MeasurementRegisterCount = 9
)

// Decode turns a raw register block into physical quantities. Pure and
// deterministic. The block length is a caller-side precondition.
func Decode(regs []uint16) (*Measurements, error) {
	if len(regs) != MeasurementRegisterCount {
		return nil, &InvalidBlockLengthError{Length: len(regs)}
	}
	return &Measurements{
		Voltage:     float64(regs[0]) / 10,
		Current:     float64(pair(regs[1], regs[2])) / 1000,
		PowerWatt:   float64(pair(regs[3], regs[4])) / 10,
		EnergyKWh:   float64(pair(regs[5], regs[6])) / 1000,
		Frequency:   float64(regs[7]) / 10,
		PowerFactor: float64(regs[8]) / 100,
	}, nil
}

// pair assembles a 32-bit value from the device's (low, high) register order.
func pair(low, high uint16) uint32 {
	return uint32(high)<<16 + uint32(low)
}
