package pzem

import (
	"sync"
	"time"
)

// TestMeterClient is an in-memory MeterClient for tests. Registers are
// scriptable and every operation can be forced to fail or slowed down.
type TestMeterClient struct {
	mu        sync.Mutex
	registers []uint16
	readErr   error
	resetErr  error
	readDelay time.Duration
	resets    int
	closed    bool
}

func CreateTestMeterClient() *TestMeterClient {
	return &TestMeterClient{
		// 230.0 V, 0.1 A, 5.0 W, 0.0 kWh, 50.0 Hz, PF 0.95
		registers: []uint16{2300, 100, 0, 50, 0, 0, 0, 500, 95},
	}
}

func (c *TestMeterClient) SetRegisters(regs []uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registers = append([]uint16(nil), regs...)
}

// SetEnergy scripts the lifetime energy counter, in kWh.
func (c *TestMeterClient) SetEnergy(kwh float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw := uint32(kwh * 1000)
	c.registers[5] = uint16(raw)
	c.registers[6] = uint16(raw >> 16)
}

func (c *TestMeterClient) FailReads(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readErr = err
}

// DelayReads makes every register read block for d, simulating a slow link.
func (c *TestMeterClient) DelayReads(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readDelay = d
}

func (c *TestMeterClient) FailResets(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetErr = err
}

func (c *TestMeterClient) ResetCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resets
}

func (c *TestMeterClient) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *TestMeterClient) ReadInputRegisters(start, count uint16) ([]uint16, error) {
	c.mu.Lock()
	delay := c.readDelay
	c.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return nil, c.readErr
	}
	if int(start)+int(count) > len(c.registers) {
		return nil, &MalformedResponseError{Reason: "register range out of bounds"}
	}
	return append([]uint16(nil), c.registers[start:start+count]...), nil
}

func (c *TestMeterClient) ReadMeasurements() (*Measurements, error) {
	regs, err := c.ReadInputRegisters(MeasurementRegisterStart, MeasurementRegisterCount)
	if err != nil {
		return nil, err
	}
	return Decode(regs)
}

func (c *TestMeterClient) ResetEnergy() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resetErr != nil {
		return c.resetErr
	}
	c.resets++
	c.registers[5] = 0
	c.registers[6] = 0
	return nil
}

func (c *TestMeterClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// ensure interface compliance
var _ MeterClient = (*TestMeterClient)(nil)
