package service

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
)

type memoryBaselineStore struct {
	records map[domain.DeviceID]domain.BaselineRecord
	loadErr error
	saves   int
}

func newMemoryBaselineStore() *memoryBaselineStore {
	return &memoryBaselineStore{records: map[domain.DeviceID]domain.BaselineRecord{}}
}

func (s *memoryBaselineStore) Load(device domain.DeviceID) (*domain.BaselineRecord, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	record, ok := s.records[device]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *memoryBaselineStore) Save(device domain.DeviceID, record domain.BaselineRecord) error {
	s.saves++
	s.records[device] = record
	return nil
}

func (s *memoryBaselineStore) Delete(device domain.DeviceID) error {
	delete(s.records, device)
	return nil
}

const testDevice = domain.DeviceID("meter_local_9000_1")

func TestAccumulatorColdStart(t *testing.T) {
	store := newMemoryBaselineStore()
	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())
	acc.Restore()

	monthly := acc.Evaluate(100.0, time.June)

	assert.Equal(t, 0.0, monthly)
	require.Contains(t, store.records, testDevice)
	assert.Equal(t, 100.0, store.records[testDevice].BaselineEnergy)
	assert.Equal(t, int(time.June), store.records[testDevice].BaselineMonth)
}

func TestAccumulatorAccumulation(t *testing.T) {
	store := newMemoryBaselineStore()
	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())

	assert.Equal(t, 0.0, acc.Evaluate(100.0, time.June))
	assert.Equal(t, 23.456, acc.Evaluate(123.456, time.June))
	// no new persistence while the baseline is unchanged
	assert.Equal(t, 1, store.saves)
}

func TestAccumulatorMonthRollover(t *testing.T) {
	store := newMemoryBaselineStore()
	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())

	acc.Evaluate(100.0, time.June)
	assert.Equal(t, 50.0, acc.Evaluate(150.0, time.June))

	// first reading of July anchors a new baseline at 150
	assert.Equal(t, 0.0, acc.Evaluate(150.0, time.July))
	assert.Equal(t, 10.0, acc.Evaluate(160.0, time.July))
}

func TestAccumulatorCounterMovedBackwards(t *testing.T) {
	store := newMemoryBaselineStore()
	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())

	acc.Evaluate(100.0, time.June)
	// meter reset: lifetime counter restarts below the baseline
	assert.Equal(t, 0.0, acc.Evaluate(5.0, time.June))
	assert.Equal(t, 5.0, store.records[testDevice].BaselineEnergy)
	assert.Equal(t, 2.5, acc.Evaluate(7.5, time.June))
}

func TestAccumulatorRestoresAcrossRestart(t *testing.T) {
	store := newMemoryBaselineStore()

	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())
	acc.Evaluate(100.0, time.June)

	// new accumulator over the same store picks up where the old one left off
	restarted := NewMonthlyAccumulator(testDevice, store, zap.NewNop())
	restarted.Restore()
	assert.Equal(t, 42.0, restarted.Evaluate(142.0, time.June))
}

func TestAccumulatorRestoreFailureStartsCold(t *testing.T) {
	store := newMemoryBaselineStore()
	store.loadErr = errors.New("disk gone")

	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())
	acc.Restore()

	assert.Equal(t, 0.0, acc.Evaluate(100.0, time.June))
}

func TestAccumulatorForceRebaseline(t *testing.T) {
	store := newMemoryBaselineStore()
	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())

	acc.Evaluate(100.0, time.June)
	assert.Equal(t, 20.0, acc.Evaluate(120.0, time.June))

	acc.ForceRebaseline(0.0, time.June)
	assert.Equal(t, 0.0, acc.Evaluate(0.0, time.June))
	assert.Equal(t, 1.5, acc.Evaluate(1.5, time.June))
}

func TestAccumulatorRoundsToMilliKWh(t *testing.T) {
	store := newMemoryBaselineStore()
	acc := NewMonthlyAccumulator(testDevice, store, zap.NewNop())

	acc.Evaluate(0.0, time.June)
	assert.Equal(t, 0.1, acc.Evaluate(0.1, time.June))
	assert.Equal(t, 0.123, acc.Evaluate(0.1234999, time.June))
}
