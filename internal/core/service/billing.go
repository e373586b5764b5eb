package service

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/internal/core/port"
)

// MonthlyAccumulator derives monthly consumption from the meter's
// monotonically increasing lifetime energy counter. The baseline is the
// lifetime reading at the start of the current billing month; it is
// re-anchored on month change and on any backward jump of the counter
// (device reset or replacement), and persisted after every change so a
// restart mid-month resumes where it left off.
type MonthlyAccumulator struct {
	device   domain.DeviceID
	store    port.BaselineStore
	logger   *zap.Logger
	baseline *domain.BaselineRecord
}

func NewMonthlyAccumulator(device domain.DeviceID, store port.BaselineStore, logger *zap.Logger) *MonthlyAccumulator {
	return &MonthlyAccumulator{
		device: device,
		store:  store,
		logger: logger.With(zap.String("device", string(device))),
	}
}

// Restore loads the persisted baseline, if any. Called once before the
// first Evaluate. A load failure starts cold instead of failing.
func (a *MonthlyAccumulator) Restore() {
	record, err := a.store.Load(a.device)
	if err != nil {
		a.logger.Warn("accumulator: could not restore baseline, starting cold", zap.Error(err))
		return
	}
	if record != nil {
		a.baseline = record
		a.logger.Info("accumulator: baseline restored",
			zap.Float64("baseline_energy", record.BaselineEnergy),
			zap.Int("baseline_month", record.BaselineMonth))
	}
}

// Evaluate returns the consumption accumulated this month given the
// current lifetime counter reading. Cold start, month change and a
// counter moving backwards all re-anchor the baseline and return 0.
func (a *MonthlyAccumulator) Evaluate(lifetimeKWh float64, month time.Month) float64 {
	switch {
	case a.baseline == nil:
		a.rebaseline(lifetimeKWh, month, "cold start")
		return 0
	case a.baseline.BaselineMonth != int(month):
		a.rebaseline(lifetimeKWh, month, "month rollover")
		return 0
	case lifetimeKWh < a.baseline.BaselineEnergy:
		// lifetime counter moved backwards, meter was reset or swapped
		a.rebaseline(lifetimeKWh, month, "counter moved backwards")
		return 0
	default:
		return round3(lifetimeKWh - a.baseline.BaselineEnergy)
	}
}

// ForceRebaseline anchors the baseline at the given reading. Used after an
// energy reset command so the monthly figure drops immediately.
func (a *MonthlyAccumulator) ForceRebaseline(lifetimeKWh float64, month time.Month) {
	a.rebaseline(lifetimeKWh, month, "energy reset")
}

func (a *MonthlyAccumulator) rebaseline(lifetimeKWh float64, month time.Month, reason string) {
	a.baseline = &domain.BaselineRecord{
		BaselineEnergy: lifetimeKWh,
		BaselineMonth:  int(month),
	}
	a.logger.Info("accumulator: baseline anchored",
		zap.String("reason", reason),
		zap.Float64("baseline_energy", lifetimeKWh),
		zap.Int("baseline_month", int(month)))
	if err := a.store.Save(a.device, *a.baseline); err != nil {
		a.logger.Warn("accumulator: could not persist baseline", zap.Error(err))
	}
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
