package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

func startModbusFixture(t *testing.T, timeout time.Duration) (*actor.ActorSystem, *actor.PID, *pzem.TestMeterClient) {
	t.Helper()

	as := actor.NewActorSystem()
	client := pzem.CreateTestMeterClient()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewModbusActor("test_meter_9000_1", client, timeout, zap.NewNop())
	})
	pid, err := as.Root.SpawnNamed(props, "modbus-test")
	require.NoError(t, err)

	t.Cleanup(as.Shutdown)

	return as, pid, client
}

func TestModbusActorReadMeasurements(t *testing.T) {
	as, pid, _ := startModbusFixture(t, 2*time.Second)

	res, err := as.Root.RequestFuture(pid, domain.GetMeasurementsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetMeasurementsResponse)
	require.True(t, ok)

	require.False(t, resp.HasResponseError())
	require.NotNil(t, resp.Measurements)
	assert.Equal(t, 230.0, resp.Measurements.Voltage)
	assert.Equal(t, 50.0, resp.Measurements.Frequency)
}

func TestModbusActorReadFailure(t *testing.T) {
	as, pid, client := startModbusFixture(t, 2*time.Second)
	client.FailReads(&pzem.IOError{Op: "read input registers", Err: assert.AnError})

	res, err := as.Root.RequestFuture(pid, domain.GetMeasurementsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetMeasurementsResponse)
	require.True(t, ok)

	assert.True(t, resp.HasResponseError())
	assert.Equal(t, domain.ErrorKindProtocolIO, domain.ClassifyError(resp.GetResponseError()))
}

func TestModbusActorSlowReadWithinConfiguredTimeout(t *testing.T) {
	// the task deadline follows the configured transport timeout, so a
	// read slower than any fixed default still completes
	as, pid, client := startModbusFixture(t, 3*time.Second)
	client.DelayReads(2200 * time.Millisecond)

	res, err := as.Root.RequestFuture(pid, domain.GetMeasurementsRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetMeasurementsResponse)
	require.True(t, ok)

	require.False(t, resp.HasResponseError())
	assert.Equal(t, 230.0, resp.Measurements.Voltage)
}

func TestModbusActorResetEnergy(t *testing.T) {
	as, pid, client := startModbusFixture(t, 2*time.Second)
	client.SetEnergy(12.5)

	res, err := as.Root.RequestFuture(pid, domain.ResetEnergyRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.ResetEnergyResponse)
	require.True(t, ok)

	assert.False(t, resp.HasResponseError())
	assert.Equal(t, 1, client.ResetCount())

	read, err := as.Root.RequestFuture(pid, domain.GetMeasurementsRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	readResp := read.(domain.GetMeasurementsResponse)
	require.False(t, readResp.HasResponseError())
	assert.Equal(t, 0.0, readResp.Measurements.EnergyKWh)
}
