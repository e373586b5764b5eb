package actor

import (
	"testing"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	adactor "github.com/gnowmil/peacefair-energy/internal/adapter/actor"
	"github.com/gnowmil/peacefair-energy/internal/config"
	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/internal/util"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

func startMasterFixture(t *testing.T) (*actor.ActorSystem, *actor.PID, *memoryBaselineStore, config.Config) {
	t.Helper()

	as := actor.NewActorSystem()
	cfg := util.LoadTestConfig()
	logger := zap.NewNop()
	store := newMemoryBaselineStore()

	props := actor.PropsFromProducer(func() actor.Actor {
		return NewMasterActor(cfg, store, func(config.DeviceConfig) (pzem.MeterClient, error) {
			return pzem.CreateTestMeterClient(), nil
		}, func() *adactor.MQTTActor {
			return adactor.NewTestMQTTActor(&cfg, logger)
		}, logger)
	})
	pid, err := as.Root.SpawnNamed(props, "master")
	require.NoError(t, err)

	t.Cleanup(as.Shutdown)

	return as, pid, store, cfg
}

func TestMasterActorHealthCheck(t *testing.T) {
	as, pid, _, _ := startMasterFixture(t)

	time.Sleep(1 * time.Second)

	res, err := as.Root.RequestFuture(pid, domain.ActorHealthRequest{}, 10*time.Second).Result()
	require.NoError(t, err)
	healthResp, ok := res.(domain.ActorHealthResponse)
	require.True(t, ok)

	assert.True(t, healthResp.Healthy, "healthy is true")
}

func TestMasterActorListDevices(t *testing.T) {
	as, pid, _, cfg := startMasterFixture(t)

	res, err := as.Root.RequestFuture(pid, domain.ListDevicesRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	listResp, ok := res.(domain.ListDevicesResponse)
	require.True(t, ok)

	require.Len(t, listResp.Devices, 1)
	assert.Equal(t, cfg.Devices[0].DeviceID(), listResp.Devices[0])
}

func TestMasterActorRoutesLiveData(t *testing.T) {
	as, pid, _, cfg := startMasterFixture(t)
	device := cfg.Devices[0].DeviceID()

	var live domain.GetLiveDataResponse
	require.Eventually(t, func() bool {
		res, err := as.Root.RequestFuture(pid, domain.GetLiveDataRequest{Device: device}, 5*time.Second).Result()
		if err != nil {
			return false
		}
		resp, ok := res.(domain.GetLiveDataResponse)
		if !ok || resp.Snapshot == nil {
			return false
		}
		live = resp
		return true
	}, 10*time.Second, 100*time.Millisecond)

	assert.Equal(t, device, live.Device)
	assert.Equal(t, 230.0, live.Snapshot.Voltage)
}

func TestMasterActorUnknownDevice(t *testing.T) {
	as, pid, _, _ := startMasterFixture(t)

	res, err := as.Root.RequestFuture(pid, domain.GetLiveDataRequest{Device: "no_such_device"}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.GetLiveDataResponse)
	require.True(t, ok)
	assert.True(t, resp.HasResponseError())
}

func TestMasterActorRoutesResetEnergy(t *testing.T) {
	as, pid, _, cfg := startMasterFixture(t)
	device := cfg.Devices[0].DeviceID()

	res, err := as.Root.RequestFuture(pid, domain.ResetEnergyRequest{Device: device}, 15*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.ResetEnergyResponse)
	require.True(t, ok)
	assert.False(t, resp.HasResponseError())
}

func TestMasterActorDeprovisionDevice(t *testing.T) {
	as, pid, store, cfg := startMasterFixture(t)
	device := cfg.Devices[0].DeviceID()

	// wait for the first poll to persist a baseline
	require.Eventually(t, func() bool {
		return store.has(device)
	}, 10*time.Second, 100*time.Millisecond)

	res, err := as.Root.RequestFuture(pid, domain.DeprovisionDeviceRequest{Device: device}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(domain.DeprovisionDeviceResponse)
	require.True(t, ok)
	assert.False(t, resp.HasResponseError())

	// registry is empty and the baseline is gone
	listRes, err := as.Root.RequestFuture(pid, domain.ListDevicesRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	listResp, ok := listRes.(domain.ListDevicesResponse)
	require.True(t, ok)
	assert.Empty(t, listResp.Devices)
	assert.False(t, store.has(device))
}

func TestMasterActorProvisionDevice(t *testing.T) {
	as, pid, _, _ := startMasterFixture(t)

	newDev := config.DeviceConfig{
		Protocol:           config.ProtocolRTUOverUDP,
		Host:               "second.meter",
		Port:               9000,
		UnitId:             2,
		TimeoutMillis:      2000,
		PollIntervalMillis: 5000,
	}
	res, err := as.Root.RequestFuture(pid, ProvisionDevice{Config: newDev}, 5*time.Second).Result()
	require.NoError(t, err)
	resp, ok := res.(ProvisionDeviceResponse)
	require.True(t, ok)
	require.False(t, resp.HasResponseError())
	assert.Equal(t, newDev.DeviceID(), resp.Device)

	listRes, err := as.Root.RequestFuture(pid, domain.ListDevicesRequest{}, 5*time.Second).Result()
	require.NoError(t, err)
	listResp, ok := listRes.(domain.ListDevicesResponse)
	require.True(t, ok)
	assert.Len(t, listResp.Devices, 2)
}
