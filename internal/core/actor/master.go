package actor

import (
	"context"
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/reugn/go-quartz/job"
	"github.com/reugn/go-quartz/quartz"
	"go.uber.org/zap"

	adactor "github.com/gnowmil/peacefair-energy/internal/adapter/actor"
	"github.com/gnowmil/peacefair-energy/internal/config"
	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/internal/core/port"
	"github.com/gnowmil/peacefair-energy/internal/core/service"
	. "github.com/gnowmil/peacefair-energy/internal/util/actorutil"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

type MQTTActorProvider func() *adactor.MQTTActor

type MeterClientProvider func(cfg config.DeviceConfig) (pzem.MeterClient, error)

// midnight in the scheduler's local time zone
const billingRolloverCron = "0 0 0 * * *"

// MasterActor owns the device registry. Per device it supervises a
// modbus actor (the transport) and a monitor actor (the poll loop) and
// routes requests to them by device id. It also bridges sensor update
// events from the event stream to the MQTT actor and fires the nightly
// billing rollover tick.
type MasterActor struct {
	config   config.Config
	behavior actor.Behavior
	stash    *Stash

	eventStream         *eventstream.EventStream
	eventStreamSub      *eventstream.Subscription
	store               port.BaselineStore
	pricing             *service.TieredPricingCalculator
	meterClientProvider MeterClientProvider
	mqttActorProvider   MQTTActorProvider
	mqttActor           *actor.PID
	devices             map[domain.DeviceID]*deviceEntry
	cronScheduler       quartz.Scheduler

	currentHealthCheck healthCheckResult
	logger             *zap.Logger
}

type deviceEntry struct {
	config  config.DeviceConfig
	modbus  *actor.PID
	monitor *actor.PID
}

// ProvisionDevice adds a configured device at runtime.
type ProvisionDevice struct {
	domain.ActorRequestMixIn
	Config config.DeviceConfig
}

type ProvisionDeviceResponse struct {
	domain.ActorResponseMixIn
	Device domain.DeviceID
}

type onEventStreamMessage struct {
	message any
}

type billingRollover struct {
}

type healthCheckResult struct {
	healthy        map[string]bool
	checksExpected int
	checksReceived int
	respondTo      *actor.PID
}

func NewMasterActor(config config.Config, store port.BaselineStore, meterClientProvider MeterClientProvider,
	mqttActorProvider MQTTActorProvider, logger *zap.Logger) *MasterActor {
	act := &MasterActor{
		config:              config,
		behavior:            actor.NewBehavior(),
		stash:               &Stash{},
		logger:              ActorLogger(domain.ACTOR_ID_MASTER, logger),
		eventStream:         &eventstream.EventStream{},
		store:               store,
		pricing:             &service.TieredPricingCalculator{Table: config.Tariff.RateTable()},
		meterClientProvider: meterClientProvider,
		mqttActorProvider:   mqttActorProvider,
		devices:             map[domain.DeviceID]*deviceEntry{},
	}
	act.behavior.Become(act.StartingReceive)
	return act
}

func (state *MasterActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MasterActor) StartingReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("master@starting started")

		state.currentHealthCheck = healthCheckResult{}
		state.currentHealthCheck.reset()

		// start MQTT child
		mqttActorPID, err := state.startMQTTActor(ctx)
		if err != nil {
			panic(err)
		}
		state.mqttActor = mqttActorPID

		// bridge sensor updates to the MQTT actor
		self := ctx.Self()
		root := ctx.ActorSystem().Root
		state.eventStreamSub = state.eventStream.Subscribe(func(value any) {
			root.Send(self, onEventStreamMessage{message: value})
		})

		// provision configured devices
		for _, devCfg := range state.config.Devices {
			if _, err := state.provisionDevice(ctx, devCfg); err != nil {
				panic(err)
			}
		}

		// start HA Discovery
		if state.config.MQTT.HADiscoveryEnable {
			if _, err := state.startHADiscoveryActor(ctx); err != nil {
				panic(err)
			}
		}

		if err := state.startRolloverScheduler(ctx); err != nil {
			panic(err)
		}

		state.behavior.Become(state.DefaultReceive)
		state.stash.UnstashAll(ctx)
	default:
		state.logger.Debug("master@starting stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("master@default ActorHealthRequest")
		state.currentHealthCheck.reset()
		state.currentHealthCheck.respondTo = ctx.Sender()
		state.currentHealthCheck.checksExpected = 1 + 2*len(state.devices)
		// MQTT Actor Request
		state.requestHealth(ctx, state.mqttActor, domain.ACTOR_ID_MQTT)
		// per-device actors
		for id, entry := range state.devices {
			state.requestHealth(ctx, entry.modbus, fmt.Sprintf("%s/%s", domain.ACTOR_ID_MODBUS_PREFIX, id))
			state.requestHealth(ctx, entry.monitor, fmt.Sprintf("%s/%s", domain.ACTOR_ID_MONITOR_PREFIX, id))
		}

		ctx.SetReceiveTimeout(1 * time.Second)

		state.behavior.BecomeStacked(state.HealthCheckReceive)
	case onEventStreamMessage:
		if ev, ok := msg.message.(domain.SensorUpdateEvent); ok {
			ctx.Send(state.mqttActor, domain.PublishSensorUpdateRequest{Event: ev})
		}
	case adactor.ParsedCommand:
		// redirect parsedCommand to the device's monitor
		state.logger.Debug("master@default parsedCommand", zap.Any("command", msg.Command))
		if msg.Command != nil {
			cmd, err := ParsedMQTTCommandToCommand(*msg.Command)
			if err == nil && cmd != nil {
				switch pcmd := cmd.(type) {
				case domain.ResetEnergyRequest:
					if entry, ok := state.devices[pcmd.Device]; ok {
						ctx.Send(entry.monitor, pcmd)
					} else {
						state.logger.Warn("master@default command for unknown device", zap.String("device", string(pcmd.Device)))
					}
				}
			}
		}
	case domain.GetLiveDataRequest:
		state.forwardToMonitor(ctx, msg.Device, msg, func() domain.ActorResponse {
			return domain.GetLiveDataResponse{
				ActorResponseMixIn: unknownDeviceError(msg.Device),
			}
		})
	case domain.ResetEnergyRequest:
		state.forwardToMonitor(ctx, msg.Device, msg, func() domain.ActorResponse {
			return domain.ResetEnergyResponse{
				ActorResponseMixIn: unknownDeviceError(msg.Device),
			}
		})
	case domain.SetPollIntervalRequest:
		state.forwardToMonitor(ctx, msg.Device, msg, func() domain.ActorResponse {
			return domain.SetPollIntervalResponse{
				ActorResponseMixIn: unknownDeviceError(msg.Device),
			}
		})
	case domain.ListDevicesRequest:
		ids := make([]domain.DeviceID, 0, len(state.devices))
		for id := range state.devices {
			ids = append(ids, id)
		}
		ForRequest(msg).Respond(ctx, domain.ListDevicesResponse{Devices: ids})
	case ProvisionDevice:
		id, err := state.provisionDevice(ctx, msg.Config)
		ForRequest(msg).Respond(ctx, ProvisionDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
			Device:             id,
		})
	case domain.DeprovisionDeviceRequest:
		err := state.deprovisionDevice(ctx, msg.Device)
		ForRequest(msg).Respond(ctx, domain.DeprovisionDeviceResponse{
			ActorResponseMixIn: domain.ActorResponseMixIn{ResponseError: err},
		})
	case billingRollover:
		state.logger.Info("master@default billing rollover")
		for _, entry := range state.devices {
			ctx.Send(entry.monitor, BillingRolloverTick{})
		}
	case *actor.Stopping:
		if state.cronScheduler != nil {
			state.cronScheduler.Stop()
		}
		if state.eventStreamSub != nil {
			state.eventStream.Unsubscribe(state.eventStreamSub)
		}
	default:
		state.logger.Debug("master@default stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) HealthCheckReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.ReceiveTimeout:
		// if some actor does not respond to healthCheck, assume not healthy
		state.currentHealthCheck.respond(ctx)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.ActorHealthResponse:
		state.logger.Debug("master@healthcheck ActorHealthResponse", zap.String("sender", msg.Id), zap.Bool("healthy", msg.Healthy))
		state.currentHealthCheck.checksReceived++
		state.currentHealthCheck.healthy[msg.Id] = msg.Healthy
		if state.currentHealthCheck.allReceived() {

			state.currentHealthCheck.respond(ctx)

			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		} else {
			ctx.SetReceiveTimeout(1 * time.Second)
		}
	default:
		state.logger.Debug("master@healthcheck stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MasterActor) forwardToMonitor(ctx actor.Context, device domain.DeviceID, msg any, onUnknown func() domain.ActorResponse) {
	entry, ok := state.devices[device]
	if !ok {
		state.logger.Warn("master@default request for unknown device", zap.String("device", string(device)))
		ctx.Respond(onUnknown())
		return
	}
	ctx.RequestWithCustomSender(entry.monitor, msg, ctx.Sender())
}

func (state *MasterActor) requestHealth(ctx actor.Context, pid *actor.PID, id string) {
	PipeToSelfWithRecover(ctx, ctx.RequestFuture(pid, domain.ActorHealthRequest{}, 500*time.Millisecond), func(err error) any {
		return domain.ActorHealthResponse{
			Id:      id,
			Healthy: false,
		}
	})
}

func (state *MasterActor) provisionDevice(ctx actor.Context, devCfg config.DeviceConfig) (domain.DeviceID, error) {
	id := devCfg.DeviceID()
	if _, exists := state.devices[id]; exists {
		return id, fmt.Errorf("device %s already provisioned", id)
	}

	client, err := state.meterClientProvider(devCfg)
	if err != nil {
		return id, err
	}

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)
	modbusProps := actor.PropsFromProducer(func() actor.Actor {
		return adactor.NewModbusActor(id, client, devCfg.Timeout(), state.logger)
	}, actor.WithSupervisor(supervisor))
	modbusPID, err := ctx.SpawnNamed(modbusProps, fmt.Sprintf("%s-%s", domain.ACTOR_ID_MODBUS_PREFIX, id))
	if err != nil {
		return id, err
	}

	monitorProps := actor.PropsFromProducer(func() actor.Actor {
		accumulator := service.NewMonthlyAccumulator(id, state.store, state.logger)
		return NewMonitorActor(id, modbusPID, state.eventStream, accumulator, state.pricing,
			devCfg.PollInterval(), devCfg.Timeout(), state.logger)
	}, actor.WithSupervisor(actor.NewOneForOneStrategy(1, 10*time.Second, func(reason interface{}) actor.Directive {
		state.logger.Warn("monitor failure", zap.Any("reason", reason))
		return actor.RestartDirective
	})))
	monitorPID, err := ctx.SpawnNamed(monitorProps, fmt.Sprintf("%s-%s", domain.ACTOR_ID_MONITOR_PREFIX, id))
	if err != nil {
		ctx.Stop(modbusPID)
		return id, err
	}

	state.devices[id] = &deviceEntry{
		config:  devCfg,
		modbus:  modbusPID,
		monitor: monitorPID,
	}
	state.logger.Info("master: device provisioned", zap.String("device", string(id)))
	return id, nil
}

func (state *MasterActor) deprovisionDevice(ctx actor.Context, id domain.DeviceID) error {
	entry, ok := state.devices[id]
	if !ok {
		return fmt.Errorf("unknown device %s", id)
	}
	ctx.Stop(entry.monitor)
	ctx.Stop(entry.modbus)
	delete(state.devices, id)
	if err := state.store.Delete(id); err != nil {
		state.logger.Warn("master: could not delete baseline", zap.String("device", string(id)), zap.Error(err))
	}
	state.logger.Info("master: device deprovisioned", zap.String("device", string(id)))
	return nil
}

func (state *MasterActor) startMQTTActor(ctx actor.Context) (*actor.PID, error) {

	supervisor := actor.NewExponentialBackoffStrategy(10*time.Second, 1*time.Second)

	mqttProps := actor.PropsFromProducer(func() actor.Actor {
		return state.mqttActorProvider()
	}, actor.WithSupervisor(supervisor))
	mqttActorPID, err := ctx.SpawnNamed(mqttProps, domain.ACTOR_ID_MQTT)
	if err != nil {
		return nil, err
	}

	return mqttActorPID, nil
}

func (state *MasterActor) startHADiscoveryActor(ctx actor.Context) (*actor.PID, error) {

	decider := func(reason interface{}) actor.Directive {
		state.logger.Warn("ha discovery failure", zap.Any("reason", reason))
		return actor.RestartDirective
	}
	supervisor := actor.NewOneForOneStrategy(1, 10*time.Second, decider)

	haDiscProps := actor.PropsFromProducer(func() actor.Actor {
		return NewHADiscoveryActor(&state.config, state.mqttActor, state.logger)
	}, actor.WithSupervisor(supervisor))
	haDiscPID, err := ctx.SpawnNamed(haDiscProps, domain.ACTOR_ID_HA_DISCOVERY)
	if err != nil {
		return nil, err
	}

	return haDiscPID, nil
}

func (state *MasterActor) startRolloverScheduler(ctx actor.Context) error {
	self := ctx.Self()
	root := ctx.ActorSystem().Root

	state.cronScheduler = quartz.NewStdScheduler()
	state.cronScheduler.Start(context.Background())

	trigger, err := quartz.NewCronTrigger(billingRolloverCron)
	if err != nil {
		return err
	}
	rolloverJob := job.NewFunctionJob(func(context.Context) (any, error) {
		root.Send(self, billingRollover{})
		return nil, nil
	})
	return state.cronScheduler.ScheduleJob(quartz.NewJobDetail(rolloverJob, quartz.NewJobKey("billing_rollover")), trigger)
}

func unknownDeviceError(id domain.DeviceID) domain.ActorResponseMixIn {
	return domain.ActorResponseMixIn{
		ResponseError: fmt.Errorf("unknown device %s", id),
	}
}

func (state *healthCheckResult) reset() {
	state.healthy = map[string]bool{}
	state.checksReceived = 0
	state.checksExpected = 0
}

func (state *healthCheckResult) allReceived() bool {
	return state.checksReceived >= state.checksExpected
}

func (state *healthCheckResult) allHealthy() bool {
	if state.checksReceived < state.checksExpected {
		return false
	}
	for _, h := range state.healthy {
		if !h {
			return false
		}
	}
	return true
}

func (state *healthCheckResult) respond(ctx actor.Context) {
	resp := domain.ActorHealthResponse{
		Id:      domain.ACTOR_ID_MASTER,
		Healthy: state.allHealthy(),
	}
	if state.respondTo != nil {
		ctx.Send(state.respondTo, resp)
	}
}
