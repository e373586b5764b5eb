package actor

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"go.uber.org/zap"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/internal/util/actorutil"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

// ModbusActor serializes access to one PZEM meter. Reads and resets run
// as background tasks with a timeout so a stuck socket never blocks the
// mailbox; while a task is in flight, new requests are stashed.
type ModbusActor struct {
	behavior actor.Behavior
	stash    *actorutil.Stash
	device   domain.DeviceID
	client   pzem.MeterClient

	// task deadlines derived from the endpoint's transport timeout so a
	// configured slow link never outlives the actor-side wait
	readTimeout  time.Duration
	resetTimeout time.Duration

	logger *zap.Logger
}

type backgroundTaskResult struct {
	message any
	replyTo *actor.PID
}

func NewModbusActor(device domain.DeviceID, client pzem.MeterClient, timeout time.Duration, logger *zap.Logger) *ModbusActor {
	if timeout <= 0 {
		timeout = pzem.DefaultTimeout
	}
	act := &ModbusActor{
		device: device,
		client: client,
		// one round trip plus scheduling margin
		readTimeout: timeout + 1*time.Second,
		// reset may negotiate: up to two addressed probes plus the broadcast
		resetTimeout: 3*timeout + 1*time.Second,
		behavior:     actor.NewBehavior(),
		stash:        &actorutil.Stash{},
		logger:       actorutil.ActorLogger(fmt.Sprintf("modbus/%s", device), logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *ModbusActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *ModbusActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.ActorHealthRequest:
		state.logger.Debug("modbus@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      fmt.Sprintf("%s/%s", domain.ACTOR_ID_MODBUS_PREFIX, state.device),
			Healthy: true,
			State:   "idle",
		})
	case domain.GetMeasurementsRequest:
		state.logger.Debug("modbus@default: GetMeasurementsRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.readMeasurements),
			mapTaskResult[domain.GetMeasurementsResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.GetMeasurementsResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.readTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case domain.ResetEnergyRequest:
		state.logger.Debug("modbus@default: ResetEnergyRequest")
		sender := actorutil.ForRequest(msg).ReplyTo(ctx)

		actorutil.MapBackgroundTask(actorutil.NewBackgroundTask(ctx, state.resetEnergy),
			mapTaskResult[domain.ResetEnergyResponse](sender)).Recover(func(err error) backgroundTaskResult {
			return backgroundTaskResult{
				message: domain.ResetEnergyResponse{
					ActorResponseMixIn: domain.ActorResponseMixIn{
						ResponseError: err,
					},
				},
				replyTo: sender,
			}
		}).WithTimeout(state.resetTimeout).PipeTo(ctx.Self())
		state.behavior.BecomeStacked(state.WaitingModbus)
	case *actor.Stopping:
		state.client.Close()
	default:
		state.logger.Debug("modbus@default default recv", zap.String("type", fmt.Sprintf("%T", msg)))
	}
}

func (state *ModbusActor) WaitingModbus(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case backgroundTaskResult:
		state.logger.Debug("modbus@WaitingModbus backgroundTaskResult", zap.String("type", fmt.Sprintf("%T", msg.message)))
		ctx.Send(msg.replyTo, msg.message)
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case *actor.Stopping:
		state.client.Close()
	default:
		state.logger.Debug("modbus@WaitingModbus stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (a *ModbusActor) readMeasurements() (*domain.GetMeasurementsResponse, error) {
	m, err := a.client.ReadMeasurements()
	if err != nil {
		a.logger.Debug("modbus read failed", zap.Error(err))
		return nil, err
	}
	return &domain.GetMeasurementsResponse{
		Measurements: m,
	}, nil
}

func (a *ModbusActor) resetEnergy() (*domain.ResetEnergyResponse, error) {
	if err := a.client.ResetEnergy(); err != nil {
		a.logger.Debug("modbus reset failed", zap.Error(err))
		return nil, err
	}
	return &domain.ResetEnergyResponse{}, nil
}

func mapTaskResult[T any](sender *actor.PID) func(t *T) *backgroundTaskResult {
	return func(t *T) *backgroundTaskResult {
		return &backgroundTaskResult{
			message: *t,
			replyTo: sender,
		}
	}
}
