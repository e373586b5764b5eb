package actor

import (
	"fmt"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/asynkron/protoactor-go/eventstream"
	"github.com/asynkron/protoactor-go/scheduler"
	"go.uber.org/zap"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/internal/core/events"
	"github.com/gnowmil/peacefair-energy/internal/core/service"
	. "github.com/gnowmil/peacefair-energy/internal/util/actorutil"
	"github.com/gnowmil/peacefair-energy/pkg/pzem"
)

// MonitorActor drives the poll loop of one meter. It requests readings
// from the device's modbus actor on a timer, derives monthly consumption
// and billing from each reading and publishes sensor updates on the
// event stream. On a failed poll the last good snapshot is kept.
type MonitorActor struct {
	behavior  actor.Behavior
	stash     *Stash
	scheduler *scheduler.TimerScheduler

	device       domain.DeviceID
	modbusActor  *actor.PID
	eventStream  *eventstream.EventStream
	accumulator  *service.MonthlyAccumulator
	pricing      *service.TieredPricingCalculator
	pollInterval time.Duration
	now          func() time.Time

	// the modbus actor answers within its own task deadline, these only
	// need to outwait it
	readWait  time.Duration
	resetWait time.Duration

	snapshot *pzem.Measurements
	billing  *domain.BillingValues
	lastPoll time.Time
	lastErr  domain.ErrorKind

	logger *zap.Logger
}

type monitorTick struct {
}

// BillingRolloverTick forces a billing re-evaluation without a fresh
// reading. Sent by the master at midnight so a month change is applied
// even when the device is unreachable.
type BillingRolloverTick struct {
}

func NewMonitorActor(device domain.DeviceID, modbusActor *actor.PID, eventStream *eventstream.EventStream,
	accumulator *service.MonthlyAccumulator, pricing *service.TieredPricingCalculator,
	pollInterval, timeout time.Duration, logger *zap.Logger) *MonitorActor {
	if timeout <= 0 {
		timeout = pzem.DefaultTimeout
	}
	act := &MonitorActor{
		device:       device,
		modbusActor:  modbusActor,
		behavior:     actor.NewBehavior(),
		stash:        &Stash{},
		eventStream:  eventStream,
		accumulator:  accumulator,
		pricing:      pricing,
		pollInterval: pollInterval,
		readWait:     timeout + 2*time.Second,
		resetWait:    3*timeout + 2*time.Second,
		now:          time.Now,
		logger:       ActorLogger(fmt.Sprintf("monitor/%s", device), logger),
	}
	act.behavior.Become(act.DefaultReceive)
	return act
}

func (state *MonitorActor) Receive(context actor.Context) {
	state.behavior.Receive(context)
}

func (state *MonitorActor) DefaultReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case *actor.Started:
		state.logger.Debug("monitor@default started")
		state.accumulator.Restore()
		state.scheduler = scheduler.NewTimerScheduler(ctx)
		// poll immediately so live data is available right after start
		ctx.Send(ctx.Self(), monitorTick{})
	case domain.ActorHealthRequest:
		state.logger.Debug("monitor@default: ActorHealthRequest")
		ctx.Respond(domain.ActorHealthResponse{
			Id:      fmt.Sprintf("%s/%s", domain.ACTOR_ID_MONITOR_PREFIX, state.device),
			Healthy: true,
			State:   "idle",
		})
	case monitorTick:
		state.logger.Debug("monitor@default tick")
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.GetMeasurementsRequest{}, state.readWait), func(err error) any {
			return domain.GetMeasurementsResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		// schedule next tick
		state.scheduler.RequestOnce(state.pollInterval, ctx.Self(), monitorTick{})
		state.behavior.BecomeStacked(state.WaitingPollReceive)
	case BillingRolloverTick:
		state.logger.Debug("monitor@default billing rollover tick")
		if state.snapshot != nil {
			state.evaluateBilling(state.snapshot.EnergyKWh)
			state.publishBilling()
		}
	case domain.GetLiveDataRequest:
		state.logger.Debug("monitor@default GetLiveDataRequest")
		state.respondLiveData(ctx, msg)
	case domain.SetPollIntervalRequest:
		state.logger.Info("monitor@default SetPollIntervalRequest", zap.Duration("interval", msg.Interval))
		state.pollInterval = msg.Interval
		ForRequest(msg).Respond(ctx, domain.SetPollIntervalResponse{})
	case domain.ResetEnergyRequest:
		state.logger.Info("monitor@default ResetEnergyRequest")
		replyTo := ForRequest(msg).ReplyTo(ctx)
		PipeToSelfWithRecover(ctx, ctx.RequestFuture(state.modbusActor, domain.ResetEnergyRequest{Device: state.device}, state.resetWait), func(err error) any {
			return domain.ResetEnergyResponse{
				ActorResponseMixIn: domain.ActorResponseMixIn{
					ResponseError: err,
				},
			}
		})
		state.behavior.BecomeStacked(state.waitingResetReceive(replyTo))
	default:
		state.logger.Debug("monitor@default: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) WaitingPollReceive(ctx actor.Context) {
	switch msg := ctx.Message().(type) {
	case domain.GetMeasurementsResponse:
		if msg.HasResponseError() {
			// keep the stale snapshot, only record why the poll failed
			state.lastErr = domain.ClassifyError(msg.GetResponseError())
			state.logger.Warn("monitor@waiting poll failed",
				zap.String("kind", string(state.lastErr)),
				zap.Error(msg.GetResponseError()))
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
			return
		}
		state.logger.Debug("monitor@waiting GetMeasurementsResponse")
		state.snapshot = msg.Measurements
		state.lastPoll = state.now()
		state.lastErr = domain.ErrorKindNone
		state.evaluateBilling(msg.Measurements.EnergyKWh)
		state.publishMeasurements()
		state.publishBilling()
		state.behavior.UnbecomeStacked()
		state.stash.UnstashAll(ctx)
	case domain.GetLiveDataRequest:
		// live data is served even mid-poll
		state.respondLiveData(ctx, msg)
	default:
		state.logger.Debug("monitor@waiting: stash", zap.String("type", fmt.Sprintf("%T", msg)))
		state.stash.Stash(ctx, msg)
	}
}

func (state *MonitorActor) waitingResetReceive(replyTo *actor.PID) actor.ReceiveFunc {
	return func(ctx actor.Context) {
		switch msg := ctx.Message().(type) {
		case domain.ResetEnergyResponse:
			err := msg.GetResponseError()
			if err != nil && domain.ClassifyError(err) != domain.ErrorKindParameterNegotiation {
				state.logger.Error("monitor@waitingReset reset failed", zap.Error(err))
			} else {
				if err != nil {
					// address negotiation fell back to broadcast: the reset
					// was sent but unconfirmed, the next poll settles it
					state.logger.Warn("monitor@waitingReset reset unconfirmed", zap.Error(err))
				} else {
					state.logger.Info("monitor@waitingReset reset done")
				}
				// the device zeroed its counter; reflect that immediately
				// instead of waiting for the next poll
				if state.snapshot != nil {
					zeroed := *state.snapshot
					zeroed.EnergyKWh = 0
					state.snapshot = &zeroed
				}
				state.accumulator.ForceRebaseline(0, state.now().Month())
				state.evaluateBilling(0)
				state.publishMeasurements()
				state.publishBilling()
			}
			if replyTo != nil {
				ctx.Send(replyTo, msg)
			}
			state.behavior.UnbecomeStacked()
			state.stash.UnstashAll(ctx)
		case domain.GetLiveDataRequest:
			state.respondLiveData(ctx, msg)
		default:
			state.logger.Debug("monitor@waitingReset: stash", zap.String("type", fmt.Sprintf("%T", msg)))
			state.stash.Stash(ctx, msg)
		}
	}
}

func (state *MonitorActor) respondLiveData(ctx actor.Context, msg domain.GetLiveDataRequest) {
	ForRequest(msg).Respond(ctx, domain.GetLiveDataResponse{
		Device:   state.device,
		Snapshot: state.snapshot,
		Billing:  state.billing,
		LastPoll: state.lastPoll,
		LastErr:  state.lastErr,
	})
}

func (state *MonitorActor) evaluateBilling(lifetimeKWh float64) {
	month := state.now().Month()
	monthly := state.accumulator.Evaluate(lifetimeKWh, month)
	billing := state.pricing.Evaluate(monthly, month)
	state.billing = &billing
}

func (state *MonitorActor) publishMeasurements() {
	if state.snapshot == nil {
		return
	}
	for _, ev := range events.MeasurementsToUpdateEvents(state.device, state.snapshot) {
		state.eventStream.Publish(ev)
	}
}

func (state *MonitorActor) publishBilling() {
	if state.billing == nil {
		return
	}
	for _, ev := range events.BillingToUpdateEvents(state.device, state.billing) {
		state.eventStream.Publish(ev)
	}
}
