// Package missionengine flies the patrol: arm, take off, visit every
// waypoint of the plan reporting at each one, then return to the launch
// point and land. Low battery shortens the plan; faults and operator aborts
// take the emergency path home.
package missionengine

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/geo"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type Engine struct {
	deviceID string
	vehicle  FlightController
	reporter Reporter
	plan     types.FlightPlan
	conf     Config

	abortOnce   sync.Once
	abort       chan struct{}
	abortReason string

	done chan Outcome

	post    types.PostFn
	state   types.MissionState
	leg     int
	visited int
	launch  *types.GeoPoint
}

func New(deviceID string, vehicle FlightController, reporter Reporter, plan types.FlightPlan, conf Config) *Engine {
	return &Engine{
		deviceID: deviceID,
		vehicle:  vehicle,
		reporter: reporter,
		plan:     plan,
		conf:     conf,
		abort:    make(chan struct{}),
		done:     make(chan Outcome, 1),
		post:     func(types.Message) {},
	}
}

// Run flies the mission once. The outcome is delivered on Done.
func (e *Engine) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
	wg.Add(1)
	defer wg.Done()

	e.done <- e.Execute(ctx, post)
}

func (e *Engine) Receive(message types.Message) {
	if message.MessageType != types.MessageTypeAbort {
		return
	}
	reason := "operator"
	if m, ok := message.Message.(types.Abort); ok && m.Reason != "" {
		reason = m.Reason
	}
	e.Abort(reason)
}

// Abort asks the mission to stop and come home. It is observed between poll
// iterations. Only the first call has an effect.
func (e *Engine) Abort(reason string) {
	if reason == "" {
		reason = "operator"
	}
	e.abortOnce.Do(func() {
		log.Printf("Abort requested: %s", reason)
		e.abortReason = reason
		close(e.abort)
	})
}

func (e *Engine) Done() <-chan Outcome {
	return e.done
}

// Execute flies the mission on the calling goroutine.
func (e *Engine) Execute(ctx context.Context, post types.PostFn) Outcome {
	if post != nil {
		e.post = post
	}
	log.Printf("Mission start: %d waypoints at %.1fm", len(e.plan), e.conf.Altitude)

	out := e.fly(ctx)
	e.state = out.Final

	if out.Err != nil {
		log.Printf("Mission finished: %s (%s) after %d legs: %v", out.Final, out.Reason, out.LegsVisited, out.Err)
	} else {
		log.Printf("Mission finished: %s (%s) after %d legs", out.Final, out.Reason, out.LegsVisited)
	}
	e.publish(types.MessageTypeMissionFinished, out.message())

	return out
}

func (e *Engine) fly(ctx context.Context) Outcome {
	if err := e.armAndTakeoff(ctx); err != nil {
		return e.recover(ctx, err)
	}

	reason := ReasonCompleted
	for i := range e.plan {
		e.setState(types.StateTraversing, i)
		if e.aborted() {
			return e.recover(ctx, e.abortError())
		}

		low, err := e.batteryLow(ctx, i)
		if err != nil {
			return e.recover(ctx, err)
		}
		if low {
			reason = ReasonLowBattery
			break
		}

		if err := e.flyLeg(ctx, i); err != nil {
			return e.recover(ctx, err)
		}
		e.visited++
	}

	if reason == ReasonCompleted {
		log.Printf("All waypoints completed. Returning to takeoff location...")
	}
	if err := e.returnHome(ctx, true); err != nil {
		return e.recover(ctx, err)
	}

	return Outcome{Final: types.StateCompleted, Reason: reason, LegsVisited: e.visited}
}

func (e *Engine) armAndTakeoff(ctx context.Context) error {
	e.setState(types.StateArming, 0)

	snap, err := e.vehicle.Snapshot(ctx)
	if err != nil {
		return err
	}
	launch := snap.Position
	launch.Alt = e.conf.Altitude
	e.launch = &launch
	log.Printf("Launch point: %s, battery %.2fV, mode %s", launch, snap.BatteryVoltage, snap.Mode)

	if err := e.vehicle.SetMode(ctx, types.FlightModeGuided); err != nil {
		return err
	}
	if e.aborted() {
		return e.abortError()
	}
	log.Printf("Arming motors...")
	if err := e.vehicle.Arm(ctx); err != nil {
		return err
	}
	err = e.waitFor(ctx, "arming", true, func(s types.VehicleSnapshot) bool {
		if !s.Armed {
			log.Printf("Waiting for arming...")
		}
		return s.Armed
	})
	if err != nil {
		return err
	}

	e.setState(types.StateTakingOff, 0)
	if e.aborted() {
		return e.abortError()
	}
	if err := e.vehicle.Takeoff(ctx, e.conf.Altitude); err != nil {
		return err
	}
	target := e.conf.Altitude * e.conf.TakeoffRatio
	err = e.waitFor(ctx, "takeoff", true, func(s types.VehicleSnapshot) bool {
		log.Printf("Altitude: %.2fm", s.Position.Alt)
		return s.Position.Alt >= target
	})
	if err != nil {
		return err
	}
	log.Printf("Reached target altitude")

	if gs, ok := e.vehicle.(groundSpeedSetter); ok && e.conf.GroundSpeed > 0 {
		if err := gs.SetGroundSpeed(ctx, e.conf.GroundSpeed); err != nil {
			return err
		}
		log.Printf("Ground speed set to %.1fm/s", e.conf.GroundSpeed)
	}

	return nil
}

func (e *Engine) batteryLow(ctx context.Context, leg int) (bool, error) {
	snap, err := e.vehicle.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	if snap.BatteryVoltage > e.conf.LowBattery {
		return false, nil
	}

	log.Printf("Low battery (%.2fV) before waypoint %d. Aborting mission and returning to takeoff location...", snap.BatteryVoltage, leg+1)
	e.publish(types.MessageTypeBatteryLow, types.BatteryLow{Leg: leg, Voltage: snap.BatteryVoltage, Threshold: e.conf.LowBattery})
	return true, nil
}

func (e *Engine) flyLeg(ctx context.Context, leg int) error {
	wp := e.plan[leg]
	log.Printf("Waypoint %d/%d: Navigating to %s - Grid Cell: %s", leg+1, len(e.plan), wp.Target, wp.Cell)

	if err := e.vehicle.Goto(ctx, wp.Target); err != nil {
		return err
	}
	err := e.waitFor(ctx, "goto", true, func(s types.VehicleSnapshot) bool {
		d := geo.Distance(s.Position, wp.Target)
		e.publish(types.MessageTypeLegProgress, types.LegProgress{Leg: leg, Cell: wp.Cell, Distance: d, Vehicle: s})
		log.Printf("Waypoint %d: %.1fm to go", leg+1, d)
		return d < e.conf.ArrivalDistance
	})
	if err != nil {
		return err
	}
	e.publish(types.MessageTypeWaypointReached, types.WaypointReached{Leg: leg, Cell: wp.Cell})

	if err := e.hold(ctx); err != nil {
		return err
	}

	res := e.reporter.Report(ctx, wp.Cell)
	sent := types.ReportSent{Cell: wp.Cell, Count: res.Count, Text: res.Text}
	if res.Err != nil {
		err := &reportError{wp.Cell, res.Err}
		if classify(err, false) != actionContinue {
			return err
		}
		sent.Error = err.Error()
	}
	log.Printf("Reached waypoint %d - Sent: %s", leg+1, res.Text)
	e.publish(types.MessageTypeReportSent, sent)

	return nil
}

// returnHome flies back to the launch point and switches to LAND. Without a
// launch point the vehicle lands where it is.
func (e *Engine) returnHome(ctx context.Context, abortable bool) error {
	if e.launch != nil {
		e.setState(types.StateReturning, e.leg)
		launch := *e.launch
		if err := e.vehicle.Goto(ctx, launch); err != nil {
			return err
		}
		err := e.waitFor(ctx, "return", abortable, func(s types.VehicleSnapshot) bool {
			d := geo.Distance(s.Position, launch)
			log.Printf("Returning: %.1fm to takeoff location", d)
			return d < e.conf.ArrivalDistance
		})
		if err != nil {
			return err
		}
		log.Printf("Returned to takeoff location. Landing...")
	}

	e.setState(types.StateLanding, e.leg)
	return e.vehicle.SetMode(ctx, types.FlightModeLand)
}

// recover runs the emergency sequence after a fault or an abort. The sequence
// ignores further aborts and cancellation; if it fails there is nothing left
// to try.
func (e *Engine) recover(ctx context.Context, cause error) Outcome {
	reason := ReasonFault
	if errors.Is(cause, errAborted) {
		reason = ReasonOperatorAbort
		log.Printf("Mission aborted in %s (leg %d): %v", e.state, e.leg, cause)
	} else {
		log.Printf("Error during %s (leg %d): %v", e.state, e.leg, cause)
	}
	e.publish(types.MessageTypeFault, types.Fault{State: e.state, Leg: e.leg, Error: cause.Error()})

	log.Printf("Emergency return to takeoff location...")
	err := e.returnHome(context.WithoutCancel(ctx), false)
	if classify(err, true) == actionFatal {
		log.Printf("FATAL: emergency return failed: %v", err)
		return Outcome{
			Final:       types.StateAborted,
			Reason:      ReasonEmergencyFailed,
			LegsVisited: e.visited,
			Err:         errors.WithMessagef(err, "emergency return after %v", cause),
		}
	}

	return Outcome{Final: types.StateAborted, Reason: reason, LegsVisited: e.visited, Err: cause}
}

// waitFor polls the vehicle until reached returns true. It returns early on
// abort, on cancellation or when the watchdog fires.
func (e *Engine) waitFor(ctx context.Context, op string, abortable bool, reached func(types.VehicleSnapshot) bool) error {
	ticker := time.NewTicker(e.conf.PollInterval)
	defer ticker.Stop()

	var abort <-chan struct{}
	if abortable {
		abort = e.abort
	}

	var watchdog <-chan time.Time
	if e.conf.Watchdog > 0 {
		timer := time.NewTimer(e.conf.Watchdog)
		defer timer.Stop()
		watchdog = timer.C
	}

	for {
		// an abort wins over a condition that happens to be met already
		if abortable && e.aborted() {
			return e.abortError()
		}
		snap, err := e.vehicle.Snapshot(ctx)
		if err != nil {
			return err
		}
		if reached(snap) {
			return nil
		}

		select {
		case <-abort:
			return e.abortError()
		case <-ctx.Done():
			return errors.WithMessage(errAborted, ctx.Err().Error())
		case <-watchdog:
			return types.NewVehicleError(op, types.ErrorKindTimeout, errors.Errorf("no result after %v", e.conf.Watchdog))
		case <-ticker.C:
		}
	}
}

func (e *Engine) hold(ctx context.Context) error {
	if e.conf.ArrivalHold <= 0 {
		return nil
	}
	timer := time.NewTimer(e.conf.ArrivalHold)
	defer timer.Stop()

	select {
	case <-e.abort:
		return e.abortError()
	case <-ctx.Done():
		return errors.WithMessage(errAborted, ctx.Err().Error())
	case <-timer.C:
		return nil
	}
}

func (e *Engine) aborted() bool {
	select {
	case <-e.abort:
		return true
	default:
		return false
	}
}

// abortError must only be called once the abort channel is closed.
func (e *Engine) abortError() error {
	return errors.WithMessage(errAborted, e.abortReason)
}

func (e *Engine) setState(state types.MissionState, leg int) {
	if e.state == state && e.leg == leg {
		return
	}
	e.state = state
	e.leg = leg
	if state == types.StateTraversing {
		log.Printf("State: %s(%d)", state, leg)
	} else {
		log.Printf("State: %s", state)
	}
	e.publish(types.MessageTypeStateChanged, types.StateChanged{State: state, Leg: leg, Legs: len(e.plan)})
}

func (e *Engine) publish(messageType string, msg interface{}) {
	e.post(types.CreateMessage(messageType, e.deviceID, "*", msg))
}
