package missionengine

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/reporter"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// FlightController is the only way the engine talks to the vehicle. Every
// method returns a *types.VehicleError on failure.
type FlightController interface {
	Arm(ctx context.Context) error
	SetMode(ctx context.Context, mode types.FlightMode) error
	Takeoff(ctx context.Context, altitude float64) error
	Goto(ctx context.Context, target types.GeoPoint) error
	Snapshot(ctx context.Context) (types.VehicleSnapshot, error)
}

// Adapters that can change cruise speed implement this as well.
type groundSpeedSetter interface {
	SetGroundSpeed(ctx context.Context, metresPerSecond float64) error
}

type Reporter interface {
	Report(ctx context.Context, cell types.GridCoordinate) reporter.SendResult
}

var errAborted = errors.New("mission aborted")

type action int

const (
	actionContinue action = iota
	actionEscalate
	actionFatal
)

// classify decides what an error means for the mission. Report failures are
// advisory. Anything else while flying brings the vehicle home, and a failure
// while already bringing it home ends the process.
func classify(err error, emergency bool) action {
	if err == nil {
		return actionContinue
	}
	var rerr *reportError
	if errors.As(err, &rerr) {
		return actionContinue
	}
	if emergency {
		return actionFatal
	}
	return actionEscalate
}

type reportError struct {
	cell types.GridCoordinate
	err  error
}

func (e *reportError) Error() string {
	return "report " + e.cell.String() + ": " + e.err.Error()
}

func (e *reportError) Unwrap() error {
	return e.err
}
