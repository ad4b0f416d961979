// Package flysim is an in-process vehicle for dry runs and tests. It flies
// straight lines at constant speed and drains the battery while armed.
package flysim

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/geo"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type Config struct {
	Home types.GeoPoint
	// Horizontal speed in m/s
	Speed float64
	// Vertical speed in m/s
	ClimbRate float64
	// Battery voltage at power on
	Voltage float64
	// Volts lost per second while armed
	Drain float64
}

func DefaultConfig(home types.GeoPoint) Config {
	return Config{Home: home, Speed: 5, ClimbRate: 2.5, Voltage: 12.6, Drain: 0.002}
}

type Vehicle struct {
	mu   sync.Mutex
	conf Config
	now  func() time.Time
	last time.Time

	pos     types.GeoPoint
	target  *types.GeoPoint
	armed   bool
	mode    types.FlightMode
	voltage float64
}

func New(conf Config) *Vehicle {
	return newVehicle(conf, time.Now)
}

func newVehicle(conf Config, now func() time.Time) *Vehicle {
	home := conf.Home
	home.Alt = 0
	return &Vehicle{
		conf:    conf,
		now:     now,
		last:    now(),
		pos:     home,
		mode:    types.FlightModeStabilize,
		voltage: conf.Voltage,
	}
}

func (v *Vehicle) Arm(ctx context.Context) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()

	if v.mode != types.FlightModeGuided {
		return rejected("arm", "mode %s does not allow arming", v.mode)
	}
	v.armed = true
	return nil
}

func (v *Vehicle) SetMode(ctx context.Context, mode types.FlightMode) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()

	switch mode {
	case types.FlightModeGuided:
	case types.FlightModeLand:
		v.target = nil
	default:
		return rejected("set-mode", "mode %s not supported", mode)
	}
	v.mode = mode
	return nil
}

func (v *Vehicle) Takeoff(ctx context.Context, altitude float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()

	if !v.armed {
		return rejected("takeoff", "not armed")
	}
	t := v.pos
	t.Alt = altitude
	v.target = &t
	return nil
}

func (v *Vehicle) Goto(ctx context.Context, target types.GeoPoint) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()

	if !v.armed || v.mode != types.FlightModeGuided {
		return rejected("goto", "vehicle not flying in GUIDED")
	}
	v.target = &target
	return nil
}

func (v *Vehicle) SetGroundSpeed(ctx context.Context, metresPerSecond float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()

	if metresPerSecond <= 0 {
		return rejected("ground-speed", "invalid speed %v", metresPerSecond)
	}
	v.conf.Speed = metresPerSecond
	return nil
}

func (v *Vehicle) Snapshot(ctx context.Context) (types.VehicleSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.advance()

	return types.VehicleSnapshot{
		Position:       v.pos,
		BatteryVoltage: math.Round(v.voltage*100) / 100,
		Armed:          v.armed,
		Mode:           v.mode,
	}, nil
}

// advance moves the simulation up to the current time. Callers hold the lock.
func (v *Vehicle) advance() {
	now := v.now()
	dt := now.Sub(v.last).Seconds()
	v.last = now
	if dt <= 0 || !v.armed {
		return
	}

	v.voltage = math.Max(0, v.voltage-v.conf.Drain*dt)

	if v.mode == types.FlightModeLand {
		v.pos.Alt = math.Max(0, v.pos.Alt-v.conf.ClimbRate*dt)
		if v.pos.Alt == 0 {
			v.armed = false
		}
		return
	}
	if v.target == nil {
		return
	}

	v.pos.Alt = approach(v.pos.Alt, v.target.Alt, v.conf.ClimbRate*dt)

	dx, dy := geo.DeltaXY(v.pos, *v.target)
	remaining := math.Hypot(dx, dy)
	step := v.conf.Speed * dt
	if remaining <= step {
		v.pos.Lat, v.pos.Lon = v.target.Lat, v.target.Lon
		return
	}
	moved := geo.Offset(v.pos, dx/remaining*step, dy/remaining*step)
	v.pos.Lat, v.pos.Lon = moved.Lat, moved.Lon
}

func approach(from, to, step float64) float64 {
	if math.Abs(to-from) <= step {
		return to
	}
	if to > from {
		return from + step
	}
	return from - step
}

func rejected(op string, format string, args ...interface{}) error {
	return types.NewVehicleError(op, types.ErrorKindRejected, errors.Errorf(format, args...))
}
