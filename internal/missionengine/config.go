package missionengine

import (
	"time"

	"github.com/pkg/errors"
)

type Config struct {
	// Cruise altitude in metres above the launch point.
	Altitude float64
	// Battery voltage at or below which the remaining legs are abandoned.
	LowBattery float64
	// A waypoint is reached when the vehicle is closer than this, in metres.
	ArrivalDistance float64
	// Takeoff is complete at TakeoffRatio x Altitude.
	TakeoffRatio float64
	PollInterval time.Duration
	// Time to hover over a waypoint before the report is sent.
	ArrivalHold time.Duration
	// Upper bound for any single wait loop. Zero waits forever.
	Watchdog time.Duration
	// Cruise ground speed in m/s. Zero keeps the autopilot default.
	GroundSpeed float64
}

func DefaultConfig() Config {
	return Config{
		Altitude:        10,
		LowBattery:      9.5,
		ArrivalDistance: 0.5,
		TakeoffRatio:    0.95,
		PollInterval:    time.Second,
		ArrivalHold:     time.Second,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Altitude <= 0:
		return errors.Errorf("altitude must be positive, got %v", c.Altitude)
	case c.ArrivalDistance <= 0:
		return errors.Errorf("arrival distance must be positive, got %v", c.ArrivalDistance)
	case c.TakeoffRatio <= 0 || c.TakeoffRatio > 1:
		return errors.Errorf("takeoff ratio must be in (0, 1], got %v", c.TakeoffRatio)
	case c.PollInterval <= 0:
		return errors.Errorf("poll interval must be positive, got %v", c.PollInterval)
	case c.ArrivalHold < 0 || c.Watchdog < 0 || c.GroundSpeed < 0 || c.LowBattery < 0:
		return errors.New("hold, watchdog, ground speed and battery threshold must not be negative")
	}
	return nil
}
