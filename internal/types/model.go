package types

import (
	"fmt"
	"time"
)

// GridCoordinate identifies one cell of the survey grid.
type GridCoordinate struct {
	Row int `json:"row" yaml:"row"`
	Col int `json:"col" yaml:"col"`
}

func (c GridCoordinate) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// GeoPoint is a WGS84 position. Alt is metres above the takeoff point.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
	Alt float64 `json:"alt"`
}

func (p GeoPoint) String() string {
	return fmt.Sprintf("(%.7f, %.7f, %.1fm)", p.Lat, p.Lon, p.Alt)
}

type Waypoint struct {
	Target GeoPoint       `json:"target"`
	Cell   GridCoordinate `json:"cell"`
	Index  int            `json:"index"`
}

type FlightPlan []Waypoint

type FlightMode uint8

const (
	FlightModeUnknown FlightMode = iota
	FlightModeGuided
	FlightModeLand
	FlightModeRTL
	FlightModeStabilize
	FlightModeLoiter
	FlightModeAuto
)

var flightModeNames = map[FlightMode]string{
	FlightModeUnknown:   "UNKNOWN",
	FlightModeGuided:    "GUIDED",
	FlightModeLand:      "LAND",
	FlightModeRTL:       "RTL",
	FlightModeStabilize: "STABILIZE",
	FlightModeLoiter:    "LOITER",
	FlightModeAuto:      "AUTO",
}

func (m FlightMode) String() string {
	if s, ok := flightModeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("MODE(%d)", uint8(m))
}

func (m FlightMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// VehicleSnapshot is a point-in-time copy of the vehicle state.
type VehicleSnapshot struct {
	Position       GeoPoint   `json:"position"`
	BatteryVoltage float64    `json:"battery_voltage"`
	Armed          bool       `json:"armed"`
	Mode           FlightMode `json:"mode"`
}

type DetectionSample struct {
	Count      int       `json:"count"`
	ObservedAt time.Time `json:"observed_at"`
}

type MissionState uint8

const (
	StateIdle MissionState = iota
	StateArming
	StateTakingOff
	StateTraversing
	StateReturning
	StateLanding
	StateAborted
	StateCompleted
)

var missionStateNames = [...]string{
	"Idle",
	"Arming",
	"TakingOff",
	"Traversing",
	"Returning",
	"Landing",
	"Aborted",
	"Completed",
}

func (s MissionState) String() string {
	if int(s) < len(missionStateNames) {
		return missionStateNames[s]
	}
	return "Unknown"
}

func (s MissionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s MissionState) Terminal() bool {
	return s == StateAborted || s == StateCompleted
}
