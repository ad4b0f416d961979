package flymavlink

import (
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// ArduCopter custom_mode values
var copterModes = map[types.FlightMode]uint32{
	types.FlightModeStabilize: 0,
	types.FlightModeAuto:      3,
	types.FlightModeGuided:    4,
	types.FlightModeLoiter:    5,
	types.FlightModeRTL:       6,
	types.FlightModeLand:      9,
}

func customMode(mode types.FlightMode) (uint32, bool) {
	m, ok := copterModes[mode]
	return m, ok
}

func flightMode(custom uint32) types.FlightMode {
	for mode, c := range copterModes {
		if c == custom {
			return mode
		}
	}
	return types.FlightModeUnknown
}
