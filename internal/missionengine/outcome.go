package missionengine

import (
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

const (
	ReasonCompleted       = "completed"
	ReasonLowBattery      = "low-battery"
	ReasonFault           = "fault"
	ReasonOperatorAbort   = "operator-abort"
	ReasonEmergencyFailed = "emergency-failed"
)

// Process exit codes
const (
	ExitCompleted   = 0
	ExitLowBattery  = 1
	ExitFatal       = 2
	ExitAborted     = 3
	ExitConfigError = 4
)

// Outcome is how a mission ended.
type Outcome struct {
	Final       types.MissionState
	Reason      string
	LegsVisited int
	Err         error
}

func (o Outcome) ExitCode() int {
	switch o.Reason {
	case ReasonCompleted:
		return ExitCompleted
	case ReasonLowBattery:
		return ExitLowBattery
	case ReasonEmergencyFailed:
		return ExitFatal
	}
	return ExitAborted
}

func (o Outcome) message() types.MissionFinished {
	m := types.MissionFinished{Final: o.Final, Reason: o.Reason, LegsVisited: o.LegsVisited}
	if o.Err != nil {
		m.Error = o.Err.Error()
	}
	return m
}
