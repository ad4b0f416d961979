package types

const (
	MessageTypeStateChanged    = "state-changed"
	MessageTypeLegProgress     = "leg-progress"
	MessageTypeWaypointReached = "waypoint-reached"
	MessageTypeReportSent      = "report-sent"
	MessageTypeBatteryLow      = "battery-low"
	MessageTypeFault           = "fault"
	MessageTypeMissionFinished = "mission-finished"
	MessageTypeAbort           = "abort"
)

type StateChanged struct {
	State MissionState `json:"state"`
	Leg   int          `json:"leg"`
	Legs  int          `json:"legs"`
}

type LegProgress struct {
	Leg      int             `json:"leg"`
	Cell     GridCoordinate  `json:"cell"`
	Distance float64         `json:"distance"`
	Vehicle  VehicleSnapshot `json:"vehicle"`
}

type WaypointReached struct {
	Leg  int            `json:"leg"`
	Cell GridCoordinate `json:"cell"`
}

type ReportSent struct {
	Cell  GridCoordinate `json:"cell"`
	Count int            `json:"count"`
	Text  string         `json:"text"`
	Error string         `json:"error,omitempty"`
}

type BatteryLow struct {
	Leg       int     `json:"leg"`
	Voltage   float64 `json:"voltage"`
	Threshold float64 `json:"threshold"`
}

type Fault struct {
	State MissionState `json:"state"`
	Leg   int          `json:"leg"`
	Error string       `json:"error"`
}

type MissionFinished struct {
	Final       MissionState `json:"final"`
	Reason      string       `json:"reason"`
	LegsVisited int          `json:"legs_visited"`
	Error       string       `json:"error,omitempty"`
}

// Abort is an operator request to stop the mission and bring the vehicle home.
type Abort struct {
	Reason string `json:"reason"`
}
