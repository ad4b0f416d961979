// Package metrics exposes mission progress as Prometheus metrics.
package metrics

import (
	"context"
	"net/http"
	"sync"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// MissionCollector bundles the mission metrics. It is a bus receiver and
// updates the metrics from progress messages.
type MissionCollector struct {
	gatherer prometheus.Gatherer

	State            prometheus.Gauge
	Leg              prometheus.Gauge
	Legs             prometheus.Gauge
	Distance         prometheus.Gauge
	BatteryVoltage   prometheus.Gauge
	Altitude         prometheus.Gauge
	WaypointsReached prometheus.Counter
	Reports          *prometheus.CounterVec
	Faults           prometheus.Counter
	BatteryLow       prometheus.Counter
}

// NewMissionCollector registers the metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewMissionCollector(reg prometheus.Registerer) (*MissionCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &MissionCollector{gatherer: gatherer}
	var err error

	gauges := []struct {
		dst  *prometheus.Gauge
		name string
		help string
	}{
		{&c.State, "mission_state", "Current mission state (0 Idle .. 7 Completed)."},
		{&c.Leg, "mission_leg", "Index of the waypoint currently being flown."},
		{&c.Legs, "mission_legs", "Number of waypoints in the flight plan."},
		{&c.Distance, "mission_distance_to_waypoint_metres", "Distance to the current waypoint."},
		{&c.BatteryVoltage, "vehicle_battery_voltage_volts", "Last battery voltage reported by the vehicle."},
		{&c.Altitude, "vehicle_relative_altitude_metres", "Last altitude above the launch point."},
	}
	for _, g := range gauges {
		*g.dst, err = registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{Name: g.name, Help: g.help}), g.name)
		if err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *prometheus.Counter
		name string
		help string
	}{
		{&c.WaypointsReached, "mission_waypoints_reached_total", "Waypoints reached."},
		{&c.Faults, "mission_faults_total", "Faults and aborts that triggered the emergency return."},
		{&c.BatteryLow, "mission_battery_low_total", "Missions shortened because of low battery."},
	}
	for _, ct := range counters {
		*ct.dst, err = registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{Name: ct.name, Help: ct.help}), ct.name)
		if err != nil {
			return nil, err
		}
	}

	c.Reports, err = registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "mission_reports_total",
		Help: "Arrival reports, labeled by result (sent, failed).",
	}, []string{"result"}), "mission_reports_total")
	if err != nil {
		return nil, err
	}

	return c, nil
}

// Handler exposes a ready-to-use /metrics handler.
func (c *MissionCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func (c *MissionCollector) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
}

func (c *MissionCollector) Receive(message types.Message) {
	if c == nil {
		return
	}

	switch m := message.Message.(type) {
	case types.StateChanged:
		c.State.Set(float64(m.State))
		c.Leg.Set(float64(m.Leg))
		c.Legs.Set(float64(m.Legs))
	case types.LegProgress:
		c.Distance.Set(m.Distance)
		c.BatteryVoltage.Set(m.Vehicle.BatteryVoltage)
		c.Altitude.Set(m.Vehicle.Position.Alt)
	case types.WaypointReached:
		c.WaypointsReached.Inc()
	case types.ReportSent:
		if m.Error != "" {
			c.Reports.WithLabelValues("failed").Inc()
		} else {
			c.Reports.WithLabelValues("sent").Inc()
		}
	case types.BatteryLow:
		c.BatteryLow.Inc()
		c.BatteryVoltage.Set(m.Voltage)
	case types.Fault:
		c.Faults.Inc()
	case types.MissionFinished:
		c.State.Set(float64(m.Final))
	}
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, errors.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
