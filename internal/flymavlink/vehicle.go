// Package flymavlink drives an ArduPilot flight controller over MAVLink.
package flymavlink

import (
	"context"
	"log"
	"math"
	"sync"
	"time"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/bluenviron/gomavlib/v3/pkg/dialects/common"
	"github.com/bluenviron/gomavlib/v3/pkg/message"
	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type Config struct {
	Endpoint string
	// System id used by this program on the MAVLink network
	SystemID byte
	// How long to wait for the first autopilot heartbeat
	ConnectTimeout time.Duration
	// How long to wait for COMMAND_ACK
	AckTimeout time.Duration
	// Snapshot fails when the last heartbeat is older than this
	StaleAfter time.Duration
}

func DefaultConfig(endpoint string) Config {
	return Config{
		Endpoint:       endpoint,
		SystemID:       255,
		ConnectTimeout: 30 * time.Second,
		AckTimeout:     3 * time.Second,
		StaleAfter:     3 * time.Second,
	}
}

type writeFn func(msg message.Message) error

type Vehicle struct {
	conf  Config
	node  *gomavlib.Node
	write writeFn
	now   func() time.Time

	mu            sync.Mutex
	systemID      byte
	componentID   byte
	heartbeat     chan struct{}
	lastHeartbeat time.Time
	position      *types.GeoPoint
	voltage       float64
	armed         bool
	mode          types.FlightMode
	acks          map[common.MAV_CMD]chan *common.MessageCommandAck
}

// Connect opens the endpoint and waits for the autopilot heartbeat.
func Connect(ctx context.Context, conf Config) (*Vehicle, error) {
	endpoint, err := ParseEndpoint(conf.Endpoint)
	if err != nil {
		return nil, err
	}

	log.Printf("Connecting to vehicle on: %s", conf.Endpoint)
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints:              []gomavlib.EndpointConf{endpoint},
		Dialect:                common.Dialect,
		OutVersion:             gomavlib.V2,
		OutSystemID:            conf.SystemID,
		StreamRequestEnable:    true,
		StreamRequestFrequency: 4,
	})
	if err != nil {
		return nil, types.NewVehicleError("connect", types.ErrorKindConnection, err)
	}

	v := newVehicle(conf, node.WriteMessageAll, time.Now)
	v.node = node
	go v.readEvents(node.Events())

	err = v.waitHeartbeat(ctx)
	if err != nil {
		node.Close()
		return nil, err
	}
	v.mu.Lock()
	log.Printf("Vehicle connected: system %d component %d", v.systemID, v.componentID)
	v.mu.Unlock()

	return v, nil
}

func newVehicle(conf Config, write writeFn, now func() time.Time) *Vehicle {
	return &Vehicle{
		conf:      conf,
		write:     write,
		now:       now,
		heartbeat: make(chan struct{}),
		acks:      make(map[common.MAV_CMD]chan *common.MessageCommandAck),
	}
}

func (v *Vehicle) Close() {
	if v.node != nil {
		v.node.Close()
	}
}

func (v *Vehicle) readEvents(events chan gomavlib.Event) {
	for evt := range events {
		switch e := evt.(type) {
		case *gomavlib.EventFrame:
			v.handleMessage(e.SystemID(), e.ComponentID(), e.Message())
		case *gomavlib.EventChannelOpen:
			log.Printf("MAVLink channel open: %v", e.Channel)
		case *gomavlib.EventChannelClose:
			log.Printf("MAVLink channel closed: %v", e.Channel)
		}
	}
}

func (v *Vehicle) waitHeartbeat(ctx context.Context) error {
	timer := time.NewTimer(v.conf.ConnectTimeout)
	defer timer.Stop()

	select {
	case <-v.heartbeat:
		return nil
	case <-timer.C:
		return types.NewVehicleError("connect", types.ErrorKindTimeout, errors.Errorf("no heartbeat within %v", v.conf.ConnectTimeout))
	case <-ctx.Done():
		return types.NewVehicleError("connect", types.ErrorKindConnection, ctx.Err())
	}
}

func (v *Vehicle) handleMessage(systemID byte, componentID byte, msg message.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if hb, ok := msg.(*common.MessageHeartbeat); ok && v.systemID == 0 {
		// GCS and companion computers also send heartbeats
		if hb.Autopilot == common.MAV_AUTOPILOT_INVALID {
			return
		}
		v.systemID = systemID
		v.componentID = componentID
		close(v.heartbeat)
	}
	if systemID != v.systemID {
		return
	}

	switch m := msg.(type) {
	case *common.MessageHeartbeat:
		if componentID != v.componentID {
			return
		}
		v.lastHeartbeat = v.now()
		v.armed = m.BaseMode&common.MAV_MODE_FLAG_SAFETY_ARMED != 0
		v.mode = flightMode(m.CustomMode)
	case *common.MessageGlobalPositionInt:
		v.position = &types.GeoPoint{
			Lat: float64(m.Lat) / 1e7,
			Lon: float64(m.Lon) / 1e7,
			Alt: float64(m.RelativeAlt) / 1000,
		}
	case *common.MessageSysStatus:
		v.voltage = float64(m.VoltageBattery) / 1000
	case *common.MessageCommandAck:
		if ch, ok := v.acks[m.Command]; ok {
			select {
			case ch <- m:
			default:
			}
		}
	}
}

func (v *Vehicle) Snapshot(ctx context.Context) (types.VehicleSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.lastHeartbeat.IsZero() || v.now().Sub(v.lastHeartbeat) > v.conf.StaleAfter {
		return types.VehicleSnapshot{}, types.NewVehicleError("snapshot", types.ErrorKindConnection, errors.New("no recent heartbeat"))
	}
	if v.position == nil {
		return types.VehicleSnapshot{}, types.NewVehicleError("snapshot", types.ErrorKindConnection, errors.New("no position received"))
	}

	return types.VehicleSnapshot{
		Position:       *v.position,
		BatteryVoltage: v.voltage,
		Armed:          v.armed,
		Mode:           v.mode,
	}, nil
}

func (v *Vehicle) Arm(ctx context.Context) error {
	return v.command(ctx, "arm", common.MAV_CMD_COMPONENT_ARM_DISARM, 1)
}

func (v *Vehicle) SetMode(ctx context.Context, mode types.FlightMode) error {
	custom, ok := customMode(mode)
	if !ok {
		return types.NewVehicleError("set-mode", types.ErrorKindRejected, errors.Errorf("mode %s has no ArduCopter equivalent", mode))
	}
	return v.command(ctx, "set-mode", common.MAV_CMD_DO_SET_MODE,
		float32(common.MAV_MODE_FLAG_CUSTOM_MODE_ENABLED), float32(custom))
}

func (v *Vehicle) Takeoff(ctx context.Context, altitude float64) error {
	return v.command(ctx, "takeoff", common.MAV_CMD_NAV_TAKEOFF, 0, 0, 0, 0, 0, 0, float32(altitude))
}

// SetGroundSpeed changes the cruise speed used by GUIDED go-to commands.
func (v *Vehicle) SetGroundSpeed(ctx context.Context, metresPerSecond float64) error {
	return v.command(ctx, "ground-speed", common.MAV_CMD_DO_CHANGE_SPEED, 1, float32(metresPerSecond), -1)
}

// Goto sends a position target. ArduCopter does not acknowledge it.
func (v *Vehicle) Goto(ctx context.Context, target types.GeoPoint) error {
	v.mu.Lock()
	sys, comp := v.systemID, v.componentID
	v.mu.Unlock()

	err := v.write(&common.MessageSetPositionTargetGlobalInt{
		TargetSystem:    sys,
		TargetComponent: comp,
		CoordinateFrame: common.MAV_FRAME_GLOBAL_RELATIVE_ALT_INT,
		TypeMask: common.POSITION_TARGET_TYPEMASK_VX_IGNORE |
			common.POSITION_TARGET_TYPEMASK_VY_IGNORE |
			common.POSITION_TARGET_TYPEMASK_VZ_IGNORE |
			common.POSITION_TARGET_TYPEMASK_AX_IGNORE |
			common.POSITION_TARGET_TYPEMASK_AY_IGNORE |
			common.POSITION_TARGET_TYPEMASK_AZ_IGNORE |
			common.POSITION_TARGET_TYPEMASK_YAW_IGNORE |
			common.POSITION_TARGET_TYPEMASK_YAW_RATE_IGNORE,
		LatInt: int32(math.Round(target.Lat * 1e7)),
		LonInt: int32(math.Round(target.Lon * 1e7)),
		Alt:    float32(target.Alt),
	})
	if err != nil {
		return types.NewVehicleError("goto", types.ErrorKindConnection, err)
	}
	return nil
}

// command sends COMMAND_LONG and waits for the matching COMMAND_ACK.
func (v *Vehicle) command(ctx context.Context, op string, cmd common.MAV_CMD, params ...float32) error {
	var p [7]float32
	copy(p[:], params)

	ack := make(chan *common.MessageCommandAck, 1)
	v.mu.Lock()
	if _, busy := v.acks[cmd]; busy {
		v.mu.Unlock()
		return types.NewVehicleError(op, types.ErrorKindRejected, errors.Errorf("%v already in flight", cmd))
	}
	v.acks[cmd] = ack
	sys, comp := v.systemID, v.componentID
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		delete(v.acks, cmd)
		v.mu.Unlock()
	}()

	err := v.write(&common.MessageCommandLong{
		TargetSystem:    sys,
		TargetComponent: comp,
		Command:         cmd,
		Param1:          p[0],
		Param2:          p[1],
		Param3:          p[2],
		Param4:          p[3],
		Param5:          p[4],
		Param6:          p[5],
		Param7:          p[6],
	})
	if err != nil {
		return types.NewVehicleError(op, types.ErrorKindConnection, err)
	}

	timer := time.NewTimer(v.conf.AckTimeout)
	defer timer.Stop()

	for {
		select {
		case m := <-ack:
			switch m.Result {
			case common.MAV_RESULT_ACCEPTED:
				return nil
			case common.MAV_RESULT_IN_PROGRESS:
				continue
			}
			return types.NewVehicleError(op, types.ErrorKindRejected, errors.Errorf("%v: %v", cmd, m.Result))
		case <-timer.C:
			return types.NewVehicleError(op, types.ErrorKindTimeout, errors.Errorf("no COMMAND_ACK for %v within %v", cmd, v.conf.AckTimeout))
		case <-ctx.Done():
			return types.NewVehicleError(op, types.ErrorKindConnection, ctx.Err())
		}
	}
}
