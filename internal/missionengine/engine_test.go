package missionengine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/reporter"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

var home = types.GeoPoint{Lat: 21.1702, Lon: 81.3350}

// fakeVehicle reaches every commanded target on the next snapshot.
type fakeVehicle struct {
	mu       sync.Mutex
	pos      types.GeoPoint
	armed    bool
	voltages []float64
	gotos    []types.GeoPoint
	modes    []types.FlightMode
	speed    float64

	failGoto map[int]bool // 1-based goto call numbers that fail
	stallAt  int          // 1-based goto call number that never arrives
	failLand bool
	onGoto   func(n int)
	onArm    func()
	takeoffs int
}

func newFakeVehicle() *fakeVehicle {
	return &fakeVehicle{pos: home, voltages: []float64{12.4}, failGoto: map[int]bool{}}
}

func (v *fakeVehicle) Arm(ctx context.Context) error {
	v.mu.Lock()
	v.armed = true
	hook := v.onArm
	v.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (v *fakeVehicle) SetMode(ctx context.Context, mode types.FlightMode) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.modes = append(v.modes, mode)
	if mode == types.FlightModeLand && v.failLand {
		return types.NewVehicleError("set-mode", types.ErrorKindRejected, errors.New("denied"))
	}
	return nil
}

func (v *fakeVehicle) Takeoff(ctx context.Context, altitude float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pos.Alt = altitude
	v.takeoffs++
	return nil
}

func (v *fakeVehicle) Goto(ctx context.Context, target types.GeoPoint) error {
	v.mu.Lock()
	v.gotos = append(v.gotos, target)
	n := len(v.gotos)
	fail := v.failGoto[n]
	if !fail && n != v.stallAt {
		v.pos = target
	}
	hook := v.onGoto
	v.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	if fail {
		return types.NewVehicleError("goto", types.ErrorKindConnection, errors.New("link lost"))
	}
	return nil
}

func (v *fakeVehicle) Snapshot(ctx context.Context) (types.VehicleSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	i := len(v.gotos)
	if i >= len(v.voltages) {
		i = len(v.voltages) - 1
	}
	return types.VehicleSnapshot{Position: v.pos, BatteryVoltage: v.voltages[i], Armed: v.armed}, nil
}

func (v *fakeVehicle) SetGroundSpeed(ctx context.Context, mps float64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.speed = mps
	return nil
}

func (v *fakeVehicle) commanded() ([]types.GeoPoint, []types.FlightMode) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]types.GeoPoint(nil), v.gotos...), append([]types.FlightMode(nil), v.modes...)
}

type fakeReporter struct {
	mu    sync.Mutex
	cells []types.GridCoordinate
	err   error
}

func (r *fakeReporter) Report(ctx context.Context, cell types.GridCoordinate) reporter.SendResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cells = append(r.cells, cell)
	text := reporter.Format(cell, 0)
	return reporter.SendResult{Text: text, Sent: r.err == nil, Err: r.err}
}

type recorder struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (r *recorder) post(msg types.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *recorder) ofType(messageType string) []types.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]types.Message, 0)
	for _, m := range r.msgs {
		if m.MessageType == messageType {
			res = append(res, m)
		}
	}
	return res
}

func testPlan(n int) types.FlightPlan {
	plan := make(types.FlightPlan, n)
	for i := range plan {
		plan[i] = types.Waypoint{
			Target: types.GeoPoint{Lat: home.Lat + 0.0001*float64(i+1), Lon: home.Lon, Alt: 10},
			Cell:   types.GridCoordinate{Row: i + 1, Col: 2},
			Index:  i,
		}
	}
	return plan
}

func testConfig() Config {
	conf := DefaultConfig()
	conf.PollInterval = time.Millisecond
	conf.ArrivalHold = 0
	return conf
}

var launch = types.GeoPoint{Lat: home.Lat, Lon: home.Lon, Alt: 10}

func TestAllWaypointsVisitedInOrder(t *testing.T) {
	v := newFakeVehicle()
	rep := &fakeReporter{}
	rec := &recorder{}
	plan := testPlan(4)

	out := New("uav-1", v, rep, plan, testConfig()).Execute(context.Background(), rec.post)

	if out.Final != types.StateCompleted || out.Reason != ReasonCompleted || out.LegsVisited != 4 || out.Err != nil {
		t.Fatalf("outcome %+v", out)
	}
	if out.ExitCode() != ExitCompleted {
		t.Errorf("exit code %d", out.ExitCode())
	}

	gotos, modes := v.commanded()
	if len(gotos) != 5 {
		t.Fatalf("gotos %v", gotos)
	}
	for i, wp := range plan {
		if gotos[i] != wp.Target {
			t.Errorf("goto %d = %v, want %v", i, gotos[i], wp.Target)
		}
		if rep.cells[i] != wp.Cell {
			t.Errorf("report %d = %v, want %v", i, rep.cells[i], wp.Cell)
		}
	}
	if gotos[4] != launch {
		t.Errorf("final goto %v, want launch %v", gotos[4], launch)
	}
	if len(modes) != 2 || modes[0] != types.FlightModeGuided || modes[1] != types.FlightModeLand {
		t.Errorf("modes %v", modes)
	}

	if n := len(rec.ofType(types.MessageTypeWaypointReached)); n != 4 {
		t.Errorf("%d waypoint-reached messages", n)
	}
	if n := len(rec.ofType(types.MessageTypeReportSent)); n != 4 {
		t.Errorf("%d report-sent messages", n)
	}
	finished := rec.ofType(types.MessageTypeMissionFinished)
	if len(finished) != 1 || finished[0].Message.(types.MissionFinished).Final != types.StateCompleted {
		t.Errorf("mission-finished %+v", finished)
	}
}

func TestStateSequence(t *testing.T) {
	rec := &recorder{}
	New("uav-1", newFakeVehicle(), &fakeReporter{}, testPlan(2), testConfig()).Execute(context.Background(), rec.post)

	want := []types.MissionState{
		types.StateArming,
		types.StateTakingOff,
		types.StateTraversing,
		types.StateTraversing,
		types.StateReturning,
		types.StateLanding,
	}
	changes := rec.ofType(types.MessageTypeStateChanged)
	if len(changes) != len(want) {
		t.Fatalf("%d state changes, want %d", len(changes), len(want))
	}
	for i, m := range changes {
		if s := m.Message.(types.StateChanged).State; s != want[i] {
			t.Errorf("state %d = %s, want %s", i, s, want[i])
		}
	}
}

func TestLowBatteryShortensPlan(t *testing.T) {
	v := newFakeVehicle()
	v.voltages = []float64{11.0, 9.4}
	rep := &fakeReporter{}
	rec := &recorder{}
	conf := testConfig()
	conf.LowBattery = 9.5

	out := New("uav-1", v, rep, testPlan(2), conf).Execute(context.Background(), rec.post)

	if out.Reason != ReasonLowBattery || out.LegsVisited != 1 || out.ExitCode() != ExitLowBattery {
		t.Fatalf("outcome %+v", out)
	}
	gotos, modes := v.commanded()
	if len(gotos) != 2 || gotos[1] != launch {
		t.Errorf("gotos %v, want leg 0 then launch", gotos)
	}
	if modes[len(modes)-1] != types.FlightModeLand {
		t.Errorf("last mode %s", modes[len(modes)-1])
	}
	if len(rep.cells) != 1 {
		t.Errorf("reports %v", rep.cells)
	}
	low := rec.ofType(types.MessageTypeBatteryLow)
	if len(low) != 1 || low[0].Message.(types.BatteryLow).Leg != 1 {
		t.Errorf("battery-low %+v", low)
	}
}

func TestBatteryAtThresholdIsLow(t *testing.T) {
	v := newFakeVehicle()
	v.voltages = []float64{9.5}
	conf := testConfig()
	conf.LowBattery = 9.5

	out := New("uav-1", v, &fakeReporter{}, testPlan(3), conf).Execute(context.Background(), nil)
	if out.Reason != ReasonLowBattery || out.LegsVisited != 0 {
		t.Fatalf("outcome %+v", out)
	}
}

func TestFaultDuringLegReturnsAndLands(t *testing.T) {
	const legs = 4
	for k := 0; k < legs; k++ {
		v := newFakeVehicle()
		v.failGoto[k+1] = true
		rec := &recorder{}

		out := New("uav-1", v, &fakeReporter{}, testPlan(legs), testConfig()).Execute(context.Background(), rec.post)

		if out.Final != types.StateAborted || out.Reason != ReasonFault || out.LegsVisited != k {
			t.Errorf("leg %d: outcome %+v", k, out)
		}
		if out.ExitCode() != ExitAborted {
			t.Errorf("leg %d: exit code %d", k, out.ExitCode())
		}
		var verr *types.VehicleError
		if !errors.As(out.Err, &verr) || verr.Kind != types.ErrorKindConnection {
			t.Errorf("leg %d: err %v", k, out.Err)
		}

		gotos, modes := v.commanded()
		if len(gotos) != k+2 || gotos[k+1] != launch {
			t.Errorf("leg %d: gotos %v", k, gotos)
		}
		if modes[len(modes)-1] != types.FlightModeLand {
			t.Errorf("leg %d: modes %v", k, modes)
		}
		if n := len(rec.ofType(types.MessageTypeFault)); n != 1 {
			t.Errorf("leg %d: %d fault messages", k, n)
		}
	}
}

func TestOperatorAbortMidLeg(t *testing.T) {
	v := newFakeVehicle()
	v.stallAt = 2
	e := New("uav-1", v, &fakeReporter{}, testPlan(3), testConfig())
	v.onGoto = func(n int) {
		if n == 2 {
			e.Abort("ground station")
		}
	}

	out := e.Execute(context.Background(), nil)

	if out.Final != types.StateAborted || out.Reason != ReasonOperatorAbort || out.LegsVisited != 1 {
		t.Fatalf("outcome %+v", out)
	}
	if !errors.Is(out.Err, errAborted) {
		t.Errorf("err %v", out.Err)
	}
	gotos, modes := v.commanded()
	if len(gotos) != 3 || gotos[2] != launch {
		t.Errorf("gotos %v", gotos)
	}
	if modes[len(modes)-1] != types.FlightModeLand {
		t.Errorf("modes %v", modes)
	}
}

func TestAbortMessageBeforeFirstLeg(t *testing.T) {
	v := newFakeVehicle()
	e := New("uav-1", v, &fakeReporter{}, testPlan(3), testConfig())
	e.Receive(types.CreateMessage(types.MessageTypeLegProgress, "x", "*", types.LegProgress{}))
	e.Receive(types.CreateMessage(types.MessageTypeAbort, "commands", "uav-1", types.Abort{Reason: "mqtt"}))
	e.Receive(types.CreateMessage(types.MessageTypeAbort, "commands", "uav-1", types.Abort{Reason: "again"}))

	out := e.Execute(context.Background(), nil)

	if out.Reason != ReasonOperatorAbort || out.LegsVisited != 0 {
		t.Fatalf("outcome %+v", out)
	}
	gotos, _ := v.commanded()
	if len(gotos) != 1 || gotos[0] != launch {
		t.Errorf("gotos %v", gotos)
	}
}

func TestAbortWhileArmingSkipsTakeoff(t *testing.T) {
	v := newFakeVehicle()
	rec := &recorder{}
	e := New("uav-1", v, &fakeReporter{}, testPlan(3), testConfig())
	// the vehicle reports armed on the very first poll after the abort
	v.onArm = func() { e.Abort("ground station") }

	out := e.Execute(context.Background(), rec.post)

	if out.Final != types.StateAborted || out.Reason != ReasonOperatorAbort || out.LegsVisited != 0 {
		t.Fatalf("outcome %+v", out)
	}
	v.mu.Lock()
	takeoffs := v.takeoffs
	v.mu.Unlock()
	if takeoffs != 0 {
		t.Errorf("takeoff commanded %d times after abort", takeoffs)
	}
	for _, m := range rec.ofType(types.MessageTypeStateChanged) {
		if m.Message.(types.StateChanged).State == types.StateTakingOff {
			t.Errorf("entered %s after abort", types.StateTakingOff)
		}
	}
	_, modes := v.commanded()
	if modes[len(modes)-1] != types.FlightModeLand {
		t.Errorf("modes %v", modes)
	}
}

func TestAbortBeforeStartSkipsArming(t *testing.T) {
	v := newFakeVehicle()
	e := New("uav-1", v, &fakeReporter{}, testPlan(2), testConfig())
	e.Abort("")

	out := e.Execute(context.Background(), nil)

	if out.Reason != ReasonOperatorAbort {
		t.Fatalf("outcome %+v", out)
	}
	v.mu.Lock()
	armed, takeoffs := v.armed, v.takeoffs
	v.mu.Unlock()
	if armed || takeoffs != 0 {
		t.Errorf("armed=%v takeoffs=%d after abort", armed, takeoffs)
	}
}

func TestEmergencyReturnFailureIsFatal(t *testing.T) {
	v := newFakeVehicle()
	v.failGoto[2] = true
	v.failGoto[3] = true

	out := New("uav-1", v, &fakeReporter{}, testPlan(3), testConfig()).Execute(context.Background(), nil)

	if out.Reason != ReasonEmergencyFailed || out.ExitCode() != ExitFatal {
		t.Fatalf("outcome %+v", out)
	}
	if out.Final != types.StateAborted || out.Err == nil {
		t.Errorf("outcome %+v", out)
	}
}

func TestLandRejectedDuringEmergencyIsFatal(t *testing.T) {
	v := newFakeVehicle()
	v.failGoto[1] = true
	v.failLand = true

	out := New("uav-1", v, &fakeReporter{}, testPlan(2), testConfig()).Execute(context.Background(), nil)
	if out.ExitCode() != ExitFatal {
		t.Fatalf("outcome %+v", out)
	}
}

func TestWatchdogEscalates(t *testing.T) {
	v := newFakeVehicle()
	v.stallAt = 1
	conf := testConfig()
	conf.Watchdog = 20 * time.Millisecond

	out := New("uav-1", v, &fakeReporter{}, testPlan(2), conf).Execute(context.Background(), nil)

	if out.Reason != ReasonFault || out.LegsVisited != 0 {
		t.Fatalf("outcome %+v", out)
	}
	var verr *types.VehicleError
	if !errors.As(out.Err, &verr) || verr.Kind != types.ErrorKindTimeout {
		t.Errorf("err %v", out.Err)
	}
	gotos, _ := v.commanded()
	if gotos[len(gotos)-1] != launch {
		t.Errorf("gotos %v", gotos)
	}
}

func TestReportFailureDoesNotAbort(t *testing.T) {
	rec := &recorder{}
	rep := &fakeReporter{err: errors.New("radio unplugged")}

	out := New("uav-1", newFakeVehicle(), rep, testPlan(3), testConfig()).Execute(context.Background(), rec.post)

	if out.Reason != ReasonCompleted || out.LegsVisited != 3 {
		t.Fatalf("outcome %+v", out)
	}
	for _, m := range rec.ofType(types.MessageTypeReportSent) {
		if m.Message.(types.ReportSent).Error == "" {
			t.Errorf("report-sent without error: %+v", m.Message)
		}
	}
}

func TestGroundSpeedApplied(t *testing.T) {
	v := newFakeVehicle()
	conf := testConfig()
	conf.GroundSpeed = 2

	New("uav-1", v, &fakeReporter{}, testPlan(1), conf).Execute(context.Background(), nil)
	if v.speed != 2 {
		t.Errorf("ground speed %v", v.speed)
	}
}

func TestRunDeliversOutcome(t *testing.T) {
	e := New("uav-1", newFakeVehicle(), &fakeReporter{}, testPlan(2), testConfig())
	wg := &sync.WaitGroup{}
	rec := &recorder{}

	go e.Run(context.Background(), wg, rec.post)

	select {
	case out := <-e.Done():
		if out.Reason != ReasonCompleted {
			t.Errorf("outcome %+v", out)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("mission did not finish")
	}
	wg.Wait()
}

func TestClassify(t *testing.T) {
	verr := types.NewVehicleError("goto", types.ErrorKindRejected, errors.New("no"))
	tests := []struct {
		name      string
		err       error
		emergency bool
		want      action
	}{
		{"nil", nil, false, actionContinue},
		{"report", &reportError{types.GridCoordinate{}, errors.New("x")}, false, actionContinue},
		{"vehicle", verr, false, actionEscalate},
		{"wrapped vehicle", errors.WithMessage(verr, "leg 2"), false, actionEscalate},
		{"abort", errAborted, false, actionEscalate},
		{"vehicle in emergency", verr, true, actionFatal},
	}
	for _, tt := range tests {
		if got := classify(tt.err, tt.emergency); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestExitCodes(t *testing.T) {
	tests := map[string]int{
		ReasonCompleted:       0,
		ReasonLowBattery:      1,
		ReasonEmergencyFailed: 2,
		ReasonFault:           3,
		ReasonOperatorAbort:   3,
	}
	for reason, want := range tests {
		if got := (Outcome{Reason: reason}).ExitCode(); got != want {
			t.Errorf("%s: exit code %d, want %d", reason, got, want)
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
	bad := DefaultConfig()
	bad.TakeoffRatio = 1.5
	if err := bad.Validate(); err == nil {
		t.Error("expected error for takeoff ratio")
	}
	bad = DefaultConfig()
	bad.PollInterval = 0
	if err := bad.Validate(); err == nil {
		t.Error("expected error for poll interval")
	}
}
