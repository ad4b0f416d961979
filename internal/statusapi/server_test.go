package statusapi

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type posted struct {
	mu   sync.Mutex
	msgs []types.Message
}

func (p *posted) post(msg types.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, msg)
}

func feed(store *Store, messageType string, msg interface{}) {
	store.Receive(types.CreateMessage(messageType, "engine", "*", msg))
}

func TestStatusReflectsProgress(t *testing.T) {
	store := NewStore("uav-1")
	app := newApp("uav-1", store, (&posted{}).post, nil)

	feed(store, types.MessageTypeStateChanged, types.StateChanged{State: types.StateTraversing, Leg: 3, Legs: 14})
	feed(store, types.MessageTypeLegProgress, types.LegProgress{
		Leg:      3,
		Cell:     types.GridCoordinate{Row: 9, Col: 1},
		Distance: 4.2,
		Vehicle:  types.VehicleSnapshot{BatteryVoltage: 11.4, Armed: true, Mode: types.FlightModeGuided},
	})
	feed(store, types.MessageTypeReportSent, types.ReportSent{Cell: types.GridCoordinate{Row: 8, Col: 3}, Count: 2, Text: "8,3,2"})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/status", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}

	var got struct {
		DeviceID string  `json:"device_id"`
		State    string  `json:"state"`
		Leg      int     `json:"leg"`
		Legs     int     `json:"legs"`
		Distance float64 `json:"distance"`
		Reports  int     `json:"reports"`
		Cell     struct {
			Row int `json:"row"`
			Col int `json:"col"`
		} `json:"cell"`
		Vehicle struct {
			Mode string `json:"mode"`
		} `json:"vehicle"`
		LastReport struct {
			Text string `json:"text"`
		} `json:"last_report"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.DeviceID != "uav-1" || got.State != "Traversing" || got.Leg != 3 || got.Legs != 14 {
		t.Errorf("status %+v", got)
	}
	if got.Cell.Row != 9 || got.Cell.Col != 1 || got.Distance != 4.2 || got.Vehicle.Mode != "GUIDED" {
		t.Errorf("progress %+v", got)
	}
	if got.Reports != 1 || got.LastReport.Text != "8,3,2" {
		t.Errorf("report %+v", got)
	}
}

func TestAbortPostsMessage(t *testing.T) {
	store := NewStore("uav-1")
	p := &posted{}
	app := newApp("uav-1", store, p.post, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/abort", strings.NewReader(`{"reason":"people on the helipad"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if len(p.msgs) != 1 || p.msgs[0].MessageType != types.MessageTypeAbort {
		t.Fatalf("posted %+v", p.msgs)
	}
	if r := p.msgs[0].Message.(types.Abort).Reason; r != "people on the helipad" {
		t.Errorf("reason %q", r)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/api/abort", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusAccepted || p.msgs[1].Message.(types.Abort).Reason != "status api" {
		t.Errorf("empty abort: status %d, %+v", resp.StatusCode, p.msgs)
	}
}

func TestAbortAfterFinishIsRejected(t *testing.T) {
	store := NewStore("uav-1")
	p := &posted{}
	app := newApp("uav-1", store, p.post, nil)
	feed(store, types.MessageTypeMissionFinished, types.MissionFinished{Final: types.StateCompleted, Reason: "completed", LegsVisited: 14})

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/api/abort", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("status %d", resp.StatusCode)
	}
	if len(p.msgs) != 0 {
		t.Errorf("posted %+v", p.msgs)
	}
	if s := store.Status(); s.Finished == nil || s.Finished.LegsVisited != 14 {
		t.Errorf("finished %+v", s.Finished)
	}
}

func TestMetricsAndWebsocketRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	app := newApp("uav-1", NewStore("uav-1"), (&posted{}).post, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "test_total 1") {
		t.Errorf("metrics body %q", body)
	}

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/websocket/mission", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusUpgradeRequired {
		t.Errorf("plain GET on websocket route: status %d", resp.StatusCode)
	}
}

func TestBroadcastDoesNotBlock(t *testing.T) {
	store := NewStore("uav-1")
	ch := store.subscribe()
	for i := 0; i < cap(ch)+10; i++ {
		feed(store, types.MessageTypeWaypointReached, types.WaypointReached{Leg: i})
	}
	if len(ch) != cap(ch) {
		t.Errorf("subscriber has %d messages", len(ch))
	}
	store.unsubscribe(ch)
	feed(store, types.MessageTypeWaypointReached, types.WaypointReached{})
}
