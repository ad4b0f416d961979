package statusapi

import (
	"context"
	"sync"
	"time"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type Status struct {
	DeviceID   string                 `json:"device_id"`
	State      types.MissionState     `json:"state"`
	Leg        int                    `json:"leg"`
	Legs       int                    `json:"legs"`
	Cell       *types.GridCoordinate  `json:"cell,omitempty"`
	Distance   float64                `json:"distance"`
	Vehicle    *types.VehicleSnapshot `json:"vehicle,omitempty"`
	LastReport *types.ReportSent      `json:"last_report,omitempty"`
	Reports    int                    `json:"reports"`
	LastFault  *types.Fault           `json:"last_fault,omitempty"`
	Finished   *types.MissionFinished `json:"finished,omitempty"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// Store keeps the latest mission status for the HTTP API and fans progress
// messages out to websocket clients.
type Store struct {
	mu     sync.RWMutex
	status Status

	subMu sync.Mutex
	subs  map[chan types.Message]struct{}
}

func NewStore(deviceID string) *Store {
	return &Store{
		status: Status{DeviceID: deviceID},
		subs:   make(map[chan types.Message]struct{}),
	}
}

func (s *Store) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Store) Run(ctx context.Context, wg *sync.WaitGroup, post types.PostFn) {
}

func (s *Store) Receive(message types.Message) {
	s.update(message)
	s.broadcast(message)
}

func (s *Store) update(message types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := message.Message.(type) {
	case types.StateChanged:
		s.status.State = m.State
		s.status.Leg = m.Leg
		s.status.Legs = m.Legs
	case types.LegProgress:
		cell := m.Cell
		vehicle := m.Vehicle
		s.status.Cell = &cell
		s.status.Distance = m.Distance
		s.status.Vehicle = &vehicle
	case types.ReportSent:
		report := m
		s.status.LastReport = &report
		s.status.Reports++
	case types.Fault:
		fault := m
		s.status.LastFault = &fault
	case types.MissionFinished:
		finished := m
		s.status.State = m.Final
		s.status.Finished = &finished
	default:
		return
	}
	s.status.UpdatedAt = message.Timestamp
}

func (s *Store) subscribe() chan types.Message {
	ch := make(chan types.Message, 16)
	s.subMu.Lock()
	s.subs[ch] = struct{}{}
	s.subMu.Unlock()
	return ch
}

func (s *Store) unsubscribe(ch chan types.Message) {
	s.subMu.Lock()
	delete(s.subs, ch)
	s.subMu.Unlock()
}

// broadcast never blocks; slow clients miss messages.
func (s *Store) broadcast(message types.Message) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- message:
		default:
		}
	}
}
