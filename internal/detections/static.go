package detections

import (
	"context"
	"sync"
	"time"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

// Static is an in-memory feed used by the simulator.
type Static struct {
	mu     sync.Mutex
	sample *types.DetectionSample
}

func (s *Static) Set(count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sample = &types.DetectionSample{Count: count, ObservedAt: time.Now()}
}

func (s *Static) Latest(ctx context.Context) (types.DetectionSample, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sample == nil {
		return types.DetectionSample{}, false, nil
	}
	return *s.sample, true, nil
}
