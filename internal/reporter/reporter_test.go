package reporter

import (
	"context"
	"testing"

	"github.com/pkg/errors"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/detections"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type recordingSink struct {
	sent []string
	err  error
}

func (s *recordingSink) Send(ctx context.Context, text string) error {
	s.sent = append(s.sent, text)
	return s.err
}

type failingSource struct{}

func (failingSource) Latest(ctx context.Context) (types.DetectionSample, bool, error) {
	return types.DetectionSample{}, false, errors.New("database is locked")
}

func TestReport(t *testing.T) {
	feed := &detections.Static{}
	feed.Set(3)

	tests := []struct {
		name      string
		source    detections.Source
		sinkErr   error
		wantText  string
		wantCount int
		wantSent  bool
	}{
		{"latest sample", feed, nil, "5,4,3", 3, true},
		{"no sample", &detections.Static{}, nil, "5,4,0", 0, true},
		{"store error", failingSource{}, nil, "5,4,0", 0, true},
		{"send failure", feed, errors.New("radio gone"), "5,4,3", 3, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &recordingSink{err: tt.sinkErr}
			res := New(tt.source, sink).Report(context.Background(), types.GridCoordinate{Row: 5, Col: 4})

			if res.Text != tt.wantText || res.Count != tt.wantCount || res.Sent != tt.wantSent {
				t.Errorf("got %+v", res)
			}
			if (res.Err != nil) != (tt.sinkErr != nil) {
				t.Errorf("err = %v", res.Err)
			}
			if len(sink.sent) != 1 || sink.sent[0] != tt.wantText {
				t.Errorf("sink got %v", sink.sent)
			}
		})
	}
}

func TestFormat(t *testing.T) {
	if got := Format(types.GridCoordinate{Row: 12, Col: 0}, 101); got != "12,0,101" {
		t.Errorf("Format = %q", got)
	}
}
