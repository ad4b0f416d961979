// Package reporter sends the per-cell detection report when the vehicle
// arrives at a waypoint.
package reporter

import (
	"context"
	"fmt"
	"log"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/detections"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/telemetry"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

type SendResult struct {
	Text  string
	Count int
	Sent  bool
	Err   error
}

type Reporter struct {
	source detections.Source
	sink   telemetry.Sink
}

func New(source detections.Source, sink telemetry.Sink) *Reporter {
	return &Reporter{source, sink}
}

// Report never fails the caller. A missing sample or an unreadable store is
// reported as a count of 0 and a failed send is only logged.
func (r *Reporter) Report(ctx context.Context, cell types.GridCoordinate) SendResult {
	count := r.latestCount(ctx)
	text := Format(cell, count)

	err := r.sink.Send(ctx, text)
	if err != nil {
		log.Printf("Report %s not sent: %v", text, err)
		return SendResult{Text: text, Count: count, Err: err}
	}

	return SendResult{Text: text, Count: count, Sent: true}
}

func (r *Reporter) latestCount(ctx context.Context) int {
	sample, ok, err := r.source.Latest(ctx)
	if err != nil {
		log.Printf("Detection store read failed, reporting 0: %v", err)
		return 0
	}
	if !ok {
		log.Printf("No detection sample yet, reporting 0")
		return 0
	}
	return sample.Count
}

func Format(cell types.GridCoordinate, count int) string {
	return fmt.Sprintf("%d,%d,%d", cell.Row, cell.Col, count)
}
