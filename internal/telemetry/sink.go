// Package telemetry carries mission reports off the vehicle: the serial radio
// link to the ground station and, when configured, an MQTT uplink.
package telemetry

import (
	"context"
	"io"
	"log"
	"strings"

	"github.com/pkg/errors"
)

// Sink sends one line of text. Delivery is best effort; there is no
// acknowledgement.
type Sink interface {
	Send(ctx context.Context, text string) error
}

type multiSink []Sink

// Multi sends to every sink and fails only when all of them fail.
func Multi(sinks ...Sink) Sink {
	return multiSink(sinks)
}

func (m multiSink) Send(ctx context.Context, text string) error {
	failed := make([]string, 0)
	for _, s := range m {
		if err := s.Send(ctx, text); err != nil {
			failed = append(failed, err.Error())
		}
	}
	if len(m) > 0 && len(failed) == len(m) {
		return errors.Errorf("all %d sinks failed: %s", len(m), strings.Join(failed, "; "))
	}

	return nil
}

// Discard drops every message. Used when no radio is configured.
type Discard struct{}

func (Discard) Send(ctx context.Context, text string) error {
	return nil
}

func (Discard) Close() error {
	return nil
}

type SinkCloser interface {
	Sink
	io.Closer
}

// NewRadioSink returns the LoRa serial sink, or Discard when device is empty.
func NewRadioSink(device string, baud int) SinkCloser {
	if device == "" {
		log.Printf("No radio port configured, reports are not sent over LoRa")
		return Discard{}
	}
	return NewSerialSink(device, baud)
}
