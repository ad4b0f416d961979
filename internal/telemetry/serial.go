package telemetry

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

const DefaultBaudRate = 115200

type openFn func(device string, baud int) (io.WriteCloser, error)

func openSerial(device string, baud int) (io.WriteCloser, error) {
	return serial.Open(device, &serial.Mode{BaudRate: baud})
}

// SerialSink writes newline-terminated reports to the LoRa modem. The port is
// opened on first use and reopened after a write failure.
type SerialSink struct {
	device string
	baud   int
	open   openFn

	mu   sync.Mutex
	port io.WriteCloser
}

func NewSerialSink(device string, baud int) *SerialSink {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	return &SerialSink{device: device, baud: baud, open: openSerial}
}

func (s *SerialSink) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.port == nil {
		port, err := s.open(s.device, s.baud)
		if err != nil {
			return errors.WithMessagef(err, "Could not open radio %s", s.device)
		}
		s.port = port
	}

	_, err := s.port.Write([]byte(text + "\n"))
	if err != nil {
		s.port.Close()
		s.port = nil
		return errors.WithMessagef(err, "Could not write to radio %s", s.device)
	}

	log.Printf("LoRa Sent: %s", text)
	return nil
}

func (s *SerialSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}
