package flymavlink

import (
	"strconv"
	"strings"

	"github.com/bluenviron/gomavlib/v3"
	"github.com/pkg/errors"
)

const DefaultSerialBaud = 115200

// ParseEndpoint turns a connection string into a gomavlib endpoint.
//
//	/dev/ttyACM0[:baud]          serial port
//	serial:/dev/ttyUSB0[:baud]   serial port
//	udp:0.0.0.0:14550            listen for UDP (SITL, telemetry radios on a companion)
//	udpclient:10.0.0.5:14550     send UDP to a remote address
//	tcp:127.0.0.1:5760           TCP client
func ParseEndpoint(s string) (gomavlib.EndpointConf, error) {
	switch {
	case strings.HasPrefix(s, "/dev/"):
		return parseSerial(s)
	case strings.HasPrefix(s, "serial:"):
		return parseSerial(strings.TrimPrefix(s, "serial:"))
	case strings.HasPrefix(s, "udp:"):
		return gomavlib.EndpointUDPServer{Address: strings.TrimPrefix(s, "udp:")}, nil
	case strings.HasPrefix(s, "udpclient:"):
		return gomavlib.EndpointUDPClient{Address: strings.TrimPrefix(s, "udpclient:")}, nil
	case strings.HasPrefix(s, "tcp:"):
		return gomavlib.EndpointTCPClient{Address: strings.TrimPrefix(s, "tcp:")}, nil
	}
	return nil, errors.Errorf("unsupported MAVLink endpoint %q", s)
}

func parseSerial(s string) (gomavlib.EndpointConf, error) {
	device, baud := s, DefaultSerialBaud
	if i := strings.LastIndex(s, ":"); i >= 0 {
		b, err := strconv.Atoi(s[i+1:])
		if err != nil || b <= 0 {
			return nil, errors.Errorf("invalid baud rate in %q", s)
		}
		device, baud = s[:i], b
	}
	if device == "" {
		return nil, errors.Errorf("missing serial device in %q", s)
	}
	return gomavlib.EndpointSerial{Device: device, Baud: baud}, nil
}
