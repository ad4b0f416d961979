package groundrelay

import (
	"bufio"
	"context"
	"io"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"go.bug.st/serial"
)

type Relay struct {
	url     string
	timeout time.Duration
}

func New(url string, timeout time.Duration) *Relay {
	return &Relay{url, timeout}
}

// OpenSerial opens the radio port. Reads block until a line arrives or the
// port is closed.
func OpenSerial(device string, baud int) (io.ReadCloser, error) {
	port, err := serial.Open(device, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, errors.WithMessagef(err, "Failed to connect to serial port %s", device)
	}
	log.Printf("Connected to %s at %d baud.", device, baud)
	return port, nil
}

// Run relays every valid line from r until r is exhausted or ctx is done.
// Invalid lines and failed posts are logged and skipped.
func (r *Relay) Run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line := scanner.Text()
		if line == "" {
			continue
		}
		log.Printf("Received data: %s", line)

		report, err := Parse(line)
		if err != nil {
			log.Printf("Error parsing data: %v", err)
			continue
		}
		if err := r.Send(report); err != nil {
			log.Printf("Failed to update sheet: %v", err)
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return errors.WithMessage(scanner.Err(), "serial read")
}

// Send posts the report as a urlencoded form.
func (r *Relay) Send(report Report) error {
	args := fiber.AcquireArgs()
	defer fiber.ReleaseArgs(args)
	args.Set("row", strconv.Itoa(report.Row))
	args.Set("col", strconv.Itoa(report.Col))
	args.Set("survivors", strconv.Itoa(report.Survivors))
	args.Set("flood", strconv.Itoa(report.Flood))
	args.Set("buildingDamage", strconv.Itoa(report.BuildingDamage))

	a := fiber.Post(r.url).Form(args).Timeout(r.timeout)
	code, body, errs := a.String()
	if len(errs) > 0 {
		return errors.WithMessage(errs[0], "Error sending request")
	}
	if code != fiber.StatusOK {
		return errors.Errorf("status code %d, response: %s", code, body)
	}

	log.Printf("Sheet updated: %s", body)
	return nil
}
