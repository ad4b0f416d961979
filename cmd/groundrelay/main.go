package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/config"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/groundrelay"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/logging"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/telemetry"
)

var (
	defaultFlagSet = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	port           = defaultFlagSet.String("port", "/dev/ttyUSB0", "LoRa receiver serial port")
	baud           = defaultFlagSet.Int("baud", telemetry.DefaultBaudRate, "Serial baud rate")
	webAppURL      = defaultFlagSet.String("url", "", "Web app endpoint (default $WEB_APP_URL)")
	timeout        = defaultFlagSet.Duration("timeout", 10*time.Second, "HTTP request timeout")
	logDir         = defaultFlagSet.String("log_dir", "", "Directory for the rotated log file")
)

func main() {
	if err := defaultFlagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}
	os.Exit(run())
}

// resolveURL prefers the flag over WEB_APP_URL from the environment or .env.
func resolveURL(flagValue string) (string, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return "", err
	}
	if flagValue != "" {
		return flagValue, nil
	}
	return os.Getenv("WEB_APP_URL"), nil
}

func run() int {
	logConf := config.Default().Log
	logConf.Dir = *logDir
	defer logging.Setup(logConf, "groundrelay").Close()

	url, err := resolveURL(*webAppURL)
	if err != nil {
		log.Printf("Could not read .env: %v", err)
		return 1
	}
	if url == "" {
		log.Printf("Web app url is required (-url or WEB_APP_URL)")
		return 2
	}

	// attach sigint & sigterm listeners
	terminationSignals := make(chan os.Signal, 1)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)

	// quitFunc will be called when process is terminated
	ctx, quitFunc := context.WithCancel(context.Background())
	defer quitFunc()

	// wait group will make sure all goroutines have time to clean up
	var wg sync.WaitGroup

	serialPort, err := groundrelay.OpenSerial(*port, *baud)
	if err != nil {
		log.Printf("%v", err)
		return 1
	}

	relay := groundrelay.New(url, *timeout)
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := relay.Run(ctx, serialPort); err != nil {
			log.Printf("Relay stopped: %v", err)
		}
		select {
		case terminationSignals <- syscall.SIGTERM:
		default:
		}
	}()

	// wait for termination and close quit to signal all
	<-terminationSignals
	// cancel the main context
	log.Printf("Shutting down..")
	quitFunc()
	// closing the port unblocks the pending read
	serialPort.Close()

	// wait until goroutines have done their cleanup
	log.Printf("Waiting for routines to finish...")
	wg.Wait()
	log.Printf("Signing off - BYE")
	return 0
}
