package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/commands"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/config"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/detections"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/flymavlink"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/flysim"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/gridmap"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/logging"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/metrics"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/missionengine"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/missionplanner"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/reporter"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/statusapi"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/telemetry"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/types"
)

var (
	defaultFlagSet = flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	configPath     = defaultFlagSet.String("config", "", "YAML configuration file")
)

// Overrides for the configuration file. Only flags given on the command line
// are applied.
func init() {
	defaultFlagSet.String("device_id", "", "The provisioned device id")
	defaultFlagSet.String("connect", "", "MAVLink endpoint, e.g. /dev/ttyACM0:57600 or udp:0.0.0.0:14550")
	defaultFlagSet.Bool("simulate", false, "Fly the built-in simulated vehicle")
	defaultFlagSet.String("grid_map", "", "Grid cell to GPS mapping CSV")
	defaultFlagSet.String("patrol_dir", "", "Directory with patrol.json / patrol-<device>.json")
	defaultFlagSet.String("altitude", "", "Cruise altitude in metres")
	defaultFlagSet.String("low_battery", "", "Return home at or below this voltage")
	defaultFlagSet.String("arrival_distance", "", "Waypoint counts as reached within this many metres")
	defaultFlagSet.String("poll_interval", "", "Vehicle polling interval, e.g. 1s")
	defaultFlagSet.String("watchdog", "", "Give up waiting for the vehicle after this long (0 disables)")
	defaultFlagSet.String("ground_speed", "", "Ground speed in m/s after takeoff (0 keeps the autopilot default)")
	defaultFlagSet.String("detections_db", "", "Person count database written by the vision pipeline")
	defaultFlagSet.String("radio_port", "", "LoRa modem serial port")
	defaultFlagSet.String("radio_baud", "", "LoRa modem baud rate")
	defaultFlagSet.String("mqtt_broker", "", "MQTT broker protocol, address and port")
	defaultFlagSet.String("status_listen", "", "Status API listen address, e.g. :8080")
	defaultFlagSet.String("log_dir", "", "Directory for the rotated log file")
}

func main() {
	if err := defaultFlagSet.Parse(os.Args[1:]); err != nil {
		os.Exit(missionengine.ExitConfigError)
	}

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("Configuration error: %v", err)
		os.Exit(missionengine.ExitConfigError)
	}

	logCloser := logging.Setup(cfg.Log, "missionengine")
	os.Exit(run(cfg, logCloser))
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return cfg, err
	}

	defaultFlagSet.Visit(func(f *flag.Flag) {
		if err != nil || f.Name == "config" {
			return
		}
		err = cfg.Set(f.Name, f.Value.String())
	})
	if err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

func run(cfg config.Config, logCloser io.Closer) int {
	defer logCloser.Close()

	plan, err := loadPlan(cfg)
	if err != nil {
		log.Printf("Configuration error: %v", err)
		return missionengine.ExitConfigError
	}

	// attach sigint & sigterm listeners
	terminationSignals := make(chan os.Signal, 2)
	signal.Notify(terminationSignals, syscall.SIGINT, syscall.SIGTERM)

	// quitFunc will be called when the mission has finished
	ctx, quitFunc := context.WithCancel(context.Background())
	defer quitFunc()

	// wait group will make sure all goroutines have time to clean up
	var wg sync.WaitGroup

	vehicle, closeVehicle, err := connectVehicle(ctx, cfg, plan)
	if err != nil {
		log.Printf("Vehicle connection failed: %v", err)
		return missionengine.ExitFatal
	}
	defer closeVehicle()

	source, closeSource := openDetections(cfg)
	defer closeSource()

	var mqttClient mqtt.Client
	if cfg.MQTT.Enabled() {
		mqttClient, err = telemetry.NewMQTTClient(cfg.MQTT, cfg.DeviceID)
		if err != nil {
			// the radio link is enough to fly the mission
			log.Printf("MQTT disabled: %v", err)
			mqttClient = nil
		} else {
			defer mqttClient.Disconnect(1000)
		}
	}

	radio := telemetry.NewRadioSink(cfg.Radio.Port, cfg.Radio.Baud)
	defer radio.Close()
	sinks := []telemetry.Sink{radio}
	if mqttClient != nil {
		sinks = append(sinks, telemetry.NewMQTTSink(mqttClient, cfg.DeviceID))
	}

	engine := missionengine.New(
		cfg.DeviceID,
		vehicle,
		reporter.New(source, telemetry.Multi(sinks...)),
		plan,
		cfg.MissionConfig(),
	)

	collector, err := metrics.NewMissionCollector(prometheus.DefaultRegisterer)
	if err != nil {
		log.Printf("Metrics disabled: %v", err)
	}

	receivers := []types.MessageHandler{types.NewLogger(), collector}
	if cfg.Status.Listen != "" {
		store := statusapi.NewStore(cfg.DeviceID)
		receivers = append(receivers, store, statusapi.New(cfg.Status.Listen, cfg.DeviceID, store, collector.Handler()))
	}
	if mqttClient != nil {
		receivers = append(receivers,
			telemetry.NewProgressPublisher(mqttClient, cfg.DeviceID),
			commands.New(mqttClient, cfg.DeviceID),
		)
	}
	// the engine goes last so every other receiver is running before takeoff
	receivers = append(receivers, engine)

	messagebus := make(chan types.Message, 100)
	bus := types.NewMessageBus(messagebus, receivers...)
	go bus.Run(ctx, &wg)

	var outcome missionengine.Outcome
	signalled := false
	for done := false; !done; {
		select {
		case sig := <-terminationSignals:
			if signalled {
				log.Printf("Second %v, exiting without waiting for the vehicle", sig)
				return missionengine.ExitFatal
			}
			signalled = true
			log.Printf("Received %v, returning home", sig)
			bus.Post(types.CreateMessage(types.MessageTypeAbort, "signal", cfg.DeviceID, types.Abort{Reason: sig.String()}))
		case outcome = <-engine.Done():
			done = true
		}
	}

	// cancel the main context
	log.Printf("Shutting down..")
	quitFunc()

	// wait until goroutines have done their cleanup
	log.Printf("Waiting for routines to finish...")
	wg.Wait()
	log.Printf("Mission %s (%s), exit code %d - BYE", outcome.Final, outcome.Reason, outcome.ExitCode())
	return outcome.ExitCode()
}

func loadPlan(cfg config.Config) (types.FlightPlan, error) {
	registry, err := gridmap.LoadFile(cfg.Mission.GridMap)
	if err != nil {
		return nil, err
	}

	cells, err := missionplanner.LoadPatrol(cfg.Mission.PatrolDir, cfg.DeviceID)
	if err != nil {
		return nil, err
	}

	return missionplanner.BuildChecked(registry, cells, cfg.Mission.Altitude)
}

func connectVehicle(ctx context.Context, cfg config.Config, plan types.FlightPlan) (missionengine.FlightController, func(), error) {
	if cfg.Vehicle.Simulate {
		home := types.GeoPoint{}
		if len(plan) > 0 {
			home = plan[0].Target
			home.Alt = 0
		}
		log.Printf("Simulating vehicle at %s", home)
		return flysim.New(flysim.DefaultConfig(home)), func() {}, nil
	}

	conf := flymavlink.DefaultConfig(cfg.Vehicle.Endpoint)
	conf.SystemID = byte(cfg.Vehicle.SystemID)
	v, err := flymavlink.Connect(ctx, conf)
	if err != nil {
		return nil, nil, err
	}
	return v, v.Close, nil
}

// openDetections falls back to reporting zero counts when the database is not
// configured or cannot be opened.
func openDetections(cfg config.Config) (detections.Source, func()) {
	if cfg.Detections.Database == "" {
		log.Printf("No detection database configured, reporting zero counts")
		return &detections.Static{}, func() {}
	}

	store, err := detections.Open(cfg.Detections.Database)
	if err != nil {
		log.Printf("Detections unavailable, reporting zero counts: %v", err)
		return &detections.Static{}, func() {}
	}
	return store, func() { store.Close() }
}
