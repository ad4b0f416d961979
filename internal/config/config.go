// Package config loads the mission executor settings. Values come from the
// built-in defaults, then the YAML file, then the environment (a .env file is
// honoured), then command line flags.
package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/missionengine"
	"github.com/Tysondgn/IITBH-UAV-Flood-Survivor-Prediction/internal/telemetry"
)

type VehicleConfig struct {
	Endpoint string `yaml:"endpoint"`
	SystemID int    `yaml:"system_id"`
	Simulate bool   `yaml:"simulate"`
}

type MissionConfig struct {
	GridMap         string        `yaml:"grid_map"`
	PatrolDir       string        `yaml:"patrol_dir"`
	Altitude        float64       `yaml:"altitude"`
	LowBattery      float64       `yaml:"low_battery_volts"`
	ArrivalDistance float64       `yaml:"arrival_distance"`
	TakeoffRatio    float64       `yaml:"takeoff_ratio"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	ArrivalHold     time.Duration `yaml:"arrival_hold"`
	Watchdog        time.Duration `yaml:"watchdog_timeout"`
	GroundSpeed     float64       `yaml:"ground_speed"`
}

type RadioConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type DetectionsConfig struct {
	Database string `yaml:"database"`
}

type StatusConfig struct {
	Listen string `yaml:"listen"`
}

type LogConfig struct {
	Dir        string `yaml:"dir"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type Config struct {
	DeviceID   string               `yaml:"device_id"`
	Vehicle    VehicleConfig        `yaml:"vehicle"`
	Mission    MissionConfig        `yaml:"mission"`
	Radio      RadioConfig          `yaml:"radio"`
	Detections DetectionsConfig     `yaml:"detections"`
	MQTT       telemetry.MQTTConfig `yaml:"mqtt"`
	Status     StatusConfig         `yaml:"status"`
	Log        LogConfig            `yaml:"log"`
}

func Default() Config {
	m := missionengine.DefaultConfig()
	return Config{
		DeviceID: "uav-1",
		Vehicle:  VehicleConfig{Endpoint: "/dev/ttyACM0", SystemID: 255},
		Mission: MissionConfig{
			GridMap:         "helipad_gps_mapping.csv",
			Altitude:        m.Altitude,
			LowBattery:      m.LowBattery,
			ArrivalDistance: m.ArrivalDistance,
			TakeoffRatio:    m.TakeoffRatio,
			PollInterval:    m.PollInterval,
			ArrivalHold:     m.ArrivalHold,
		},
		Radio: RadioConfig{Port: "/dev/ttyUSB0", Baud: telemetry.DefaultBaudRate},
		Log:   LogConfig{MaxSizeMB: 20, MaxBackups: 5, MaxAgeDays: 30},
	}
}

// Load reads the YAML file at path (when not empty) over the defaults and then
// applies environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := ioutil.ReadFile(path)
		if err != nil {
			return cfg, errors.WithMessage(err, "Could not read config")
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, errors.WithMessagef(err, "Could not parse config %s", path)
		}
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return cfg, errors.WithMessage(err, "Could not read .env")
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, nil
}

var envKeys = map[string]string{
	"DEVICE_ID":        "device_id",
	"MAVLINK_ENDPOINT": "connect",
	"GRID_MAP":         "grid_map",
	"DETECTIONS_DB":    "detections_db",
	"RADIO_PORT":       "radio_port",
	"MQTT_BROKER":      "mqtt_broker",
	"MQTT_PRIVATE_KEY": "mqtt_private_key",
	"STATUS_LISTEN":    "status_listen",
	"LOW_BATTERY":      "low_battery",
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	for env, key := range envKeys {
		if v, ok := lookup(env); ok && v != "" {
			if err := c.Set(key, v); err != nil {
				return errors.WithMessagef(err, "environment %s", env)
			}
		}
	}
	return nil
}

// Set overrides a single value by its flag name.
func (c *Config) Set(key, value string) error {
	var err error
	switch key {
	case "device_id":
		c.DeviceID = value
	case "connect":
		c.Vehicle.Endpoint = value
	case "simulate":
		c.Vehicle.Simulate, err = strconv.ParseBool(value)
	case "grid_map":
		c.Mission.GridMap = value
	case "patrol_dir":
		c.Mission.PatrolDir = value
	case "altitude":
		c.Mission.Altitude, err = strconv.ParseFloat(value, 64)
	case "low_battery":
		c.Mission.LowBattery, err = strconv.ParseFloat(value, 64)
	case "arrival_distance":
		c.Mission.ArrivalDistance, err = strconv.ParseFloat(value, 64)
	case "poll_interval":
		c.Mission.PollInterval, err = time.ParseDuration(value)
	case "watchdog":
		c.Mission.Watchdog, err = time.ParseDuration(value)
	case "ground_speed":
		c.Mission.GroundSpeed, err = strconv.ParseFloat(value, 64)
	case "detections_db":
		c.Detections.Database = value
	case "radio_port":
		c.Radio.Port = value
	case "radio_baud":
		c.Radio.Baud, err = strconv.Atoi(value)
	case "mqtt_broker":
		c.MQTT.Broker = value
	case "mqtt_private_key":
		c.MQTT.PrivateKey = value
	case "status_listen":
		c.Status.Listen = value
	case "log_dir":
		c.Log.Dir = value
	default:
		return errors.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return errors.WithMessagef(err, "invalid value %q for %s", value, key)
	}
	return nil
}

func (c Config) MissionConfig() missionengine.Config {
	return missionengine.Config{
		Altitude:        c.Mission.Altitude,
		LowBattery:      c.Mission.LowBattery,
		ArrivalDistance: c.Mission.ArrivalDistance,
		TakeoffRatio:    c.Mission.TakeoffRatio,
		PollInterval:    c.Mission.PollInterval,
		ArrivalHold:     c.Mission.ArrivalHold,
		Watchdog:        c.Mission.Watchdog,
		GroundSpeed:     c.Mission.GroundSpeed,
	}
}

func (c Config) Validate() error {
	if c.DeviceID == "" {
		return errors.New("device id is required")
	}
	if !c.Vehicle.Simulate && c.Vehicle.Endpoint == "" {
		return errors.New("vehicle endpoint is required unless simulating")
	}
	if c.Mission.GridMap == "" {
		return errors.New("grid map path is required")
	}
	if c.Vehicle.SystemID < 1 || c.Vehicle.SystemID > 255 {
		return errors.Errorf("vehicle system id %d out of range", c.Vehicle.SystemID)
	}
	return errors.WithMessage(c.MissionConfig().Validate(), "mission")
}
