package main

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/jkaflik/shuttersim/internal/accessory"
	"github.com/jkaflik/shuttersim/internal/mqtt"
	"github.com/jkaflik/shuttersim/internal/shutter/driver/simulated"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type cfgShutter struct {
	Name             string `yaml:"name"`
	Manufacturer     string `yaml:"manufacturer"`
	Model            string `yaml:"model"`
	Serial           string `yaml:"serial"`
	FirmwareRevision string `yaml:"firmware_revision"`

	TravelTime time.Duration `yaml:"travel_time"`
	MovePolicy string        `yaml:"move_policy"`

	Metadata map[string]interface{} `yaml:"metadata"`
}

type cfgMQTT struct {
	Enabled  bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	ClientID string `yaml:"client_id" default:"shuttersim" env:"CLIENT_ID"`
	Broker   string `yaml:"broker" default:"127.0.0.1:1883" env:"BROKER"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`

	ConnectRetry time.Duration `yaml:"connect_retry" default:"1m" env:"CONNECT_RETRY"`
}

type cfgHASS struct {
	Enabled     bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	TopicPrefix string `yaml:"topic_prefix" default:"homeassistant" env:"TOPIC_PREFIX"`
}

type cfgHTTP struct {
	Enabled bool   `yaml:"enabled" default:"true" env:"ENABLED"`
	Addr    string `yaml:"addr" default:":8080" env:"ADDR"`
}

type Config struct {
	LogLevel string `yaml:"log_level" default:"info" env:"LOG_LEVEL"`

	MQTT cfgMQTT `yaml:"mqtt" env:"MQTT"`
	HASS cfgHASS `yaml:"hass" env:"HASS"`
	HTTP cfgHTTP `yaml:"http" env:"HTTP"`

	Shutters []cfgShutter `yaml:"shutters"`
}

var Cfg Config

const (
	defaultManufacturer = "shuttersim"
	defaultModel        = "Simulated Window Covering"
)

// loadConfig applies defaults and SHUTTERSIM_ env first, the YAML file
// overrides both. A missing file is not an error.
func loadConfig(cfg *Config, filename string) error {
	loader := aconfig.LoaderFor(cfg, aconfig.Config{
		EnvPrefix: "SHUTTERSIM",
		SkipFiles: true,
		SkipFlags: true,
	})
	if err := loader.Load(); err != nil {
		return errors.Wrap(err, "config defaults")
	}

	f, err := os.Open(filename)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.Warnf("config: %s not found, using defaults", filename)
			return nil
		}
		return errors.Wrap(err, "config open")
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return errors.Wrapf(err, "config %s decode", filename)
	}

	return nil
}

func pahoOptsFromConfig(cfg cfgMQTT) *paho.ClientOptions {
	return paho.NewClientOptions().
		SetClientID(cfg.ClientID).
		AddBroker(cfg.Broker).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetWill(mqtt.AvailabilityTopic, mqtt.PayloadOffline, 0, true).
		SetConnectTimeout(time.Second).
		SetPingTimeout(time.Second).
		SetWriteTimeout(time.Second).
		SetAutoReconnect(true)
}

func registryFromConfig(cfgs []cfgShutter) (*accessory.Registry, error) {
	reg := accessory.NewRegistry()
	for _, cfg := range cfgs {
		a, err := accessoryFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		if err := reg.Add(a); err != nil {
			return nil, err
		}
	}

	return reg, nil
}

func accessoryFromConfig(cfg cfgShutter) (*accessory.Accessory, error) {
	if cfg.Name == "" {
		return nil, errors.New("shutter name is required")
	}

	policy, err := simulated.ParseMovePolicy(cfg.MovePolicy)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", cfg.Name)
	}

	travelTime := cfg.TravelTime
	if travelTime <= 0 {
		travelTime = simulated.DefaultTravelTime
	}

	s := simulated.NewShutter(cfg.Name,
		simulated.WithTravelTime(travelTime),
		simulated.WithMovePolicy(policy),
	)
	logrus.Debugf("%s: simulated shutter (travel %s, %s policy)", cfg.Name, travelTime, policy)

	info := accessory.Info{
		Name:             cfg.Name,
		Manufacturer:     cfg.Manufacturer,
		Model:            cfg.Model,
		SerialNumber:     cfg.Serial,
		FirmwareRevision: cfg.FirmwareRevision,
	}
	if info.Manufacturer == "" {
		info.Manufacturer = defaultManufacturer
	}
	if info.Model == "" {
		info.Model = defaultModel
	}
	if info.FirmwareRevision == "" {
		info.FirmwareRevision = version
	}

	return accessory.New(info, s), nil
}

func bridgesFromConfig(client paho.Client, reg *accessory.Registry) []*mqtt.Bridge {
	var bridges []*mqtt.Bridge
	for _, a := range reg.All() {
		bridges = append(bridges, mqtt.NewBridge(client, a))
	}

	return bridges
}

func metadataFromConfig(cfgs []cfgShutter, name string) map[string]interface{} {
	for _, cfg := range cfgs {
		if cfg.Name == name {
			return cfg.Metadata
		}
	}

	return nil
}
