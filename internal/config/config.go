// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	MQTT      MQTT      `mapstructure:"mqtt"`
	Dashboard Dashboard `mapstructure:"dashboard"`
	Rules     Rules     `mapstructure:"rules"`
	Simulator Simulator `mapstructure:"simulator"`
	History   History   `mapstructure:"history"`
	Broker    Broker    `mapstructure:"broker"`
	Log       Log       `mapstructure:"log"`
}

type MQTT struct {
	BrokerURL      string        `mapstructure:"broker_url"`
	ClientIDPrefix string        `mapstructure:"client_id_prefix"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	KeepAlive      uint16        `mapstructure:"keepalive"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

type Dashboard struct {
	Port        int      `mapstructure:"port"`
	LogCapacity int      `mapstructure:"log_capacity"`
	Rooms       []string `mapstructure:"rooms"`
	WebDir      string   `mapstructure:"web_dir"`
	// Alerts disappear from the live toast list this long after they are first raised.
	AlertTTL time.Duration `mapstructure:"alert_ttl"`
	// Command endpoints accept at most CommandRate requests per second.
	CommandRate  float64 `mapstructure:"command_rate"`
	CommandBurst int     `mapstructure:"command_burst"`
}

// Rules holds the alert thresholds.
type Rules struct {
	PowerMax          float64 `mapstructure:"power_max"`
	TemperatureMin    float64 `mapstructure:"temperature_min"`
	TemperatureMax    float64 `mapstructure:"temperature_max"`
	HumidityMin       float64 `mapstructure:"humidity_min"`
	HumidityMax       float64 `mapstructure:"humidity_max"`
	Co2Max            float64 `mapstructure:"co2_max"`
	DeviceOverRatio   float64 `mapstructure:"device_over_ratio"`
	DeviceExpectedMin float64 `mapstructure:"device_expected_min"`
	DeviceZeroMax     float64 `mapstructure:"device_zero_max"`
}

type Simulator struct {
	Interval        time.Duration `mapstructure:"interval"`
	Rooms           []string      `mapstructure:"rooms"`
	OverrideFile    string        `mapstructure:"override_file"`
	LeakProbability float64       `mapstructure:"leak_probability"`
	AwayDamping     float64       `mapstructure:"away_damping"`
}

type History struct {
	Dir    string `mapstructure:"dir"`
	Port   int    `mapstructure:"port"`
	Influx Influx `mapstructure:"influx"`
}

type Influx struct {
	URL    string `mapstructure:"url"`
	Token  string `mapstructure:"token"`
	Org    string `mapstructure:"org"`
	Bucket string `mapstructure:"bucket"`
}

// Enabled reports whether an InfluxDB sink is configured.
func (i Influx) Enabled() bool {
	return i.URL != "" && i.Bucket != ""
}

// Broker configures the optional in-process MQTT broker.
type Broker struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	WSAddr  string `mapstructure:"ws_address"`
}

type Log struct {
	Level   string   `mapstructure:"level"`
	Outputs []string `mapstructure:"outputs"`
}

// DefaultRules returns the thresholds the dashboard ships with.
func DefaultRules() Rules {
	return Rules{
		PowerMax:          2000,
		TemperatureMin:    18,
		TemperatureMax:    28,
		HumidityMin:       30,
		HumidityMax:       70,
		Co2Max:            1000,
		DeviceOverRatio:   0.5,
		DeviceExpectedMin: 50,
		DeviceZeroMax:     5,
	}
}

// Load reads config.yaml from path, overlays SMARTHOME_* environment
// variables and fills the rest with defaults. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(path)
	v.SetEnvPrefix("smarthome")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the components cannot run with.
func (c *Config) Validate() error {
	if c.MQTT.BrokerURL == "" {
		return errors.New("mqtt.broker_url must be set")
	}
	if c.Dashboard.LogCapacity <= 0 {
		return fmt.Errorf("dashboard.log_capacity must be positive, got %d", c.Dashboard.LogCapacity)
	}
	if c.Simulator.Interval <= 0 {
		return fmt.Errorf("simulator.interval must be positive, got %s", c.Simulator.Interval)
	}
	if p := c.Simulator.LeakProbability; p < 0 || p > 1 {
		return fmt.Errorf("simulator.leak_probability must be within [0,1], got %v", p)
	}
	if c.Rules.TemperatureMin > c.Rules.TemperatureMax {
		return errors.New("rules.temperature_min is above rules.temperature_max")
	}
	if c.Rules.HumidityMin > c.Rules.HumidityMax {
		return errors.New("rules.humidity_min is above rules.humidity_max")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mqtt.broker_url", "wss://test.mosquitto.org:8081/mqtt")
	v.SetDefault("mqtt.client_id_prefix", "smarthome")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.keepalive", 30)
	v.SetDefault("mqtt.connect_timeout", "10s")

	v.SetDefault("dashboard.port", 8081)
	v.SetDefault("dashboard.log_capacity", 300)
	v.SetDefault("dashboard.rooms", []string{"cocina", "jardin", "bano", "habitacion"})
	v.SetDefault("dashboard.web_dir", "")
	v.SetDefault("dashboard.alert_ttl", "6s")
	v.SetDefault("dashboard.command_rate", 5)
	v.SetDefault("dashboard.command_burst", 10)

	rules := DefaultRules()
	v.SetDefault("rules.power_max", rules.PowerMax)
	v.SetDefault("rules.temperature_min", rules.TemperatureMin)
	v.SetDefault("rules.temperature_max", rules.TemperatureMax)
	v.SetDefault("rules.humidity_min", rules.HumidityMin)
	v.SetDefault("rules.humidity_max", rules.HumidityMax)
	v.SetDefault("rules.co2_max", rules.Co2Max)
	v.SetDefault("rules.device_over_ratio", rules.DeviceOverRatio)
	v.SetDefault("rules.device_expected_min", rules.DeviceExpectedMin)
	v.SetDefault("rules.device_zero_max", rules.DeviceZeroMax)

	v.SetDefault("simulator.interval", "30s")
	v.SetDefault("simulator.rooms", []string{"cocina", "jardin", "bano", "habitacion"})
	v.SetDefault("simulator.override_file", "overrides.json")
	v.SetDefault("simulator.leak_probability", 0.02)
	v.SetDefault("simulator.away_damping", 0.25)

	v.SetDefault("history.dir", "data/history")
	v.SetDefault("history.port", 3000)
	v.SetDefault("history.influx.url", "")
	v.SetDefault("history.influx.token", "")
	v.SetDefault("history.influx.org", "")
	v.SetDefault("history.influx.bucket", "")

	v.SetDefault("broker.enabled", false)
	v.SetDefault("broker.address", ":1883")
	v.SetDefault("broker.ws_address", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.outputs", []string{"stdout"})
}
