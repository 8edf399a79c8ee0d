package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"tadl/pkg/ttl"

	"github.com/womat/debug"
	"gopkg.in/yaml.v2"
)

// Config holds the application configuration. Attention!
// Each of the struct fields must be in the format first letter uppercase
// followed by CamelCase as in the config file.
// Config defines the struct of global config and the struct of the configuration file
type Config struct {
	Role               string          `yaml:"role"`
	Variant            string          `yaml:"variant"`
	ProcessIntervalInt int             `yaml:"processinterval"`
	ProcessInterval    time.Duration   `yaml:"-"`
	RefreshIntervalInt int             `yaml:"refreshinterval"`
	RefreshInterval    time.Duration   `yaml:"-"`
	QueueSize          int             `yaml:"queuesize"`
	BlockSize          int64           `yaml:"blocksize"`
	StateFile          string          `yaml:"statefile"`
	Streams            ttl.Topology    `yaml:"streams"`
	Gpio               GpioConfig      `yaml:"gpio"`
	Flag               FlagConfig      `yaml:"-"`
	Debug              DebugConfig     `yaml:"debug"`
	Webserver          WebserverConfig `yaml:"webserver"`
	MQTT               MQTTConfig      `yaml:"mqtt"`
	Influx             InfluxConfig    `yaml:"influx"`
}

// FlagConfig defines the configured flags (parameters)
type FlagConfig struct {
	Version    bool
	Debug      string
	ConfigFile string
	Role       string
}

// GpioConfig defines the gpio lines of the panel.
// A source drives the lines with its emitted events, a sink watches them as event feed.
type GpioConfig struct {
	Driver        string        `yaml:"driver"`
	Chip          string        `yaml:"chip"`
	Stream        ttl.StreamID  `yaml:"stream"`
	Lines         []int         `yaml:"lines"`
	BounceTimeInt int           `yaml:"bouncetime"`
	BounceTime    time.Duration `yaml:"-"`
	Terminator    string        `yaml:"terminator"`
}

// WebserverConfig defines the struct of the webserver and webservice configuration and configuration file
type WebserverConfig struct {
	URL         string          `yaml:"url"`
	Webservices map[string]bool `yaml:"webservices"`
}

// MQTTConfig defines the struct of the mqtt client configuration and configuration file
type MQTTConfig struct {
	Connection string `yaml:"connection"`
	ClientID   string `yaml:"clientid"`
	// Topic is the base topic: <topic>/state holds the snapshot, <topic>/events/<stream>/<line> the line events.
	Topic string `yaml:"topic"`
}

// InfluxConfig defines the influxdb recorder. An empty url disables the recorder.
type InfluxConfig struct {
	URL          string `yaml:"url"`
	Token        string `yaml:"token"`
	Organization string `yaml:"org"`
	Bucket       string `yaml:"bucket"`
}

// DebugConfig defines the struct of the debug configuration and configuration file
type DebugConfig struct {
	File       io.WriteCloser `yaml:"-"`
	Flag       int            `yaml:"-"`
	FlagString string         `yaml:"flag"`
	FileString string         `yaml:"file"`
}

func NewConfig() *Config {
	return &Config{
		Role:               "source",
		Variant:            "banked",
		ProcessIntervalInt: 10,
		RefreshIntervalInt: 100,
		QueueSize:          64,
		BlockSize:          1024,
		StateFile:          "ttlpanel.yaml",
		Streams:            ttl.Topology{{ID: 1, Groups: []ttl.LineGroup{{Name: "ttl", Lines: ttl.TotalBits}}}},
		Gpio: GpioConfig{
			Driver:     "none",
			Chip:       "gpiochip0",
			Stream:     1,
			Terminator: "none",
		},
		Flag: FlagConfig{},
		Debug: DebugConfig{
			FileString: "stderr",
			FlagString: "standard",
		},
		Webserver: WebserverConfig{
			URL: "http://0.0.0.0:4000",
			Webservices: map[string]bool{
				"version": true,
				"health":  true,
				"data":    true,
				"state":   true,
				"control": true,
			},
		},
		MQTT: MQTTConfig{
			Topic: "ttlpanel",
		},
	}
}

func (c *Config) LoadConfig() error {
	if c.Flag.ConfigFile != "" {
		if err := c.readConfigFile(); err != nil {
			return fmt.Errorf("error reading config file %q: %w", c.Flag.ConfigFile, err)
		}
	}

	if c.Flag.Debug != "" {
		c.Debug.FlagString = c.Flag.Debug
	}
	if c.Flag.Role != "" {
		c.Role = c.Flag.Role
	}
	if err := c.validate(); err != nil {
		return err
	}
	if err := c.setDebugConfig(); err != nil {
		return fmt.Errorf("unable to open debug file %q: %w", c.Debug.FileString, err)
	}

	c.ProcessInterval = time.Duration(c.ProcessIntervalInt) * time.Millisecond
	c.RefreshInterval = time.Duration(c.RefreshIntervalInt) * time.Millisecond
	c.Gpio.BounceTime = time.Duration(c.Gpio.BounceTimeInt) * time.Millisecond

	return nil
}

func (c *Config) validate() error {
	if _, err := ttl.ParseRole(c.Role); err != nil {
		return fmt.Errorf("role %q: %w", c.Role, err)
	}
	if _, err := ttl.ParseVariant(c.Variant); err != nil {
		return fmt.Errorf("variant %q: %w", c.Variant, err)
	}
	if c.ProcessIntervalInt <= 0 || c.RefreshIntervalInt <= 0 {
		return fmt.Errorf("intervals must be positive: processinterval %d, refreshinterval %d",
			c.ProcessIntervalInt, c.RefreshIntervalInt)
	}
	if len(c.Streams) == 0 {
		return fmt.Errorf("no streams defined")
	}
	if len(c.Gpio.Lines) > ttl.TotalBits {
		return fmt.Errorf("%d gpio lines, at most %d", len(c.Gpio.Lines), ttl.TotalBits)
	}
	return nil
}

func (c *Config) readConfigFile() error {
	file, err := os.Open(c.Flag.ConfigFile)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	decoder := yaml.NewDecoder(file)
	if err = decoder.Decode(c); err != nil {
		return err
	}

	return nil
}

func (c *Config) setDebugConfig() (err error) {
	// defines Debug section of global.Config
	switch c.Debug.FlagString {
	case "trace", "full":
		c.Debug.Flag = debug.Full
	case "debug":
		c.Debug.Flag = debug.Warning | debug.Info | debug.Error | debug.Fatal | debug.Debug
	case "standard":
		c.Debug.Flag = debug.Standard
	default:
		return fmt.Errorf("unknown debug flag %q", c.Debug.FlagString)
	}

	switch c.Debug.FileString {
	case "stderr":
		c.Debug.File = os.Stderr
	case "stdout":
		c.Debug.File = os.Stdout
	default:
		if c.Debug.File, err = os.OpenFile(c.Debug.FileString, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666); err != nil {
			return
		}
	}

	return
}
