package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const CONFILE = "config.yml"

type Config struct {
	Device     DeviceConfig     `yaml:"Device"`
	Thresholds ThresholdsConfig `yaml:"Thresholds"`
	Control    ControlConfig    `yaml:"Control"`
	Storage    StorageConfig    `yaml:"Storage"`
	IR         IRConfig         `yaml:"IR"`
	Hardware   HardwareConfig   `yaml:"Hardware"`
	MQTT       MQTTConfig       `yaml:"MQTT"`
	Web        WebConfig        `yaml:"Web"`
	Logging    LoggingConfig    `yaml:"Logging"`
}

type DeviceConfig struct {
	// ID is used as MQTT client id and topic prefix.
	ID string `yaml:"ID"`
}

type ThresholdsConfig struct {
	High float64 `yaml:"High" json:"High"`
	Low  float64 `yaml:"Low" json:"Low"`
}

type ControlConfig struct {
	Interval  time.Duration `yaml:"Interval" json:"Interval"`
	LoopDelay time.Duration `yaml:"LoopDelay" json:"LoopDelay"`
	Debounce  time.Duration `yaml:"Debounce" json:"Debounce"`
}

type StorageConfig struct {
	File     string `yaml:"File"`
	SlotSpan int    `yaml:"SlotSpan"`
}

type IRConfig struct {
	CaptureTimeout time.Duration `yaml:"CaptureTimeout"`
	MaxSamples     int           `yaml:"MaxSamples"`
}

type HardwareConfig struct {
	ButtonPin   int    `yaml:"ButtonPin"`
	ReceiverPin int    `yaml:"ReceiverPin"`
	LedPin      int    `yaml:"LedPin"`
	SensorPath  string `yaml:"SensorPath"`
}

type MQTTConfig struct {
	Enabled    bool          `yaml:"Enabled"`
	Broker     string        `yaml:"Broker"`
	Username   string        `yaml:"Username"`
	Password   string        `yaml:"Password"`
	RetryDelay time.Duration `yaml:"RetryDelay"`
}

type WebConfig struct {
	Enabled bool   `yaml:"Enabled"`
	Listen  string `yaml:"Listen"`
}

type LogConfig struct {
	Level  string `yaml:"Level"`
	Format string `yaml:"Format"`
	File   string `yaml:"File"`
}

type LoggingConfig struct {
	TUI LogConfig `yaml:"TUI"`
	HW  LogConfig `yaml:"HW"`
}

// pwmPins are the GPIOs with a hardware PWM channel on the Raspberry Pi.
var pwmPins = map[int]bool{12: true, 13: true, 18: true, 19: true}

// ReadConfig reads and validates the configuration in cfile.
func ReadConfig(cfile string) (Config, error) {
	f, err := os.Open(cfile)
	if err != nil {
		return Config{}, fmt.Errorf("can't find config file %s: %w", cfile, err)
	}
	defer f.Close()

	var conf Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&conf); err != nil {
		return Config{}, fmt.Errorf("can't decode config file %s: %w", cfile, err)
	}
	if err := conf.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file %s: %w", cfile, err)
	}
	return conf, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	id := c.Device.ID
	if id == "" {
		return fmt.Errorf("Device.ID must not be empty")
	}
	if strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("Device.ID %q must not contain '/', '+' or '#'", id)
	}
	if err := c.Thresholds.Validate(); err != nil {
		return err
	}
	if err := c.Control.Validate(); err != nil {
		return err
	}

	if c.Storage.File == "" {
		return fmt.Errorf("Storage.File must not be empty")
	}
	if c.Storage.SlotSpan < 4 || c.Storage.SlotSpan%2 != 0 {
		return fmt.Errorf("Storage.SlotSpan (%d) must be an even number of at least 4 bytes", c.Storage.SlotSpan)
	}
	if c.Storage.SlotSpan > 2+2*0xFFFF {
		return fmt.Errorf("Storage.SlotSpan (%d) cannot hold more samples than a u16 length can count", c.Storage.SlotSpan)
	}

	if c.IR.CaptureTimeout <= 0 {
		return fmt.Errorf("IR.CaptureTimeout must be positive")
	}
	if c.IR.MaxSamples <= 0 {
		return fmt.Errorf("IR.MaxSamples must be positive")
	}

	pins := map[string]int{
		"ButtonPin":   c.Hardware.ButtonPin,
		"ReceiverPin": c.Hardware.ReceiverPin,
		"LedPin":      c.Hardware.LedPin,
	}
	seen := make(map[int]string, len(pins))
	for name, pin := range pins {
		if pin < 0 || pin > 27 {
			return fmt.Errorf("Hardware.%s (%d) must be between 0 and 27", name, pin)
		}
		if other, exists := seen[pin]; exists {
			return fmt.Errorf("Hardware.%s and Hardware.%s both use GPIO%d", name, other, pin)
		}
		seen[pin] = name
	}
	if !pwmPins[c.Hardware.LedPin] {
		return fmt.Errorf("Hardware.LedPin (%d) must be a hardware PWM pin (12, 13, 18 or 19)", c.Hardware.LedPin)
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("MQTT.Broker must be set when MQTT is enabled")
		}
		if c.MQTT.RetryDelay <= 0 {
			return fmt.Errorf("MQTT.RetryDelay must be positive")
		}
	}
	if c.Web.Enabled && c.Web.Listen == "" {
		return fmt.Errorf("Web.Listen must be set when the web API is enabled")
	}
	return nil
}

func (t ThresholdsConfig) Validate() error {
	if t.Low >= t.High {
		return fmt.Errorf("Thresholds.Low (%.1f) must be below Thresholds.High (%.1f)", t.Low, t.High)
	}
	return nil
}

func (c ControlConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("Control.Interval must be positive")
	}
	if c.LoopDelay < 0 {
		return fmt.Errorf("Control.LoopDelay must be non-negative")
	}
	if c.Debounce < 0 {
		return fmt.Errorf("Control.Debounce must be non-negative")
	}
	return nil
}

// Local Variables:
// compile-command: "cd .. && go build"
// End:
