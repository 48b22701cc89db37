package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/comalice/actuatorx"
	"github.com/comalice/actuatorx/realtime"
)

// Config represents the complete daemon configuration.
type Config struct {
	Loop     LoopConfig              `yaml:"loop"`
	Limits   actuatorx.SafetyLimits  `yaml:"limits"`
	Geometry actuatorx.Geometry      `yaml:"geometry"`
	Bounds   actuatorx.CommandBounds `yaml:"bounds"`
	Hardware HardwareConfig          `yaml:"hardware"`
	Recorder RecorderConfig          `yaml:"recorder"`
}

// LoopConfig holds timing settings of the actuation loop.
type LoopConfig struct {
	ID          string        `yaml:"id"`
	TickRate    time.Duration `yaml:"tickRate"`
	SettleDelay time.Duration `yaml:"settleDelay"`
	Polarity    string        `yaml:"polarity"`
	FaultBuffer int           `yaml:"faultBuffer"`
}

// HardwareConfig selects and configures the ESC driver.
type HardwareConfig struct {
	Driver     string `yaml:"driver"` // serial, servoblaster or pca9685
	Device     string `yaml:"device"`
	Baud       int    `yaml:"baud"`
	I2CBus     string `yaml:"i2cBus"`
	I2CAddress uint16 `yaml:"i2cAddress"`
	PWMHz      int    `yaml:"pwmHz"`
	Outputs    []int  `yaml:"outputs"`
}

// RecorderConfig controls the flight recorder written at shutdown.
type RecorderConfig struct {
	Dir    string `yaml:"dir"` // empty disables recording
	Format string `yaml:"format"`
}

// Driver names.
const (
	DriverSerial       = "serial"
	DriverServoblaster = "servoblaster"
	DriverPCA9685      = "pca9685"
)

// Default returns the configuration of the reference airframe.
func Default() *Config {
	return &Config{
		Loop: LoopConfig{
			ID:          "quad",
			TickRate:    5 * time.Millisecond,
			SettleDelay: time.Second,
			Polarity:    actuatorx.Increasing.String(),
			FaultBuffer: 1024,
		},
		Limits:   actuatorx.DefaultSafetyLimits(),
		Geometry: actuatorx.DefaultGeometry(),
		Hardware: HardwareConfig{
			Driver: DriverServoblaster,
			Device: "/dev/servoblaster",
			Baud:   9600,
			PWMHz:  50,
		},
		Recorder: RecorderConfig{Format: "yaml"},
	}
}

// Load reads path over the defaults, applies environment overrides and
// validates. An empty path uses defaults and environment only.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	var err error
	if cfg.Recorder.Dir, err = homedir.Expand(cfg.Recorder.Dir); err != nil {
		return nil, fmt.Errorf("recorder dir: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand %s: %w", path, err)
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return fmt.Errorf("read config %s: %w", expanded, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", expanded, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("ACTUATORX_DRIVER"); v != "" {
		cfg.Hardware.Driver = v
	}
	if v := os.Getenv("ACTUATORX_DEVICE"); v != "" {
		cfg.Hardware.Device = v
	}
	if v := os.Getenv("ACTUATORX_TICK_RATE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ACTUATORX_TICK_RATE: %w", err)
		}
		cfg.Loop.TickRate = d
	}
	return nil
}

// LoopConfig converts the file layout into the loop's Config.
func (c *Config) LoopConfig() (realtime.Config, error) {
	pol, err := actuatorx.ParsePolarity(c.Loop.Polarity)
	if err != nil {
		return realtime.Config{}, err
	}
	return realtime.Config{
		ID:          c.Loop.ID,
		TickRate:    c.Loop.TickRate,
		SettleDelay: c.Loop.SettleDelay,
		Limits:      c.Limits,
		Geometry:    c.Geometry,
		Polarity:    pol,
		Bounds:      c.Bounds,
		FaultBuffer: c.Loop.FaultBuffer,
	}, nil
}
