package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/comalice/actuatorx"
)

// Validate checks the whole configuration, returning the first problem.
func (c *Config) Validate() error {
	if c.Loop.TickRate <= 0 {
		return fmt.Errorf("loop.tickRate must be positive, got %v", c.Loop.TickRate)
	}
	if c.Loop.TickRate >= 100*time.Millisecond {
		return fmt.Errorf("loop.tickRate %v is too slow for motor control", c.Loop.TickRate)
	}
	if c.Loop.SettleDelay < 0 {
		return fmt.Errorf("loop.settleDelay must not be negative, got %v", c.Loop.SettleDelay)
	}
	if c.Loop.FaultBuffer < 0 {
		return fmt.Errorf("loop.faultBuffer must not be negative, got %d", c.Loop.FaultBuffer)
	}
	if _, err := actuatorx.ParsePolarity(c.Loop.Polarity); err != nil {
		return fmt.Errorf("loop.polarity: %w", err)
	}
	if err := c.Limits.Validate(); err != nil {
		return err
	}
	if err := c.Geometry.Validate(); err != nil {
		return err
	}
	for name, r := range map[string]actuatorx.Range{
		"thrust": c.Bounds.Thrust, "pitch": c.Bounds.Pitch,
		"roll": c.Bounds.Roll, "yaw": c.Bounds.Yaw,
	} {
		if r.Min > r.Max {
			return fmt.Errorf("bounds.%s: min %v above max %v", name, r.Min, r.Max)
		}
	}
	if err := c.Hardware.validate(); err != nil {
		return err
	}
	switch c.Recorder.Format {
	case "", "yaml", "json":
	default:
		return fmt.Errorf("recorder.format %q: want yaml or json", c.Recorder.Format)
	}
	return nil
}

func (h HardwareConfig) validate() error {
	switch h.Driver {
	case DriverSerial, DriverServoblaster:
		if h.Device == "" {
			return fmt.Errorf("hardware.device is required for driver %q", h.Driver)
		}
	case DriverPCA9685:
		if h.PWMHz <= 0 || h.PWMHz > 1526 {
			return fmt.Errorf("hardware.pwmHz %d outside pca9685 range", h.PWMHz)
		}
		if len(h.Outputs) != 0 && len(h.Outputs) != actuatorx.NumMotors {
			return fmt.Errorf("hardware.outputs needs %d entries, got %d", actuatorx.NumMotors, len(h.Outputs))
		}
		seen := map[int]bool{}
		for _, o := range h.Outputs {
			if o < 0 || o > 15 {
				return fmt.Errorf("hardware.outputs: %d is not a pca9685 output", o)
			}
			if seen[o] {
				return fmt.Errorf("hardware.outputs: output %d used twice", o)
			}
			seen[o] = true
		}
	case "":
		return errors.New("hardware.driver is required")
	default:
		return fmt.Errorf("hardware.driver %q: want serial, servoblaster or pca9685", h.Driver)
	}
	return nil
}
