package hardware

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/pca9685"
	"periph.io/x/host/v3"

	"github.com/comalice/actuatorx"
)

// pwmDevice is the part of *pca9685.Dev the channel uses.
type pwmDevice interface {
	SetPwmFreq(freq physic.Frequency) error
	SetPwm(channel int, on, off gpio.Duty) error
}

// PCA9685Config selects the board and the output wired to each motor.
type PCA9685Config struct {
	Bus       string                   // i2creg bus name, "" for the first bus
	Address   uint16                   // default 0x40
	Frequency physic.Frequency         // default 50Hz
	Outputs   [actuatorx.NumMotors]int // board output per motor, default 0..3
}

// PCA9685Channel writes pulse widths as 12-bit on/off counts.
type PCA9685Channel struct {
	cfg    PCA9685Config
	period time.Duration
	bus    i2c.BusCloser
	dev    pwmDevice
	// connect opens bus and device; replaced in tests.
	connect func(cfg PCA9685Config) (i2c.BusCloser, pwmDevice, error)
}

// NewPCA9685Channel creates an unopened channel.
func NewPCA9685Channel(cfg PCA9685Config) *PCA9685Channel {
	if cfg.Address == 0 {
		cfg.Address = 0x40
	}
	if cfg.Frequency == 0 {
		cfg.Frequency = 50 * physic.Hertz
	}
	if cfg.Outputs == ([actuatorx.NumMotors]int{}) {
		cfg.Outputs = [actuatorx.NumMotors]int{0, 1, 2, 3}
	}
	return &PCA9685Channel{
		cfg:     cfg,
		period:  cfg.Frequency.Period(),
		connect: connectPCA9685,
	}
}

func connectPCA9685(cfg PCA9685Config) (i2c.BusCloser, pwmDevice, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", cfg.Bus, err)
	}
	dev, err := pca9685.NewI2C(bus, cfg.Address)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("pca9685 at %#x: %w", cfg.Address, err)
	}
	return bus, dev, nil
}

func (c *PCA9685Channel) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.dev != nil {
		return nil
	}
	if c.period <= 0 {
		return errors.New("pca9685: invalid pwm frequency")
	}
	bus, dev, err := c.connect(c.cfg)
	if err != nil {
		return err
	}
	if err := dev.SetPwmFreq(c.cfg.Frequency); err != nil {
		if bus != nil {
			bus.Close()
		}
		return fmt.Errorf("pca9685 set frequency: %w", err)
	}
	c.bus, c.dev = bus, dev
	return nil
}

func (c *PCA9685Channel) IsOpen() bool {
	return c.dev != nil
}

// Counts converts a pulse width into the 12-bit off count for the period.
func (c *PCA9685Channel) Counts(pulseMicros int) gpio.Duty {
	counts := math.Round(float64(pulseMicros) * 4096 / float64(c.period.Microseconds()))
	if counts < 0 {
		counts = 0
	}
	if counts > 4095 {
		counts = 4095
	}
	return gpio.Duty(counts)
}

func (c *PCA9685Channel) Write(m actuatorx.MotorIndex, pulseMicros int) error {
	if c.dev == nil {
		return actuatorx.ErrChannelClosed
	}
	if !m.Valid() {
		return fmt.Errorf("write: unknown motor %d", int(m))
	}
	if err := c.dev.SetPwm(c.cfg.Outputs[m], 0, c.Counts(pulseMicros)); err != nil {
		return fmt.Errorf("write %s: %w", m, err)
	}
	return nil
}

func (c *PCA9685Channel) Close() error {
	c.dev = nil
	if c.bus == nil {
		return nil
	}
	err := c.bus.Close()
	c.bus = nil
	return err
}
