package hardware

import (
	"context"
	"log"
	"time"

	"github.com/comalice/actuatorx"
)

// LoggingChannel wraps a HardwareChannel and logs open, close and every
// failed write. Successful writes are not logged.
type LoggingChannel struct {
	inner  actuatorx.HardwareChannel
	logger *log.Logger
}

// NewLoggingChannel creates a LoggingChannel around inner.
func NewLoggingChannel(inner actuatorx.HardwareChannel, logger *log.Logger) *LoggingChannel {
	return &LoggingChannel{inner: inner, logger: logger}
}

func (c *LoggingChannel) Open(ctx context.Context) error {
	start := time.Now()
	err := c.inner.Open(ctx)
	c.logger.Printf("channel: open completed in %v: %v", time.Since(start), err)
	return err
}

func (c *LoggingChannel) IsOpen() bool {
	return c.inner.IsOpen()
}

func (c *LoggingChannel) Write(m actuatorx.MotorIndex, pulseMicros int) error {
	err := c.inner.Write(m, pulseMicros)
	if err != nil {
		c.logger.Printf("channel: write %s=%dus: %v", m, pulseMicros, err)
	}
	return err
}

func (c *LoggingChannel) Close() error {
	err := c.inner.Close()
	c.logger.Printf("channel: closed: %v", err)
	return err
}
