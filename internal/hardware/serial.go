package hardware

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.bug.st/serial"

	"github.com/comalice/actuatorx"
)

// PortOpener opens the byte stream behind a SerialChannel.
type PortOpener func(path string, baud int) (io.WriteCloser, error)

// OpenSerialPort opens a tty with go.bug.st/serial.
func OpenSerialPort(path string, baud int) (io.WriteCloser, error) {
	return serial.Open(path, &serial.Mode{BaudRate: baud})
}

// OpenDeviceFile opens a character device such as /dev/servoblaster, which
// accepts the same line format but is not a tty.
func OpenDeviceFile(path string, _ int) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_WRONLY, 0)
}

// SerialChannel sends one text line per motor command.
type SerialChannel struct {
	path string
	baud int
	open PortOpener
	port io.WriteCloser
	buf  []byte
}

// NewSerialChannel creates a channel for path. A nil opener means
// OpenSerialPort.
func NewSerialChannel(path string, baud int, open PortOpener) *SerialChannel {
	if open == nil {
		open = OpenSerialPort
	}
	if baud <= 0 {
		baud = 9600
	}
	return &SerialChannel{
		path: path,
		baud: baud,
		open: open,
		buf:  make([]byte, 0, 16),
	}
}

func (c *SerialChannel) Open(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.port != nil {
		return nil
	}
	port, err := c.open(c.path, c.baud)
	if err != nil {
		return fmt.Errorf("open %s: %w", c.path, err)
	}
	c.port = port
	return nil
}

func (c *SerialChannel) IsOpen() bool {
	return c.port != nil
}

// Write sends "<id>=<pulse>us\n" in a single write call.
func (c *SerialChannel) Write(m actuatorx.MotorIndex, pulseMicros int) error {
	if c.port == nil {
		return actuatorx.ErrChannelClosed
	}
	if !m.Valid() {
		return fmt.Errorf("write: unknown motor %d", int(m))
	}
	c.buf = actuatorx.AppendPulse(c.buf[:0], m, pulseMicros)
	n, err := c.port.Write(c.buf)
	if err != nil {
		return fmt.Errorf("write %s: %w", m, err)
	}
	if n != len(c.buf) {
		return fmt.Errorf("write %s: %w", m, io.ErrShortWrite)
	}
	return nil
}

func (c *SerialChannel) Close() error {
	if c.port == nil {
		return nil
	}
	err := c.port.Close()
	c.port = nil
	return err
}
