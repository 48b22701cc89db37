package actuatorx

import (
	"context"
	"errors"
	"strconv"
)

var (
	// ErrChannelUnavailable means the hardware channel could not be opened.
	ErrChannelUnavailable = errors.New("hardware channel unavailable")
	// ErrChannelClosed is returned by drivers written to after Close.
	ErrChannelClosed = errors.New("hardware channel closed")
)

// HardwareChannel is the output to the ESC bank. Write makes exactly one
// attempt and never retries internally. Only one goroutine may use it.
type HardwareChannel interface {
	Open(ctx context.Context) error
	IsOpen() bool
	Write(m MotorIndex, pulseMicros int) error
	Close() error
}

// FormatPulse renders one motor command in the ESC bridge line format,
// "<id>=<pulse>us\n".
func FormatPulse(m MotorIndex, pulseMicros int) string {
	return string(AppendPulse(make([]byte, 0, 12), m, pulseMicros))
}

// AppendPulse appends the FormatPulse encoding to dst without allocating.
func AppendPulse(dst []byte, m MotorIndex, pulseMicros int) []byte {
	dst = strconv.AppendInt(dst, int64(m.WireID()), 10)
	dst = append(dst, '=')
	dst = strconv.AppendInt(dst, int64(pulseMicros), 10)
	return append(dst, 'u', 's', '\n')
}
