// Package testutil provides in-memory stand-ins for hardware and command
// sources so loops can be exercised without ESCs attached.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/comalice/actuatorx"
)

// ErrInjected is returned by FakeChannel for every scripted failure.
var ErrInjected = errors.New("testutil: injected write failure")

// FakeChannel is a HardwareChannel that records every line it would have
// sent and fails writes on request. It is safe for the test goroutine to
// inspect while a loop owns it.
type FakeChannel struct {
	OpenErr  error // returned by Open when set
	CloseErr error // returned by Close when set

	mu     sync.Mutex
	open   bool
	opens  int
	closes int
	lines  []string
	last   [actuatorx.NumMotors]int
	writes int
	failN  [actuatorx.NumMotors]int // remaining failures, negative = forever
}

// NewFakeChannel returns a closed channel with no scripted failures.
func NewFakeChannel() *FakeChannel {
	return &FakeChannel{}
}

func (c *FakeChannel) Open(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opens++
	if c.OpenErr != nil {
		return c.OpenErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	c.open = true
	return nil
}

func (c *FakeChannel) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *FakeChannel) Write(m actuatorx.MotorIndex, pulseMicros int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes++
	if !c.open {
		return actuatorx.ErrChannelClosed
	}
	if !m.Valid() {
		return errors.New("testutil: unknown motor")
	}
	switch n := c.failN[m]; {
	case n < 0:
		return ErrInjected
	case n > 0:
		c.failN[m] = n - 1
		return ErrInjected
	}
	c.last[m] = pulseMicros
	c.lines = append(c.lines, actuatorx.FormatPulse(m, pulseMicros))
	return nil
}

func (c *FakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	c.open = false
	return c.CloseErr
}

// Fail makes the next n writes to m fail. A negative n fails every write
// until Heal is called.
func (c *FakeChannel) Fail(m actuatorx.MotorIndex, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failN[m] = n
}

// FailAll makes the next n writes to every motor fail.
func (c *FakeChannel) FailAll(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.failN {
		c.failN[i] = n
	}
}

// Heal clears every scripted failure.
func (c *FakeChannel) Heal() {
	c.FailAll(0)
}

// Lines returns a copy of every successfully written line.
func (c *FakeChannel) Lines() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.lines...)
}

// Last returns the last pulse successfully written to m, or 0.
func (c *FakeChannel) Last(m actuatorx.MotorIndex) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last[m]
}

// Writes counts write attempts, failed ones included.
func (c *FakeChannel) Writes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

// Opens and Closes count calls to Open and Close.
func (c *FakeChannel) Opens() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opens
}

func (c *FakeChannel) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// WaitWrites polls until at least n write attempts were made or timeout
// expires, and reports whether the count was reached.
func (c *FakeChannel) WaitWrites(n int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if c.Writes() >= n {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(200 * time.Microsecond)
	}
}
