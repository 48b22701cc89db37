package realtime

import (
	"testing"

	"github.com/comalice/actuatorx"
)

func TestChannelSourceKeepsNewest(t *testing.T) {
	ch := make(chan actuatorx.CommandVector, 4)
	src := NewChannelSource(ch)

	if _, ok := src.Latest(); ok {
		t.Fatal("empty source reported a command")
	}
	ch <- actuatorx.CommandVector{Thrust: 1}
	ch <- actuatorx.CommandVector{Thrust: 2}
	ch <- actuatorx.CommandVector{Thrust: 3}

	c, ok := src.Latest()
	if !ok || c.Thrust != 3 {
		t.Fatalf("Latest = %+v, %v; want thrust 3", c, ok)
	}
	c, ok = src.Latest()
	if ok || c.Thrust != 3 {
		t.Fatalf("second Latest = %+v, %v; want thrust 3, false", c, ok)
	}
}

func TestChannelSourceClosed(t *testing.T) {
	ch := make(chan actuatorx.CommandVector, 1)
	src := NewChannelSource(ch)
	ch <- actuatorx.CommandVector{Yaw: 0.2}
	close(ch)

	c, ok := src.Latest()
	if !ok || c.Yaw != 0.2 {
		t.Fatalf("Latest = %+v, %v", c, ok)
	}
	if c, ok := src.Latest(); ok || c.Yaw != 0.2 {
		t.Fatalf("Latest after close = %+v, %v", c, ok)
	}
}
