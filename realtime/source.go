package realtime

import (
	"github.com/comalice/actuatorx"
)

// ChannelSource is a CommandSource backed by a Go channel, for producers
// that already speak channels. Latest drains everything buffered and keeps
// the newest value; older values are dropped.
type ChannelSource struct {
	ch   <-chan actuatorx.CommandVector
	last actuatorx.CommandVector
}

// NewChannelSource creates a ChannelSource reading from ch. The channel
// should be buffered so producers do not block on a slow tick.
func NewChannelSource(ch <-chan actuatorx.CommandVector) *ChannelSource {
	return &ChannelSource{ch: ch}
}

func (s *ChannelSource) Latest() (actuatorx.CommandVector, bool) {
	fresh := false
	for {
		select {
		case c, ok := <-s.ch:
			if !ok {
				return s.last, fresh
			}
			s.last, fresh = c, true
		default:
			return s.last, fresh
		}
	}
}
