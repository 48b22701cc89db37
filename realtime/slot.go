package realtime

import (
	"sync/atomic"

	"github.com/comalice/actuatorx"
)

type slotValue struct {
	cmd actuatorx.CommandVector
	seq uint64
}

// CommandSlot is a single-slot, last-write-wins handoff between one or more
// producers and the loop. Neither side ever blocks; a value overwritten
// before it is read is dropped.
type CommandSlot struct {
	v    atomic.Pointer[slotValue]
	seq  atomic.Uint64
	read uint64 // consumer only
}

// NewCommandSlot returns an empty slot.
func NewCommandSlot() *CommandSlot {
	return &CommandSlot{}
}

// Store publishes c, replacing any unread command.
func (s *CommandSlot) Store(c actuatorx.CommandVector) {
	s.v.Store(&slotValue{cmd: c, seq: s.seq.Add(1)})
}

// Latest returns the most recent command and whether it has not been read yet.
// It must only be called from the consuming goroutine.
func (s *CommandSlot) Latest() (actuatorx.CommandVector, bool) {
	v := s.v.Load()
	if v == nil {
		return actuatorx.CommandVector{}, false
	}
	if v.seq == s.read {
		return v.cmd, false
	}
	s.read = v.seq
	return v.cmd, true
}
