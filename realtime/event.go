package realtime

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/Workiva/go-datastructures/queue"

	"github.com/comalice/actuatorx"
)

// FaultEvent adds sequencing metadata to a fault for deterministic ordering.
type FaultEvent struct {
	Tick        uint64          `json:"tick" yaml:"tick"`
	SequenceNum uint64          `json:"seq" yaml:"seq"`
	Fault       actuatorx.Fault `json:"fault" yaml:"fault"`
}

// TickReport summarizes one completed tick.
type TickReport struct {
	Tick    uint64                                    `json:"tick" yaml:"tick"`
	State   actuatorx.StateID                         `json:"state" yaml:"state"`
	Command actuatorx.CommandVector                   `json:"command" yaml:"command"`
	Motors  [actuatorx.NumMotors]actuatorx.MotorState `json:"motors" yaml:"motors"`
	Faults  []actuatorx.Fault                         `json:"faults,omitempty" yaml:"faults,omitempty"`
	Failed  int                                       `json:"failedWrites" yaml:"failedWrites"`
	At      time.Time                                 `json:"at" yaml:"at"`
}

// Publisher receives every tick report. Publish is called on the loop
// goroutine and must not block.
type Publisher interface {
	Publish(ctx context.Context, report TickReport) error
}

// FaultStream is a bounded, lock-free buffer of fault records. The loop
// offers without blocking; when the buffer is full new faults are dropped
// and counted.
type FaultStream struct {
	rb      *queue.RingBuffer
	dropped atomic.Uint64
}

// NewFaultStream creates a stream holding at least capacity records.
func NewFaultStream(capacity int) *FaultStream {
	if capacity <= 0 {
		capacity = 1024
	}
	return &FaultStream{rb: queue.NewRingBuffer(uint64(capacity))}
}

func (s *FaultStream) offer(ev FaultEvent) {
	ok, err := s.rb.Offer(ev)
	if err != nil || !ok {
		s.dropped.Add(1)
	}
}

// Next waits up to timeout for the next fault. A zero timeout only returns
// a fault that is already buffered.
func (s *FaultStream) Next(timeout time.Duration) (FaultEvent, bool) {
	if timeout <= 0 {
		if s.rb.Len() == 0 {
			return FaultEvent{}, false
		}
		timeout = time.Millisecond
	}
	item, err := s.rb.Poll(timeout)
	if err != nil {
		return FaultEvent{}, false
	}
	ev, ok := item.(FaultEvent)
	return ev, ok
}

// Drain returns every buffered fault in emission order.
func (s *FaultStream) Drain() []FaultEvent {
	var out []FaultEvent
	for {
		ev, ok := s.Next(0)
		if !ok {
			break
		}
		out = append(out, ev)
	}
	sortEvents(out)
	return out
}

// Len is the number of buffered faults.
func (s *FaultStream) Len() int {
	return int(s.rb.Len())
}

// Dropped counts faults discarded because the buffer was full.
func (s *FaultStream) Dropped() uint64 {
	return s.dropped.Load()
}

// Close releases the buffer and wakes any waiting reader.
func (s *FaultStream) Close() {
	s.rb.Dispose()
}

// sortEvents orders events by tick, then by sequence number.
func sortEvents(events []FaultEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Tick != events[j].Tick {
			return events[i].Tick < events[j].Tick
		}
		return events[i].SequenceNum < events[j].SequenceNum
	})
}
