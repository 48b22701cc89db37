package realtime

import (
	"context"
	"time"

	"github.com/comalice/actuatorx"
)

// Snapshot is the serializable state of a loop, taken when it closes.
type Snapshot struct {
	LoopID        string                                    `json:"loopID" yaml:"loopID"`
	State         string                                    `json:"state" yaml:"state"`
	Ticks         uint64                                    `json:"ticks" yaml:"ticks"`
	Command       actuatorx.CommandVector                   `json:"command" yaml:"command"`
	Motors        [actuatorx.NumMotors]actuatorx.MotorState `json:"motors" yaml:"motors"`
	FaultCounts   map[string]uint64                         `json:"faultCounts,omitempty" yaml:"faultCounts,omitempty"`
	DroppedFaults uint64                                    `json:"droppedFaults" yaml:"droppedFaults"`
	Limits        actuatorx.SafetyLimits                    `json:"limits" yaml:"limits"`
	Timestamp     time.Time                                 `json:"timestamp" yaml:"timestamp"`
}

// Recorder persists loop snapshots.
type Recorder interface {
	Record(ctx context.Context, snapshot Snapshot) error
}

// Snapshot captures the current loop state.
func (l *Loop) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Snapshot{
		LoopID:        l.cfg.ID,
		State:         l.machine.Current().String(),
		Ticks:         l.tickNum.Load(),
		Command:       l.command,
		Motors:        l.motors,
		DroppedFaults: l.faults.Dropped(),
		Limits:        l.cfg.Limits,
		Timestamp:     time.Now(),
	}
	for k, n := range l.counts {
		if n == 0 {
			continue
		}
		if s.FaultCounts == nil {
			s.FaultCounts = make(map[string]uint64)
		}
		s.FaultCounts[actuatorx.FaultKind(k).String()] = n
	}
	return s
}
