package testutil

import (
	"sync"

	"github.com/comalice/actuatorx"
)

// StepSource replays a fixed list of commands, one per Latest call. After
// the last step it keeps reporting no new command.
type StepSource struct {
	mu    sync.Mutex
	steps []actuatorx.CommandVector
	next  int
}

// NewStepSource returns a source that yields steps in order.
func NewStepSource(steps ...actuatorx.CommandVector) *StepSource {
	return &StepSource{steps: append([]actuatorx.CommandVector(nil), steps...)}
}

func (s *StepSource) Latest() (actuatorx.CommandVector, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.next >= len(s.steps) {
		return actuatorx.CommandVector{}, false
	}
	c := s.steps[s.next]
	s.next++
	return c, true
}

// Push appends more steps.
func (s *StepSource) Push(steps ...actuatorx.CommandVector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, steps...)
}

// Remaining is the number of steps not yet consumed.
func (s *StepSource) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.steps) - s.next
}
