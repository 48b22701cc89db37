package actuatorx

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

type StateID int
type EventID int

// Lifecycle states of an actuation loop.
const (
	Uninitialized StateID = iota
	Idling
	Running
	ShuttingDown
	Closed
)

func (s StateID) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Idling:
		return "idling"
	case Running:
		return "running"
	case ShuttingDown:
		return "shutting_down"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Lifecycle events.
const (
	ChannelOpened EventID = iota + 1
	SettleElapsed
	StopRequested
	WriteLost
	ChannelReleased
)

func (e EventID) String() string {
	switch e {
	case ChannelOpened:
		return "channel_opened"
	case SettleElapsed:
		return "settle_elapsed"
	case StopRequested:
		return "stop_requested"
	case WriteLost:
		return "write_lost"
	case ChannelReleased:
		return "channel_released"
	default:
		return fmt.Sprintf("event(%d)", int(e))
	}
}

type Event struct {
	ID      EventID
	Payload any
}

type Action func(ctx context.Context, evt *Event, from StateID, to StateID) error
type Guard func(ctx context.Context, evt *Event, from StateID, to StateID) (bool, error)

// ---

type State struct {
	ID          StateID
	Transitions []*Transition
	EntryAction Action
	ExitAction  Action
	Initial     bool
	Final       bool
}

type Transition struct {
	Event  EventID
	Source *State
	Target *State // nil --> internal transition
	Guard  Guard  // nil --> always taken
	Action Action // nil --> do nothing
}

// Machine is a flat state machine. Send must be called from one goroutine;
// Current may be read from any.
type Machine struct {
	states  map[StateID]*State
	order   []*State
	mu      sync.RWMutex
	current *State
}

//
// Public API
//

func (s *State) OnEntry(action Action) {
	s.EntryAction = action
}

func (s *State) OnExit(action Action) {
	s.ExitAction = action
}

func (s *State) On(e EventID, target *State, guard Guard, action Action) {
	s.Transitions = append(s.Transitions, &Transition{
		Event:  e,
		Source: s,
		Target: target,
		Guard:  guard,
		Action: action,
	})
}

func NewMachine(states ...*State) (*Machine, error) {
	if len(states) == 0 {
		return nil, errors.New("no states provided")
	}
	m := &Machine{
		states: map[StateID]*State{},
		order:  states,
	}

	var initial *State
	for _, s := range states {
		if s == nil {
			return nil, errors.New("nil state")
		}
		if _, exists := m.states[s.ID]; exists {
			return nil, fmt.Errorf("duplicate state ID %s", s.ID)
		}
		m.states[s.ID] = s
		if s.Initial {
			if initial != nil {
				return nil, errors.New("more than one initial state")
			}
			initial = s
		}
	}
	if initial == nil {
		initial = states[0]
	}
	m.current = initial

	for _, s := range states {
		for _, t := range s.Transitions {
			if t == nil {
				continue
			}
			if t.Source == nil {
				t.Source = s
			}
			if t.Target != nil {
				if _, ok := m.states[t.Target.ID]; !ok {
					return nil, fmt.Errorf("state %s: transition on %s targets unknown state %s", s.ID, t.Event, t.Target.ID)
				}
			}
		}
	}

	return m, nil
}

// Start runs the entry action of the initial state.
func (m *Machine) Start(ctx context.Context) error {
	cur := m.Current()
	return m.states[cur].enterState(ctx, nil, cur, cur)
}

// Send fires the first enabled transition for evt. Events with no matching
// transition are ignored. It reports whether a transition was taken.
func (m *Machine) Send(ctx context.Context, evt Event) (bool, error) {
	m.mu.RLock()
	cur := m.current
	m.mu.RUnlock()

	t, err := pickTransition(ctx, cur, &evt)
	if err != nil || t == nil {
		return false, err
	}

	next, err := t.doTransition(ctx, &evt)
	m.mu.Lock()
	m.current = next
	m.mu.Unlock()
	if err != nil {
		return false, err
	}
	return true, nil
}

// Current returns the active state.
func (m *Machine) Current() StateID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.ID
}

// IsFinal reports whether the active state is final.
func (m *Machine) IsFinal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current.Final
}

// States returns the states in declaration order.
func (m *Machine) States() []*State {
	return m.order
}

//
// Helper Functions (internal API)
//

func (s *State) enterState(ctx context.Context, evt *Event, from StateID, to StateID) error {
	if s.EntryAction != nil {
		return s.EntryAction(ctx, evt, from, to)
	}
	return nil
}

func (s *State) exitState(ctx context.Context, evt *Event, from StateID, to StateID) error {
	if s.ExitAction != nil {
		return s.ExitAction(ctx, evt, from, to)
	}
	return nil
}

// pickTransition grabs the first transition for evt whose guard passes.
func pickTransition(ctx context.Context, s *State, evt *Event) (*Transition, error) {
	for _, t := range s.Transitions {
		if t == nil || t.Event != evt.ID {
			continue
		}
		ok, err := t.evaluateGuard(ctx, evt)
		if err != nil {
			return nil, err
		}
		if ok {
			return t, nil
		}
	}
	return nil, nil
}

func (t *Transition) targetID() StateID {
	if t.Target == nil {
		return t.Source.ID
	}
	return t.Target.ID
}

func (t *Transition) evaluateGuard(ctx context.Context, evt *Event) (bool, error) {
	if t.Guard != nil {
		return t.Guard(ctx, evt, t.Source.ID, t.targetID())
	}
	return true, nil
}

// doTransition runs exit, transition and entry actions and returns the state
// the machine ends up in. Internal transitions only run the action.
func (t *Transition) doTransition(ctx context.Context, evt *Event) (*State, error) {
	from, to := t.Source.ID, t.targetID()

	if t.Target == nil {
		if t.Action != nil {
			return t.Source, t.Action(ctx, evt, from, to)
		}
		return t.Source, nil
	}

	if err := t.Source.exitState(ctx, evt, from, to); err != nil {
		return t.Source, err
	}
	if t.Action != nil {
		if err := t.Action(ctx, evt, from, to); err != nil {
			// Re-enter the source state without an event.
			if err := t.Source.enterState(ctx, nil, from, to); err != nil {
				return t.Source, err
			}
			return t.Source, err
		}
	}
	// The target is committed even if its entry action fails.
	return t.Target, t.Target.enterState(ctx, evt, from, to)
}

// LifecycleHooks are entry actions for the loop states; nil hooks are skipped.
type LifecycleHooks struct {
	OnIdling       Action
	OnRunning      Action
	OnShuttingDown Action
	OnClosed       Action
}

// NewLifecycle builds the actuation loop state machine:
//
//	uninitialized -channel_opened-> idling -settle_elapsed-> running
//	idling|running -stop_requested-> shutting_down
//	idling|running -write_lost-> shutting_down
//	shutting_down -channel_released-> closed
func NewLifecycle(h LifecycleHooks) (*Machine, error) {
	uninit := &State{ID: Uninitialized, Initial: true}
	idling := &State{ID: Idling, EntryAction: h.OnIdling}
	running := &State{ID: Running, EntryAction: h.OnRunning}
	shutting := &State{ID: ShuttingDown, EntryAction: h.OnShuttingDown}
	closed := &State{ID: Closed, EntryAction: h.OnClosed, Final: true}

	uninit.On(ChannelOpened, idling, nil, nil)
	idling.On(SettleElapsed, running, nil, nil)
	idling.On(StopRequested, shutting, nil, nil)
	idling.On(WriteLost, shutting, nil, nil)
	running.On(StopRequested, shutting, nil, nil)
	running.On(WriteLost, shutting, nil, nil)
	shutting.On(ChannelReleased, closed, nil, nil)

	return NewMachine(uninit, idling, running, shutting, closed)
}
