package realtime

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/comalice/actuatorx"
)

// Config configures an actuation loop. It is copied at construction and never
// changes afterwards.
type Config struct {
	ID          string                  // Name used in logs and snapshots (default: "quad")
	TickRate    time.Duration           // Fixed tick period (default: 5ms)
	SettleDelay time.Duration           // Idle hold after the channel opens (default: 1s)
	Limits      actuatorx.SafetyLimits  // Motor and ESC limits
	Geometry    actuatorx.Geometry      // Mixing coefficients
	Polarity    actuatorx.Polarity      // PWM direction
	Bounds      actuatorx.CommandBounds // Optional clamp on incoming commands
	FaultBuffer int                     // Fault stream capacity (default: 1024)
}

// DefaultConfig returns the configuration of the reference airframe.
func DefaultConfig() Config {
	return Config{
		ID:          "quad",
		TickRate:    5 * time.Millisecond,
		SettleDelay: time.Second,
		Limits:      actuatorx.DefaultSafetyLimits(),
		Geometry:    actuatorx.DefaultGeometry(),
		Polarity:    actuatorx.Increasing,
		FaultBuffer: 1024,
	}
}

// Option customizes a Loop.
type Option func(*Loop)

// WithLogger sets the logger for lifecycle and write-failure messages.
func WithLogger(l *log.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// WithPublisher forwards every tick report to p.
func WithPublisher(p Publisher) Option {
	return func(lp *Loop) {
		lp.publisher = p
	}
}

// WithRecorder persists a snapshot of the loop when it closes.
func WithRecorder(r Recorder) Option {
	return func(lp *Loop) {
		lp.recorder = r
	}
}

// Loop drives the allocator, safety envelope and encoder at a fixed rate and
// is the only writer to its hardware channel.
type Loop struct {
	cfg     Config
	alloc   *actuatorx.Allocator
	env     *actuatorx.SafetyEnvelope
	enc     *actuatorx.PwmEncoder
	channel actuatorx.HardwareChannel
	source  actuatorx.CommandSource
	machine *actuatorx.Machine

	logger    *log.Logger
	publisher Publisher
	recorder  Recorder
	faults    *FaultStream

	// Loop goroutine state; readers go through mu.
	mu       sync.Mutex
	motors   [actuatorx.NumMotors]actuatorx.MotorState
	command  actuatorx.CommandVector
	counts   [actuatorx.FullWriteFailure + 1]uint64
	faultBuf []actuatorx.Fault
	seq      uint64

	tickNum atomic.Uint64
	started atomic.Bool
	stopReq atomic.Bool

	settled     chan struct{}
	done        chan struct{}
	shutdownErr error
}

// NewLoop validates cfg and builds a loop in the Uninitialized state with all
// motors at speed 0 and the idle pulse.
func NewLoop(cfg Config, ch actuatorx.HardwareChannel, src actuatorx.CommandSource, opts ...Option) (*Loop, error) {
	if ch == nil {
		return nil, errors.New("realtime: nil hardware channel")
	}
	if src == nil {
		return nil, errors.New("realtime: nil command source")
	}
	def := DefaultConfig()
	if cfg.ID == "" {
		cfg.ID = def.ID
	}
	if cfg.TickRate == 0 {
		cfg.TickRate = def.TickRate
	}
	if cfg.SettleDelay < 0 {
		return nil, fmt.Errorf("realtime: negative settle delay %v", cfg.SettleDelay)
	}
	if cfg.FaultBuffer == 0 {
		cfg.FaultBuffer = def.FaultBuffer
	}

	alloc, err := actuatorx.NewAllocator(cfg.Geometry)
	if err != nil {
		return nil, err
	}
	env, err := actuatorx.NewSafetyEnvelope(cfg.Limits, cfg.TickRate)
	if err != nil {
		return nil, err
	}
	enc, err := actuatorx.NewPwmEncoder(cfg.Limits, cfg.Polarity)
	if err != nil {
		return nil, err
	}

	l := &Loop{
		cfg:      cfg,
		alloc:    alloc,
		env:      env,
		enc:      enc,
		channel:  ch,
		source:   src,
		logger:   log.New(io.Discard, "", 0),
		faults:   NewFaultStream(cfg.FaultBuffer),
		faultBuf: make([]actuatorx.Fault, 0, 4*actuatorx.NumMotors),
		settled:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, m := range actuatorx.AllMotors {
		l.motors[m] = actuatorx.MotorState{Speed: 0, PWM: cfg.Limits.IdlePWM}
	}
	for _, opt := range opts {
		opt(l)
	}

	l.machine, err = actuatorx.NewLifecycle(actuatorx.LifecycleHooks{
		OnIdling:       l.logEntry,
		OnRunning:      l.enterRunning,
		OnShuttingDown: l.logEntry,
		OnClosed:       l.logEntry,
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Start opens the hardware channel, commands the idle pulse and launches the
// tick goroutine, which holds idle for SettleDelay before running. If the
// channel cannot be opened the error wraps ErrChannelUnavailable and the loop
// never starts.
func (l *Loop) Start(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return errors.New("realtime: loop already started")
	}
	if err := l.machine.Start(ctx); err != nil {
		close(l.done)
		return err
	}

	if err := l.channel.Open(ctx); err != nil {
		close(l.done)
		return fmt.Errorf("%w: %v", actuatorx.ErrChannelUnavailable, err)
	}
	if !l.channel.IsOpen() {
		close(l.done)
		return actuatorx.ErrChannelUnavailable
	}

	if _, err := l.machine.Send(ctx, actuatorx.Event{ID: actuatorx.ChannelOpened}); err != nil {
		l.logger.Printf("[%s] lifecycle: %v", l.cfg.ID, err)
	}
	l.holdIdle()

	go l.run(ctx)
	return nil
}

// Stop requests shutdown, waits for the idle pulse to be written and the
// channel released, and returns any error met while doing so. Safe to call
// more than once and before Start.
func (l *Loop) Stop() error {
	l.stopReq.Store(true)
	if !l.started.Load() {
		return nil
	}
	<-l.done
	return l.shutdownErr
}

// Done is closed once the loop has reached Closed or failed to start.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Settled is closed when the loop enters Running.
func (l *Loop) Settled() <-chan struct{} {
	return l.settled
}

// State returns the current lifecycle state.
func (l *Loop) State() actuatorx.StateID {
	return l.machine.Current()
}

// Machine exposes the lifecycle machine for inspection.
func (l *Loop) Machine() *actuatorx.Machine {
	return l.machine
}

// TickNumber returns the number of completed running ticks.
func (l *Loop) TickNumber() uint64 {
	return l.tickNum.Load()
}

// Motors returns the last delivered state of every motor.
func (l *Loop) Motors() [actuatorx.NumMotors]actuatorx.MotorState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.motors
}

// Faults returns the loop's fault stream.
func (l *Loop) Faults() *FaultStream {
	return l.faults
}

// FaultCount returns how many faults of kind k have been reported.
func (l *Loop) FaultCount(k actuatorx.FaultKind) uint64 {
	if k <= 0 || int(k) >= len(l.counts) {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counts[k]
}

// Envelope returns the safety envelope in use.
func (l *Loop) Envelope() *actuatorx.SafetyEnvelope {
	return l.env
}

// run is the tick goroutine.
func (l *Loop) run(ctx context.Context) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(l.done)

	ticker := time.NewTicker(l.cfg.TickRate)
	defer ticker.Stop()

	if l.settle(ctx, ticker) {
		if _, err := l.machine.Send(ctx, actuatorx.Event{ID: actuatorx.SettleElapsed}); err != nil {
			l.logger.Printf("[%s] lifecycle: %v", l.cfg.ID, err)
		}
		l.tickLoop(ctx, ticker)
	}

	l.shutdownErr = l.shutdown(ctx)
}

// settle keeps the idle pulse on the ESCs until SettleDelay has elapsed.
// It returns false if a stop arrived or every write was lost first.
func (l *Loop) settle(ctx context.Context, ticker *time.Ticker) bool {
	deadline := time.Now().Add(l.cfg.SettleDelay)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			l.stopReq.Store(true)
		case <-ticker.C:
		}
		if l.stopReq.Load() {
			return false
		}
		if lost := l.holdIdle(); lost {
			l.escalate(ctx)
			return false
		}
	}
	return !l.stopReq.Load()
}

// tickLoop is the main tick execution loop.
func (l *Loop) tickLoop(ctx context.Context, ticker *time.Ticker) {
	for {
		select {
		case <-ctx.Done():
			l.stopReq.Store(true)
		case <-ticker.C:
		}
		if l.stopReq.Load() {
			return
		}
		if lost := l.safeTick(ctx); lost {
			l.escalate(ctx)
			return
		}
	}
}

// safeTick runs one tick, recovering from panics so the loop keeps output.
func (l *Loop) safeTick(ctx context.Context) (lost bool) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Printf("[%s] tick %d panic: %v", l.cfg.ID, l.tickNum.Load(), r)
			lost = false
		}
	}()
	return l.processTick(ctx)
}

func (l *Loop) escalate(ctx context.Context) {
	l.logger.Printf("[%s] all %d motor writes failed, shutting down", l.cfg.ID, actuatorx.NumMotors)
	if _, err := l.machine.Send(ctx, actuatorx.Event{ID: actuatorx.WriteLost}); err != nil {
		l.logger.Printf("[%s] lifecycle: %v", l.cfg.ID, err)
	}
}

// shutdown commands idle on every motor, releases the channel and records
// the final snapshot.
func (l *Loop) shutdown(ctx context.Context) error {
	// A fresh context: the caller's may already be cancelled.
	sctx := context.WithoutCancel(ctx)
	if _, err := l.machine.Send(sctx, actuatorx.Event{ID: actuatorx.StopRequested}); err != nil {
		l.logger.Printf("[%s] lifecycle: %v", l.cfg.ID, err)
	}

	var errs error
	idle := l.cfg.Limits.IdlePWM
	l.mu.Lock()
	for _, m := range actuatorx.AllMotors {
		if err := l.channel.Write(m, idle); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("idle %s: %w", m, err))
			continue
		}
		l.motors[m] = actuatorx.MotorState{Speed: 0, PWM: idle}
	}
	l.mu.Unlock()

	if err := l.channel.Close(); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("close channel: %w", err))
	}
	if _, err := l.machine.Send(sctx, actuatorx.Event{ID: actuatorx.ChannelReleased}); err != nil {
		errs = multierr.Append(errs, err)
	}

	if l.recorder != nil {
		if err := l.recorder.Record(sctx, l.Snapshot()); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("record snapshot: %w", err))
		}
	}
	if errs != nil {
		l.logger.Printf("[%s] shutdown: %v", l.cfg.ID, errs)
	}
	return errs
}

func (l *Loop) logEntry(ctx context.Context, evt *actuatorx.Event, from, to actuatorx.StateID) error {
	l.logger.Printf("[%s] %s -> %s", l.cfg.ID, from, to)
	return nil
}

func (l *Loop) enterRunning(ctx context.Context, evt *actuatorx.Event, from, to actuatorx.StateID) error {
	close(l.settled)
	return l.logEntry(ctx, evt, from, to)
}
