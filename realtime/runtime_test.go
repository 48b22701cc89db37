package realtime

import (
	"bytes"
	"context"
	"errors"
	"log"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comalice/actuatorx"
	"github.com/comalice/actuatorx/testutil"
)

func fastConfig() Config {
	cfg := DefaultConfig()
	cfg.TickRate = 2 * time.Millisecond
	cfg.SettleDelay = 10 * time.Millisecond
	return cfg
}

func newTestLoop(t *testing.T, cfg Config, ch actuatorx.HardwareChannel, src actuatorx.CommandSource, opts ...Option) *Loop {
	t.Helper()
	l, err := NewLoop(cfg, ch, src, opts...)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return l
}

// openLoop returns a loop whose channel is open but whose goroutine is not
// running, so ticks can be driven one at a time.
func openLoop(t *testing.T, src actuatorx.CommandSource, opts ...Option) (*Loop, *testutil.FakeChannel) {
	t.Helper()
	ch := testutil.NewFakeChannel()
	if err := ch.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return newTestLoop(t, DefaultConfig(), ch, src, opts...), ch
}

func waitClosed(t *testing.T, c <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-c:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %s", what)
	}
}

func TestNewLoopValidation(t *testing.T) {
	ch := testutil.NewFakeChannel()
	src := NewCommandSlot()
	if _, err := NewLoop(DefaultConfig(), nil, src); err == nil {
		t.Error("expected error for nil channel")
	}
	if _, err := NewLoop(DefaultConfig(), ch, nil); err == nil {
		t.Error("expected error for nil source")
	}
	cfg := DefaultConfig()
	cfg.SettleDelay = -time.Second
	if _, err := NewLoop(cfg, ch, src); err == nil {
		t.Error("expected error for negative settle delay")
	}
	cfg = DefaultConfig()
	cfg.Limits.MaxSpeed = 0
	if _, err := NewLoop(cfg, ch, src); err == nil {
		t.Error("expected error for invalid limits")
	}
	cfg = DefaultConfig()
	cfg.Geometry.ArmLength = -1
	if _, err := NewLoop(cfg, ch, src); err == nil {
		t.Error("expected error for invalid geometry")
	}
}

func TestNewLoopStartsAtIdle(t *testing.T) {
	l := newTestLoop(t, DefaultConfig(), testutil.NewFakeChannel(), NewCommandSlot())
	if l.State() != actuatorx.Uninitialized {
		t.Errorf("state = %s, want uninitialized", l.State())
	}
	for m, s := range l.Motors() {
		if s.Speed != 0 || s.PWM != 1000 {
			t.Errorf("motor %d = %+v, want idle", m, s)
		}
	}
}

// Zero command: every motor stays at rest on the idle pulse.
func TestTickZeroCommand(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{})
	l, ch := openLoop(t, slot)

	for i := 0; i < 3; i++ {
		if lost := l.processTick(context.Background()); lost {
			t.Fatal("tick reported full write loss")
		}
	}
	for _, m := range actuatorx.AllMotors {
		if got := l.Motors()[m]; got.Speed != 0 || got.PWM != 1000 {
			t.Errorf("%s = %+v, want speed 0 pwm 1000", m, got)
		}
		if ch.Last(m) != 1000 {
			t.Errorf("%s last pulse = %d, want 1000", m, ch.Last(m))
		}
	}
	if l.TickNumber() != 3 {
		t.Errorf("TickNumber = %d, want 3", l.TickNumber())
	}
	if n := l.Faults().Len(); n != 0 {
		t.Errorf("%d faults for a zero command", n)
	}
}

// A large step from rest is limited to one acceleration budget per tick.
func TestTickRateLimitsStep(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 20})
	l, _ := openLoop(t, slot)
	d := l.Envelope().MaxDelta()

	l.processTick(context.Background())
	for _, m := range actuatorx.AllMotors {
		if got := l.Motors()[m].Speed; math.Abs(got-d) > 1e-9 {
			t.Errorf("%s speed = %v, want %v", m, got, d)
		}
	}
	if n := l.FaultCount(actuatorx.AccelerationAboveRange); n != 4 {
		t.Errorf("AccelerationAboveRange count = %d, want 4", n)
	}

	// Second tick: one more budget, reusing the same command.
	l.processTick(context.Background())
	if got := l.Motors()[actuatorx.FrontLeft].Speed; math.Abs(got-2*d) > 1e-9 {
		t.Errorf("speed after two ticks = %v, want %v", got, 2*d)
	}
}

// A negative allocation floors that motor only.
func TestTickNegativeMotor(t *testing.T) {
	alloc, err := actuatorx.NewAllocator(actuatorx.DefaultGeometry())
	if err != nil {
		t.Fatal(err)
	}
	slot := NewCommandSlot()
	slot.Store(alloc.Mix([4]float64{-100, 900, 900, 900}))
	l, _ := openLoop(t, slot)

	l.processTick(context.Background())

	motors := l.Motors()
	if motors[actuatorx.FrontLeft].Speed != 0 {
		t.Errorf("front-left speed = %v, want 0", motors[actuatorx.FrontLeft].Speed)
	}
	for _, m := range actuatorx.AllMotors[1:] {
		if math.Abs(motors[m].Speed-30) > 1e-6 {
			t.Errorf("%s speed = %v, want 30", m, motors[m].Speed)
		}
	}
	events := l.Faults().Drain()
	if len(events) != 1 {
		t.Fatalf("faults = %+v, want exactly one", events)
	}
	if f := events[0].Fault; f.Motor != actuatorx.FrontLeft || f.Kind != actuatorx.SpeedBelowRange {
		t.Errorf("fault = %+v", f)
	}
}

// One failed write is reported and the next tick is normal.
func TestTickPartialWriteFailure(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 4})
	l, ch := openLoop(t, slot)

	l.processTick(context.Background())
	before := l.Motors()

	ch.Fail(actuatorx.FrontRight, 1)
	if lost := l.processTick(context.Background()); lost {
		t.Fatal("partial failure reported as full loss")
	}
	after := l.Motors()
	if after[actuatorx.FrontRight] != before[actuatorx.FrontRight] {
		t.Errorf("failed motor state changed: %+v -> %+v", before[actuatorx.FrontRight], after[actuatorx.FrontRight])
	}
	if after[actuatorx.FrontLeft].Speed <= before[actuatorx.FrontLeft].Speed {
		t.Error("healthy motor did not advance")
	}
	if n := l.FaultCount(actuatorx.PartialWriteFailure); n != 1 {
		t.Errorf("PartialWriteFailure count = %d, want 1", n)
	}

	var wf actuatorx.Fault
	for _, ev := range l.Faults().Drain() {
		if ev.Fault.Kind == actuatorx.PartialWriteFailure {
			wf = ev.Fault
		}
	}
	if wf.Motor != actuatorx.FrontRight || int(wf.Substituted) != before[actuatorx.FrontRight].PWM {
		t.Errorf("write fault = %+v", wf)
	}

	l.processTick(context.Background())
	if n := l.FaultCount(actuatorx.PartialWriteFailure); n != 1 {
		t.Errorf("PartialWriteFailure count after recovery = %d, want 1", n)
	}
	if l.Motors()[actuatorx.FrontRight].Speed <= before[actuatorx.FrontRight].Speed {
		t.Error("recovered motor did not advance")
	}
}

func TestTickFullWriteFailure(t *testing.T) {
	l, ch := openLoop(t, NewCommandSlot())
	ch.FailAll(1)
	if lost := l.processTick(context.Background()); !lost {
		t.Fatal("full failure not reported")
	}
	if n := l.FaultCount(actuatorx.FullWriteFailure); n != 4 {
		t.Errorf("FullWriteFailure count = %d, want 4", n)
	}
}

func TestTickAppliesCommandBounds(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 100, Yaw: 5})
	ch := testutil.NewFakeChannel()
	_ = ch.Open(context.Background())
	cfg := DefaultConfig()
	cfg.Bounds = actuatorx.CommandBounds{Thrust: actuatorx.Range{Min: 0, Max: 10}}
	l := newTestLoop(t, cfg, ch, slot)

	l.processTick(context.Background())
	got := l.Snapshot().Command
	if got.Thrust != 10 || got.Yaw != 5 {
		t.Errorf("command = %+v, want thrust 10 yaw 5", got)
	}
}

type panicSource struct{}

func (panicSource) Latest() (actuatorx.CommandVector, bool) { panic("sensor fusion exploded") }

func TestSafeTickRecoversPanic(t *testing.T) {
	var buf bytes.Buffer
	l, _ := openLoop(t, panicSource{}, WithLogger(log.New(&buf, "", 0)))
	if lost := l.safeTick(context.Background()); lost {
		t.Error("panic reported as write loss")
	}
	if !strings.Contains(buf.String(), "panic") {
		t.Errorf("log = %q, want a panic message", buf.String())
	}
}

func TestStartOpenFailure(t *testing.T) {
	ch := &testutil.FakeChannel{OpenErr: errors.New("no such device")}
	l := newTestLoop(t, fastConfig(), ch, NewCommandSlot())

	err := l.Start(context.Background())
	if !errors.Is(err, actuatorx.ErrChannelUnavailable) {
		t.Fatalf("Start = %v, want ErrChannelUnavailable", err)
	}
	if l.State() != actuatorx.Uninitialized {
		t.Errorf("state = %s, want uninitialized", l.State())
	}
	waitClosed(t, l.Done(), "done")
	if err := l.Stop(); err != nil {
		t.Errorf("Stop after failed start = %v", err)
	}
	if ch.Writes() != 0 {
		t.Errorf("%d writes to an unopened channel", ch.Writes())
	}
}

func TestStartTwice(t *testing.T) {
	l := newTestLoop(t, fastConfig(), testutil.NewFakeChannel(), NewCommandSlot())
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	if err := l.Start(context.Background()); err == nil {
		t.Error("second Start succeeded")
	}
}

func TestStopBeforeStart(t *testing.T) {
	l := newTestLoop(t, fastConfig(), testutil.NewFakeChannel(), NewCommandSlot())
	if err := l.Stop(); err != nil {
		t.Errorf("Stop = %v", err)
	}
}

func TestSettleHoldsIdle(t *testing.T) {
	cfg := fastConfig()
	cfg.SettleDelay = time.Hour
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 20})
	ch := testutil.NewFakeChannel()
	l := newTestLoop(t, cfg, ch, slot)

	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if l.State() != actuatorx.Idling {
		t.Errorf("state after Start = %s, want idling", l.State())
	}
	ch.WaitWrites(20, time.Second)

	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	for _, line := range ch.Lines() {
		if !strings.HasSuffix(line, "=1000us\n") {
			t.Fatalf("non-idle pulse %q during settle", line)
		}
	}
	if l.TickNumber() != 0 {
		t.Errorf("TickNumber = %d, want 0", l.TickNumber())
	}
	if l.State() != actuatorx.Closed {
		t.Errorf("state = %s, want closed", l.State())
	}
}

// Stop mid-run: idle pulse on every motor, channel released, Closed.
func TestStopMidRun(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 4})
	ch := testutil.NewFakeChannel()
	cfg := fastConfig()
	l := newTestLoop(t, cfg, ch, slot)

	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, l.Settled(), "settled")
	for l.TickNumber() < 10 {
		time.Sleep(cfg.TickRate)
	}
	if l.State() != actuatorx.Running {
		t.Fatalf("state = %s, want running", l.State())
	}
	if ch.Last(actuatorx.FrontLeft) <= 1000 {
		t.Fatalf("motors not spinning: last pulse %d", ch.Last(actuatorx.FrontLeft))
	}

	start := time.Now()
	if err := l.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Errorf("Stop took %v", elapsed)
	}
	if l.State() != actuatorx.Closed {
		t.Errorf("state = %s, want closed", l.State())
	}
	for _, m := range actuatorx.AllMotors {
		if ch.Last(m) != 1000 {
			t.Errorf("%s last pulse = %d, want idle", m, ch.Last(m))
		}
		if s := l.Motors()[m]; s.Speed != 0 || s.PWM != 1000 {
			t.Errorf("%s state = %+v, want idle", m, s)
		}
	}
	if ch.IsOpen() || ch.Closes() != 1 {
		t.Errorf("channel open=%v closes=%d", ch.IsOpen(), ch.Closes())
	}
	// Repeat calls are harmless.
	if err := l.Stop(); err != nil {
		t.Errorf("second Stop = %v", err)
	}
}

func TestContextCancelShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := testutil.NewFakeChannel()
	l := newTestLoop(t, fastConfig(), ch, NewCommandSlot())
	if err := l.Start(ctx); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, l.Settled(), "settled")
	cancel()
	waitClosed(t, l.Done(), "done")
	if l.State() != actuatorx.Closed {
		t.Errorf("state = %s, want closed", l.State())
	}
	if ch.Closes() != 1 {
		t.Errorf("Closes = %d", ch.Closes())
	}
}

// lossyChannel fails every write of exactly one tick once armed. The tick
// boundary is the write to the first motor.
type lossyChannel struct {
	*testutil.FakeChannel
	armed   atomic.Bool
	failing int
}

func (c *lossyChannel) Write(m actuatorx.MotorIndex, pw int) error {
	if m == actuatorx.FrontLeft && c.armed.CompareAndSwap(true, false) {
		c.failing = actuatorx.NumMotors
	}
	if c.failing > 0 {
		c.failing--
		return testutil.ErrInjected
	}
	return c.FakeChannel.Write(m, pw)
}

// Losing every motor write shuts the loop down and still commands idle.
func TestFullWriteFailureShutsDown(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 4})
	ch := &lossyChannel{FakeChannel: testutil.NewFakeChannel()}
	var rec captureRecorder
	l := newTestLoop(t, fastConfig(), ch, slot, WithRecorder(&rec))

	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitClosed(t, l.Settled(), "settled")
	for l.TickNumber() < 5 {
		time.Sleep(time.Millisecond)
	}
	ch.armed.Store(true)

	waitClosed(t, l.Done(), "done")
	if err := l.Stop(); err != nil {
		t.Errorf("Stop = %v", err)
	}
	if l.State() != actuatorx.Closed {
		t.Errorf("state = %s, want closed", l.State())
	}
	if n := l.FaultCount(actuatorx.FullWriteFailure); n != 4 {
		t.Errorf("FullWriteFailure count = %d, want 4", n)
	}
	for _, m := range actuatorx.AllMotors {
		if ch.Last(m) != 1000 {
			t.Errorf("%s last pulse = %d, want idle", m, ch.Last(m))
		}
	}

	snap, ok := rec.last()
	if !ok {
		t.Fatal("no snapshot recorded")
	}
	if snap.State != "closed" || snap.LoopID != "quad" {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.FaultCounts["full_write_failure"] != 4 {
		t.Errorf("snapshot fault counts = %v", snap.FaultCounts)
	}
}

// When idle cannot be written either, shutdown still completes and reports why.
func TestShutdownReportsIdleFailure(t *testing.T) {
	ch := testutil.NewFakeChannel()
	l := newTestLoop(t, fastConfig(), ch, NewCommandSlot())
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	ch.FailAll(-1)

	waitClosed(t, l.Done(), "done")
	err := l.Stop()
	if !errors.Is(err, testutil.ErrInjected) {
		t.Fatalf("Stop = %v, want injected write failure", err)
	}
	if l.State() != actuatorx.Closed {
		t.Errorf("state = %s, want closed", l.State())
	}
	if ch.Closes() != 1 {
		t.Errorf("Closes = %d", ch.Closes())
	}
}

type captureRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *captureRecorder) Record(ctx context.Context, s Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
	return nil
}

func (r *captureRecorder) last() (Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

type capturePublisher struct {
	mu      sync.Mutex
	reports []TickReport
}

func (p *capturePublisher) Publish(ctx context.Context, r TickReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reports = append(p.reports, r)
	return nil
}

func TestPublisherReceivesReports(t *testing.T) {
	slot := NewCommandSlot()
	slot.Store(actuatorx.CommandVector{Thrust: 20})
	var pub capturePublisher
	l, _ := openLoop(t, slot, WithPublisher(&pub))

	l.processTick(context.Background())
	l.processTick(context.Background())

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.reports) != 2 {
		t.Fatalf("got %d reports, want 2", len(pub.reports))
	}
	r := pub.reports[1]
	if r.Tick != 2 || r.Command.Thrust != 20 || r.Failed != 0 {
		t.Errorf("report = %+v", r)
	}
	if len(r.Faults) != 4 {
		t.Errorf("report faults = %v, want 4 rate-limit faults", r.Faults)
	}
}

func TestRunningTicksAdvance(t *testing.T) {
	slot := NewCommandSlot()
	ch := testutil.NewFakeChannel()
	cfg := fastConfig()
	l := newTestLoop(t, cfg, ch, slot)
	if err := l.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer l.Stop()
	waitClosed(t, l.Settled(), "settled")

	slot.Store(actuatorx.CommandVector{Thrust: 4})
	deadline := time.Now().Add(2 * time.Second)
	hover := math.Sqrt(4 / (4 * cfg.Geometry.ThrustFactor))
	for time.Now().Before(deadline) {
		if math.Abs(l.Motors()[actuatorx.RearLeft].Speed-hover) < 1e-6 {
			return
		}
		time.Sleep(cfg.TickRate)
	}
	t.Fatalf("rear-left never reached hover speed %v: %+v", hover, l.Motors())
}
