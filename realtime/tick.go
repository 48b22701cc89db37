package realtime

import (
	"context"
	"time"

	"github.com/comalice/actuatorx"
)

// processTick processes one complete tick and reports whether every motor
// write failed.
func (l *Loop) processTick(ctx context.Context) bool {
	// Phase 1: Latest command, or the previous one if nothing newer arrived
	if c, ok := l.source.Latest(); ok {
		l.mu.Lock()
		l.command = l.cfg.Bounds.Clamp(c)
		l.mu.Unlock()
	}

	// Phase 2: Allocate
	raw := l.alloc.Allocate(l.command)

	// Phase 3: Safety envelope and encoding, per motor
	faults := l.faultBuf[:0]
	var next [actuatorx.NumMotors]actuatorx.MotorState
	for _, m := range actuatorx.AllMotors {
		var speed float64
		speed, faults = l.env.Apply(faults, m, raw[m], l.motors[m].Speed)
		next[m] = actuatorx.MotorState{Speed: speed, PWM: l.enc.Encode(speed)}
	}

	// Phase 4: Write all four pulses, then advance
	failed, faults := l.writeAll(next, faults)
	l.faultBuf = faults[:0]

	tick := l.tickNum.Add(1)
	l.report(ctx, tick, faults, failed)
	return failed == actuatorx.NumMotors
}

// holdIdle writes the idle pulse to every motor during startup and settle.
func (l *Loop) holdIdle() bool {
	var next [actuatorx.NumMotors]actuatorx.MotorState
	for _, m := range actuatorx.AllMotors {
		next[m] = actuatorx.MotorState{Speed: 0, PWM: l.cfg.Limits.IdlePWM}
	}
	failed, faults := l.writeAll(next, l.faultBuf[:0])
	l.faultBuf = faults[:0]
	l.report(context.Background(), l.tickNum.Load(), faults, failed)
	return failed == actuatorx.NumMotors
}

// writeAll makes one write attempt per motor. Motors whose write succeeded
// take their new state; a failed motor keeps the state still on its ESC and
// gets a write fault.
func (l *Loop) writeAll(next [actuatorx.NumMotors]actuatorx.MotorState, faults []actuatorx.Fault) (int, []actuatorx.Fault) {
	var ok [actuatorx.NumMotors]bool
	failed := 0
	for _, m := range actuatorx.AllMotors {
		if err := l.channel.Write(m, next[m].PWM); err != nil {
			failed++
			continue
		}
		ok[m] = true
	}

	kind := actuatorx.PartialWriteFailure
	if failed == actuatorx.NumMotors {
		kind = actuatorx.FullWriteFailure
	}

	l.mu.Lock()
	for _, m := range actuatorx.AllMotors {
		if ok[m] {
			l.motors[m] = next[m]
			continue
		}
		faults = append(faults, actuatorx.Fault{
			Motor:       m,
			Kind:        kind,
			Requested:   float64(next[m].PWM),
			Substituted: float64(l.motors[m].PWM),
		})
	}
	l.mu.Unlock()

	if failed > 0 && failed < actuatorx.NumMotors {
		l.logger.Printf("[%s] tick %d: %d/%d motor writes failed", l.cfg.ID, l.tickNum.Load(), failed, actuatorx.NumMotors)
	}
	return failed, faults
}

// report counts faults, feeds the fault stream and the publisher.
func (l *Loop) report(ctx context.Context, tick uint64, faults []actuatorx.Fault, failed int) {
	l.mu.Lock()
	for _, f := range faults {
		if int(f.Kind) < len(l.counts) {
			l.counts[f.Kind]++
		}
		l.seq++
		l.faults.offer(FaultEvent{Tick: tick, SequenceNum: l.seq, Fault: f})
	}
	motors := l.motors
	l.mu.Unlock()

	if l.publisher == nil {
		return
	}
	r := TickReport{
		Tick:    tick,
		State:   l.machine.Current(),
		Command: l.command,
		Motors:  motors,
		Failed:  failed,
		At:      time.Now(),
	}
	if len(faults) > 0 {
		r.Faults = append([]actuatorx.Fault(nil), faults...)
	}
	if err := l.publisher.Publish(ctx, r); err != nil {
		l.logger.Printf("[%s] publish tick %d: %v", l.cfg.ID, tick, err)
	}
}
